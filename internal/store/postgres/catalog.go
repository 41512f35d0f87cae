package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/store"
)

func (r *Repo) SaveBusiness(ctx context.Context, b domain.Business) (domain.Business, error) {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if b.ID == uuid.Nil {
			b.Version = 1
			_, err := tx.NewInsert().Model(&b).Exec(ctx)
			return err
		}

		var current domain.Business
		err := tx.NewSelect().
			Model(&current).
			Column("version", "created_at").
			Where("id = ?", b.ID).
			For("UPDATE").
			Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			b.Version = 1
			_, err = tx.NewInsert().Model(&b).Exec(ctx)
			return err
		case err != nil:
			return err
		}

		b.Version = current.Version + 1
		b.CreatedAt = current.CreatedAt
		_, err = tx.NewUpdate().Model(&b).WherePK().Exec(ctx)
		return err
	})
	if err != nil {
		return domain.Business{}, err
	}
	return b, nil
}

func (r *Repo) SaveService(ctx context.Context, svc domain.Service) (domain.Service, error) {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := bumpVersion(ctx, tx, svc.BusinessID); err != nil {
			return err
		}
		return tx.NewInsert().
			Model(&svc).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("duration_minutes = EXCLUDED.duration_minutes").
			Set("price_cents = EXCLUDED.price_cents").
			Set("currency = EXCLUDED.currency").
			Set("requires_staff = EXCLUDED.requires_staff").
			Set("active = EXCLUDED.active").
			Set("rules = EXCLUDED.rules").
			Set("updated_at = EXCLUDED.updated_at").
			Returning("*").
			Scan(ctx)
	})
	if err != nil {
		return domain.Service{}, err
	}
	return svc, nil
}

func (r *Repo) SaveStaff(ctx context.Context, st domain.Staff) (domain.Staff, error) {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := bumpVersion(ctx, tx, st.BusinessID); err != nil {
			return err
		}
		return tx.NewInsert().
			Model(&st).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("active = EXCLUDED.active").
			Set("service_ids = EXCLUDED.service_ids").
			Set("hours = EXCLUDED.hours").
			Set("updated_at = EXCLUDED.updated_at").
			Returning("*").
			Scan(ctx)
	})
	if err != nil {
		return domain.Staff{}, err
	}
	return st, nil
}

// bumpVersion marks every decision made against the old catalog as stale.
func bumpVersion(ctx context.Context, tx bun.Tx, businessID uuid.UUID) error {
	res, err := tx.NewUpdate().
		Table("businesses").
		Set("version = version + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", businessID).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
