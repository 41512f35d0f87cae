package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"github.com/jonakson/beautyconnect/internal/clock"
	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/store"
)

const (
	overlapConstraint = "appointments_no_overlap"
	primaryKeyName    = "appointments_pkey"
)

// errDuplicateID marks an insert that lost an idempotent replay race.
var errDuplicateID = errors.New("duplicate appointment id")

type Repo struct {
	db              *bun.DB
	defaultTimezone string
}

var _ store.Store = (*Repo)(nil)

func NewRepo(db *bun.DB, defaultTimezone string) *Repo {
	return &Repo{db: db, defaultTimezone: defaultTimezone}
}

var occupyingStatuses = bun.In([]string{string(domain.StatusPending), string(domain.StatusConfirmed)})

func (r *Repo) LoadState(ctx context.Context, q store.StateQuery) (domain.BusinessState, error) {
	var state domain.BusinessState
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := r.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewSelect().Model(&state.Business).Where("id = ?", q.BusinessID).Scan(ctx); err != nil {
			return notFound(err)
		}
		if err := tx.NewSelect().
			Model(&state.Services).
			Where("business_id = ?", q.BusinessID).
			OrderExpr("id ASC").
			Scan(ctx); err != nil {
			return err
		}
		if err := tx.NewSelect().
			Model(&state.Staff).
			Where("business_id = ?", q.BusinessID).
			OrderExpr("id ASC").
			Scan(ctx); err != nil {
			return err
		}
		if err := tx.NewSelect().
			Model(&state.Appointments).
			Where("business_id = ?", q.BusinessID).
			Where("status IN (?)", occupyingStatuses).
			Where("start_time < ?", q.To).
			Where("occupied_until > ?", q.From).
			OrderExpr("start_time ASC, id ASC").
			Scan(ctx); err != nil {
			return err
		}

		if q.CustomerID != "" && !q.NoShowSince.IsZero() {
			n, err := tx.NewSelect().
				Model((*domain.Appointment)(nil)).
				Where("business_id = ?", q.BusinessID).
				Where("customer_id = ?", q.CustomerID).
				Where("status = ?", domain.StatusNoShow).
				Where("start_time >= ?", q.NoShowSince).
				Count(ctx)
			if err != nil {
				return err
			}
			state.CustomerNoShows = n
		}
		if !q.MonthStart.IsZero() {
			n, err := tx.NewSelect().
				Model((*domain.Appointment)(nil)).
				Where("business_id = ?", q.BusinessID).
				Where("status <> ?", domain.StatusCancelled).
				Where("start_time >= ?", q.MonthStart).
				Where("start_time < ?", q.MonthEnd).
				Count(ctx)
			if err != nil {
				return err
			}
			state.MonthBookings = n
		}
		return nil
	})
	if err != nil {
		return domain.BusinessState{}, err
	}
	return state, nil
}

func (r *Repo) Commit(ctx context.Context, c store.Commit) (domain.Appointment, error) {
	appt := c.Appointment
	var out domain.Appointment
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var b domain.Business
		err := tx.NewSelect().
			Model(&b).
			Column("id", "timezone", "version").
			Where("id = ?", appt.BusinessID).
			For("SHARE").
			Scan(ctx)
		if err != nil {
			return notFound(err)
		}
		if b.Version != c.ExpectedVersion {
			return store.ErrStale
		}
		loc, err := b.Location(r.defaultTimezone)
		if err != nil {
			return err
		}
		if err := lockStaffDay(ctx, tx, appt.BusinessID, appt.StaffID, clock.DateIn(appt.StartTime, loc)); err != nil {
			return err
		}

		if appt.ID != uuid.Nil {
			var existing domain.Appointment
			err := tx.NewSelect().Model(&existing).Where("id = ?", appt.ID).Limit(1).Scan(ctx)
			switch {
			case err == nil:
				if !existing.SameBooking(appt) {
					return store.ErrIdempotencyConflict
				}
				out = existing
				return nil
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}
		}

		if c.Replaces != uuid.Nil {
			if err := cancelReplaced(ctx, tx, appt.BusinessID, c.Replaces); err != nil {
				return err
			}
		}

		if _, err := tx.NewInsert().Model(&appt).Exec(ctx); err != nil {
			return mapInsertError(err)
		}
		out = appt
		return nil
	})
	if errors.Is(err, errDuplicateID) {
		return r.replay(ctx, appt)
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

// lockStaffDay serialises commits for one staff calendar and local day.
func lockStaffDay(ctx context.Context, tx bun.Tx, businessID, staffID uuid.UUID, day clock.Date) error {
	key := fmt.Sprintf("appt:%s:%s:%s", businessID, staffID, day)
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx)
	return err
}

func cancelReplaced(ctx context.Context, tx bun.Tx, businessID, id uuid.UUID) error {
	var old domain.Appointment
	err := tx.NewSelect().
		Model(&old).
		Where("id = ?", id).
		Where("business_id = ?", businessID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return notFound(err)
	}
	if !old.Status.Occupies() {
		return store.ErrConflict
	}
	_, err = tx.NewUpdate().
		Table("appointments").
		Set("status = ?", domain.StatusCancelled).
		Set("cancel_reason = ?", "rescheduled").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23P01" && pgErr.ConstraintName == overlapConstraint:
			return store.ErrConflict
		case pgErr.Code == "23505" && pgErr.ConstraintName == primaryKeyName:
			return errDuplicateID
		}
	}
	return err
}

// replay resolves an insert that collided on its ID outside the lock.
func (r *Repo) replay(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	var existing domain.Appointment
	if err := r.db.NewSelect().Model(&existing).Where("id = ?", appt.ID).Limit(1).Scan(ctx); err != nil {
		return domain.Appointment{}, notFound(err)
	}
	if !existing.SameBooking(appt) {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	return existing, nil
}

func (r *Repo) GetAppointment(ctx context.Context, businessID, appointmentID uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.db.NewSelect().
		Model(&a).
		Where("id = ?", appointmentID).
		Where("business_id = ?", businessID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, notFound(err)
	}
	return a, nil
}

func (r *Repo) ListAppointments(ctx context.Context, businessID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("business_id = ?", businessID).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) UpdateStatus(ctx context.Context, businessID, appointmentID uuid.UUID, from, to domain.AppointmentStatus, reason string) (domain.Appointment, error) {
	var a domain.Appointment
	q := r.db.NewUpdate().
		Model(&a).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", appointmentID).
		Where("business_id = ?", businessID).
		Where("status = ?", from).
		Returning("*")
	if to == domain.StatusCancelled {
		q = q.Set("cancel_reason = ?", reason)
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetAppointment(ctx, businessID, appointmentID); getErr != nil {
			return domain.Appointment{}, getErr
		}
		return domain.Appointment{}, store.ErrConflict
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return a, nil
}

func (r *Repo) CreateRecurringSeries(ctx context.Context, series domain.RecurringSeries) (domain.RecurringSeries, error) {
	if _, err := r.db.NewInsert().Model(&series).Exec(ctx); err != nil {
		return domain.RecurringSeries{}, err
	}
	return series, nil
}

func (r *Repo) GetRecurringSeries(ctx context.Context, businessID, seriesID uuid.UUID) (domain.RecurringSeries, error) {
	var s domain.RecurringSeries
	err := r.db.NewSelect().
		Model(&s).
		Where("id = ?", seriesID).
		Where("business_id = ?", businessID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.RecurringSeries{}, notFound(err)
	}
	return s, nil
}

func (r *Repo) FindSeriesAppointment(ctx context.Context, seriesID uuid.UUID, start time.Time) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.db.NewSelect().
		Model(&a).
		Where("series_id = ?", seriesID).
		Where("start_time = ?", start).
		Where("status IN (?)", occupyingStatuses).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, notFound(err)
	}
	return a, nil
}

func (r *Repo) GetRecurringException(ctx context.Context, seriesID uuid.UUID, occurrenceStart time.Time) (domain.RecurringException, error) {
	var ex domain.RecurringException
	err := r.db.NewSelect().
		Model(&ex).
		Where("series_id = ?", seriesID).
		Where("occurrence_start = ?", occurrenceStart).
		Scan(ctx)
	if err != nil {
		return domain.RecurringException{}, notFound(err)
	}
	return ex, nil
}

func (r *Repo) UpsertRecurringException(ctx context.Context, ex domain.RecurringException) (domain.RecurringException, error) {
	err := r.db.NewInsert().
		Model(&ex).
		On("CONFLICT (series_id, occurrence_start) DO UPDATE").
		Set("kind = EXCLUDED.kind").
		Set("override_start = EXCLUDED.override_start").
		Set("appointment_id = EXCLUDED.appointment_id").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Scan(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.RecurringException{}, store.ErrNotFound
		}
		return domain.RecurringException{}, err
	}
	return ex, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
