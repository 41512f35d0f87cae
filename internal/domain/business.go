package domain

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/jonakson/beautyconnect/internal/clock"
	"github.com/jonakson/beautyconnect/internal/rules"
)

type Break struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DayHours describes one weekday. OpensAt and ClosesAt are HH:MM and are
// ignored when Open is false.
type DayHours struct {
	Open     bool    `json:"open"`
	OpensAt  string  `json:"opens_at,omitempty"`
	ClosesAt string  `json:"closes_at,omitempty"`
	Breaks   []Break `json:"breaks,omitempty"`
}

// Spans returns the bookable minute ranges of the day with breaks removed.
// ok is false for a closed day or defective hours.
func (h DayHours) Spans() ([]clock.Span, bool) {
	open, breaks, err := h.parse()
	if err != nil {
		return nil, false
	}
	return clock.OpenSpans(open, breaks)
}

// Bounds returns [open, close) ignoring breaks.
func (h DayHours) Bounds() (clock.Span, bool) {
	open, _, err := h.parse()
	if err != nil || !open.Valid() {
		return clock.Span{}, false
	}
	return open, true
}

func (h DayHours) parse() (clock.Span, []clock.Span, error) {
	if !h.Open {
		return clock.Span{}, nil, errors.New("closed")
	}
	opens, err := clock.ParseClock(h.OpensAt)
	if err != nil {
		return clock.Span{}, nil, err
	}
	closes, err := clock.ParseClock(h.ClosesAt)
	if err != nil {
		return clock.Span{}, nil, err
	}
	breaks := make([]clock.Span, 0, len(h.Breaks))
	for _, b := range h.Breaks {
		s, err := clock.ParseClock(b.Start)
		if err != nil {
			return clock.Span{}, nil, err
		}
		e, err := clock.ParseClock(b.End)
		if err != nil {
			return clock.Span{}, nil, err
		}
		breaks = append(breaks, clock.Span{Start: s, End: e})
	}
	return clock.Span{Start: opens, End: closes}, breaks, nil
}

// WeeklyHours is indexed by day of week, 0 = Sunday.
type WeeklyHours [7]DayHours

func (w WeeklyHours) On(d clock.Date) DayHours {
	return w[d.DayOfWeek()]
}

func (w WeeklyHours) Validate() error {
	for i, h := range w {
		if !h.Open {
			continue
		}
		open, breaks, err := h.parse()
		if err != nil {
			return fmt.Errorf("day %d: %w", i, err)
		}
		if _, ok := clock.OpenSpans(open, breaks); !ok {
			return fmt.Errorf("day %d: open must precede close and breaks must nest without overlapping", i)
		}
	}
	return nil
}

// Within reports an error when w is open on a day or at a time business is not.
func (w WeeklyHours) Within(business WeeklyHours) error {
	for i, h := range w {
		if !h.Open {
			continue
		}
		own, ok := h.Bounds()
		if !ok {
			return fmt.Errorf("day %d: invalid hours", i)
		}
		outer, ok := business[i].Bounds()
		if !ok {
			return fmt.Errorf("day %d: business is closed", i)
		}
		if !outer.Contains(own.Start, own.End) {
			return fmt.Errorf("day %d: hours exceed business hours", i)
		}
	}
	return nil
}

type Business struct {
	bun.BaseModel `bun:"table:businesses"`

	ID        uuid.UUID       `bun:"id,pk,type:uuid"`
	Name      string          `bun:"name,notnull"`
	Timezone  string          `bun:"timezone,notnull"`
	Tier      string          `bun:"tier,notnull"`
	Currency  string          `bun:"currency,notnull"`
	Hours     WeeklyHours     `bun:"hours,type:jsonb,notnull"`
	Rules     rules.Overrides `bun:"rules,type:jsonb,notnull"`
	Version   int64           `bun:"version,notnull"`
	CreatedAt time.Time       `bun:"created_at,notnull"`
	UpdatedAt time.Time       `bun:"updated_at,notnull"`
}

func (b *Business) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &b.ID, &b.CreatedAt, &b.UpdatedAt)
}

func (b Business) Location(fallback string) (*time.Location, error) {
	return clock.LoadLocation(b.Timezone, fallback)
}

type Service struct {
	bun.BaseModel `bun:"table:services"`

	ID              uuid.UUID       `bun:"id,pk,type:uuid"`
	BusinessID      uuid.UUID       `bun:"business_id,notnull,type:uuid"`
	Name            string          `bun:"name,notnull"`
	DurationMinutes int             `bun:"duration_minutes,notnull"`
	PriceCents      int64           `bun:"price_cents,notnull"`
	Currency        string          `bun:"currency,notnull"`
	RequiresStaff   bool            `bun:"requires_staff,notnull"`
	Active          bool            `bun:"active,notnull"`
	Rules           rules.Overrides `bun:"rules,type:jsonb,notnull"`
	CreatedAt       time.Time       `bun:"created_at,notnull"`
	UpdatedAt       time.Time       `bun:"updated_at,notnull"`
}

func (s *Service) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Validate checks the service against the slot grid it will be booked on.
func (s Service) Validate(rs rules.RuleSet) error {
	if s.DurationMinutes <= 0 {
		return errors.New("duration must be positive")
	}
	if rs.SlotIncrementMinutes > 0 && s.DurationMinutes%rs.SlotIncrementMinutes != 0 {
		return fmt.Errorf("duration must be a multiple of %d minutes", rs.SlotIncrementMinutes)
	}
	return nil
}

type Staff struct {
	bun.BaseModel `bun:"table:staff_members"`

	ID         uuid.UUID   `bun:"id,pk,type:uuid"`
	BusinessID uuid.UUID   `bun:"business_id,notnull,type:uuid"`
	Name       string      `bun:"name,notnull"`
	Active     bool        `bun:"active,notnull"`
	ServiceIDs []uuid.UUID `bun:"service_ids,type:uuid[],array"`
	Hours      WeeklyHours `bun:"hours,type:jsonb,notnull"`
	CreatedAt  time.Time   `bun:"created_at,notnull"`
	UpdatedAt  time.Time   `bun:"updated_at,notnull"`
}

func (s *Staff) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// Offers reports whether the staff member is active and performs the service.
func (s Staff) Offers(serviceID uuid.UUID) bool {
	return s.Active && slices.Contains(s.ServiceIDs, serviceID)
}

func stamp(query bun.Query, id *uuid.UUID, createdAt, updatedAt *time.Time) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if *id == uuid.Nil {
			v, err := uuid.NewV7()
			if err != nil {
				return err
			}
			*id = v
		}
		if createdAt.IsZero() {
			*createdAt = now
		}
		if updatedAt.IsZero() {
			*updatedAt = now
		}
	case *bun.UpdateQuery:
		*updatedAt = now
	}
	return nil
}
