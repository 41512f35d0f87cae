package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jonakson/beautyconnect/internal/availability"
	"github.com/jonakson/beautyconnect/internal/clock"
	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/events"
	"github.com/jonakson/beautyconnect/internal/rules"
	"github.com/jonakson/beautyconnect/internal/store"
)

const publishTimeout = 5 * time.Second

// Draft carries the parts of an appointment the validator does not decide.
type Draft struct {
	ID       uuid.UUID
	Status   domain.AppointmentStatus
	Notes    string
	SeriesID uuid.UUID
	// Replaces is cancelled atomically with the new appointment's insert.
	Replaces uuid.UUID
}

type Engine struct {
	store  store.BookingStore
	policy Policy
	bus    events.Publisher
	locks  *keyedMutex
	now    func() time.Time
	log    *slog.Logger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(st store.BookingStore, policy Policy, bus events.Publisher, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if bus == nil {
		bus = events.Discard{}
	}
	e := &Engine{
		store:  st,
		policy: policy,
		bus:    bus,
		locks:  newKeyedMutex(),
		now:    time.Now,
		log:    log.With(slog.String("component", "booking.engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// ValidateAndCommit validates req against fresh state and writes it. The
// validate-then-write pair is serialised per (staff, local day); a storage
// conflict is retried once against refreshed state before it surfaces as
// SlotConflict. Leaving StaffID empty for a staffed service assigns the first
// eligible staff member, in ID order, who can take the slot.
func (e *Engine) ValidateAndCommit(ctx context.Context, req Request, draft Draft) (domain.Appointment, error) {
	state, err := e.load(ctx, req, nil)
	if err != nil {
		return domain.Appointment{}, err
	}
	loc, err := state.Business.Location(e.policy.DefaultTimezone)
	if err != nil {
		return domain.Appointment{}, err
	}

	svc, ok := state.Service(req.ServiceID)
	if ok && !svc.RequiresStaff {
		// Unstaffed services share one calendar.
		req.StaffID = uuid.Nil
	}
	if !ok || !svc.RequiresStaff || req.StaffID != uuid.Nil {
		return e.commitFor(ctx, req, draft, loc)
	}

	candidates := availability.Candidates(svc, state.Staff)
	if len(candidates) == 0 {
		return domain.Appointment{}, reject(ReasonStaffUnavailable, "no staff member offers this service")
	}
	var first error
	for _, st := range candidates {
		attempt := req
		attempt.StaffID = st.ID
		appt, err := e.commitFor(ctx, attempt, draft, loc)
		if err == nil {
			return appt, nil
		}
		reason, rejected := ReasonOf(err)
		if !rejected {
			return domain.Appointment{}, err
		}
		if first == nil {
			first = err
		}
		if !staffSpecific(reason) {
			return domain.Appointment{}, err
		}
	}
	return domain.Appointment{}, first
}

// staffSpecific reasons may clear with a different staff member.
func staffSpecific(r Reason) bool {
	switch r {
	case ReasonStaffUnavailable, ReasonDailyLimitExceeded, ReasonSlotConflict:
		return true
	}
	return false
}

func (e *Engine) commitFor(ctx context.Context, req Request, draft Draft, loc *time.Location) (domain.Appointment, error) {
	unlock := e.locks.Lock(lockKey{business: req.BusinessID, staff: req.StaffID, day: clock.DateIn(req.Start, loc)})
	defer unlock()

	for attempt := 0; ; attempt++ {
		state, err := e.load(ctx, req, loc)
		if err != nil {
			return domain.Appointment{}, err
		}
		acc, err := e.policy.Validate(req, state, e.now())
		if err != nil {
			return domain.Appointment{}, err
		}

		appt, err := e.store.Commit(ctx, store.Commit{
			Appointment:     buildAppointment(req, draft, acc),
			ExpectedVersion: state.Business.Version,
			Replaces:        draft.Replaces,
		})
		switch {
		case err == nil:
			e.publish(ctx, appt, draft.Replaces)
			return appt, nil
		case errors.Is(err, store.ErrStale):
			return domain.Appointment{}, fmt.Errorf("%w: %w", ErrStaleData, err)
		case errors.Is(err, store.ErrConflict) && attempt == 0:
			e.log.Info("commit conflict, retrying",
				slog.String("business_id", req.BusinessID.String()),
				slog.String("staff_id", req.StaffID.String()),
				slog.Time("start_time", acc.Start),
			)
			continue
		case errors.Is(err, store.ErrConflict):
			return domain.Appointment{}, reject(ReasonSlotConflict, "slot was taken concurrently")
		default:
			return domain.Appointment{}, err
		}
	}
}

// load reads a snapshot around req.Start. loc may be nil before the business
// zone is known; the month bounds then fall back to UTC.
func (e *Engine) load(ctx context.Context, req Request, loc *time.Location) (domain.BusinessState, error) {
	if loc == nil {
		loc = time.UTC
	}
	q := store.StateQuery{
		BusinessID: req.BusinessID,
		From:       req.Start.Add(-36 * time.Hour),
		To:         req.Start.Add(36 * time.Hour),
		CustomerID: req.CustomerID,
	}
	if e.policy.NoShow.MaxNoShows > 0 {
		q.NoShowSince = e.now().Add(-e.policy.NoShow.Window)
	}
	if e.policy.Tiers != nil {
		q.MonthStart, q.MonthEnd = rules.MonthBounds(req.Start.In(loc))
	}
	return e.store.LoadState(ctx, q)
}

func buildAppointment(req Request, draft Draft, acc Accepted) domain.Appointment {
	status := draft.Status
	if status == "" {
		status = domain.StatusPending
	}
	return domain.Appointment{
		ID:            draft.ID,
		BusinessID:    req.BusinessID,
		ServiceID:     acc.Service.ID,
		StaffID:       acc.StaffID,
		CustomerID:    req.CustomerID,
		SeriesID:      draft.SeriesID,
		Status:        status,
		StartTime:     acc.Start,
		EndTime:       acc.End,
		OccupiedUntil: acc.OccupiedUntil,
		PriceCents:    acc.Service.PriceCents,
		Currency:      acc.Service.Currency,
		Notes:         draft.Notes,
	}
}

// publish does not wait for delivery; a failed notification never fails the booking.
func (e *Engine) publish(ctx context.Context, appt domain.Appointment, replaces uuid.UUID) {
	ev := events.New(events.BookingCommitted, appt.BusinessID, appt.ID)
	if replaces != uuid.Nil {
		ev.Type = events.BookingRescheduled
		ev.PreviousID = replaces.String()
	}
	ev.Status = string(appt.Status)

	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := e.bus.Publish(ctx, ev); err != nil {
			e.log.Warn("event publish failed",
				slog.Any("err", err),
				slog.String("event_type", string(ev.Type)),
				slog.String("appointment_id", ev.AppointmentID),
			)
		}
	}()
}
