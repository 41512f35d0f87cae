package appointments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonakson/beautyconnect/internal/booking"
	"github.com/jonakson/beautyconnect/internal/clock"
	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/store"
)

type RecurringInput struct {
	BusinessID uuid.UUID
	ServiceID  uuid.UUID
	StaffID    uuid.UUID
	CustomerID string
	// StartTime is the first occurrence; later ones keep its local wall time.
	StartTime time.Time
	Rule      domain.RecurrenceRule
	Notes     string
}

// OccurrenceOutcome is the result of booking one occurrence. Exactly one of
// Appointment and Reason is set.
type OccurrenceOutcome struct {
	Start       time.Time
	Appointment *domain.Appointment
	Reason      booking.Reason
}

type RecurringResult struct {
	Series      domain.RecurringSeries
	Occurrences []OccurrenceOutcome
	// Truncated is set when the rule runs past the booking lookahead.
	Truncated bool
}

func (r RecurringResult) Booked() int {
	n := 0
	for _, o := range r.Occurrences {
		if o.Appointment != nil {
			n++
		}
	}
	return n
}

// BookRecurring persists the series and books each occurrence independently.
// A rejected occurrence is reported, not fatal; any other error stops the run
// and is returned with the outcomes gathered so far.
func (s *Service) BookRecurring(ctx context.Context, in RecurringInput) (res RecurringResult, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.BookRecurring", trace.WithAttributes(
		attribute.String("business.id", in.BusinessID.String()),
		attribute.String("recurrence.frequency", string(in.Rule.Frequency)),
	))
	defer func() {
		span.SetAttributes(attribute.Int("occurrences", len(res.Occurrences)), attribute.Int("booked", res.Booked()))
		s.finish(span, "book_recurring", err, slog.String("business_id", in.BusinessID.String()))
	}()

	if err := requireID(in.BusinessID, "business_id"); err != nil {
		return RecurringResult{}, err
	}
	if err := requireID(in.ServiceID, "service_id"); err != nil {
		return RecurringResult{}, err
	}
	customer := strings.TrimSpace(in.CustomerID)
	if customer == "" {
		return RecurringResult{}, validationError("customer_id is required")
	}
	if in.StartTime.IsZero() {
		return RecurringResult{}, validationError("start_time is required")
	}
	if err := in.Rule.Validate(); err != nil {
		return RecurringResult{}, &ValidationError{msg: err.Error(), err: err}
	}
	if in.Rule.Until != nil && in.Rule.Until.Before(in.StartTime) {
		return RecurringResult{}, validationError("until must be after start_time")
	}

	state, err := s.catalog(ctx, in.BusinessID)
	if err != nil {
		return RecurringResult{}, err
	}
	loc, err := state.Business.Location(s.engine.Policy().DefaultTimezone)
	if err != nil {
		return RecurringResult{}, err
	}
	dtstart := in.StartTime.In(loc).Truncate(time.Minute)

	series := domain.RecurringSeries{
		BusinessID: in.BusinessID,
		ServiceID:  in.ServiceID,
		StaffID:    in.StaffID,
		CustomerID: customer,
		Timezone:   loc.String(),
		DTStart:    dtstart.UTC(),
	}
	series.SetRule(in.Rule)
	res.Series, err = s.store.CreateRecurringSeries(ctx, series)
	if err != nil {
		return RecurringResult{}, err
	}

	horizon := dtstart.Add(store.RecurringConflictLookahead)
	for occ := range in.Rule.Occurrences(dtstart) {
		if occ.After(horizon) {
			res.Truncated = true
			break
		}
		outcome, err := s.bookOccurrence(ctx, res.Series, occ, in.Notes)
		if err != nil {
			return res, err
		}
		res.Occurrences = append(res.Occurrences, outcome)
	}
	return res, nil
}

func (s *Service) bookOccurrence(ctx context.Context, series domain.RecurringSeries, occ time.Time, notes string) (OccurrenceOutcome, error) {
	out := OccurrenceOutcome{Start: occ.UTC()}
	req := booking.Request{
		BusinessID: series.BusinessID,
		ServiceID:  series.ServiceID,
		StaffID:    series.StaffID,
		CustomerID: series.CustomerID,
		Start:      occ.UTC(),
	}
	draft := booking.Draft{
		ID:       idempotentID("series", series.ID.String(), occ.UTC().Format(time.RFC3339)),
		Notes:    notes,
		SeriesID: series.ID,
	}

	appt, err := s.engine.ValidateAndCommit(ctx, req, draft)
	if reason, ok := booking.ReasonOf(err); ok {
		out.Reason = reason
		return out, nil
	}
	if err != nil {
		return out, err
	}
	out.Appointment = &appt
	return out, nil
}

type OccurrenceChangeInput struct {
	BusinessID uuid.UUID
	SeriesID   uuid.UUID
	// OccurrenceStart is the start the rule produced for the occurrence.
	OccurrenceStart time.Time
	// NewStart moves the occurrence; nil skips it.
	NewStart *time.Time
	Force    bool
}

type OccurrenceChange struct {
	Exception   domain.RecurringException
	Appointment *domain.Appointment
}

// RescheduleOccurrence skips or moves one occurrence of a series. A move is
// validated against the rules in force now, not those of the original booking.
func (s *Service) RescheduleOccurrence(ctx context.Context, in OccurrenceChangeInput) (change OccurrenceChange, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.RescheduleOccurrence", trace.WithAttributes(
		attribute.String("series.id", in.SeriesID.String()),
	))
	defer func() {
		s.finish(span, "reschedule_occurrence", err,
			slog.String("series_id", in.SeriesID.String()),
			slog.Time("occurrence_start", in.OccurrenceStart),
		)
	}()

	if err := requireID(in.BusinessID, "business_id"); err != nil {
		return OccurrenceChange{}, err
	}
	if err := requireID(in.SeriesID, "series_id"); err != nil {
		return OccurrenceChange{}, err
	}
	if in.OccurrenceStart.IsZero() {
		return OccurrenceChange{}, validationError("occurrence_start is required")
	}

	series, err := s.store.GetRecurringSeries(ctx, in.BusinessID, in.SeriesID)
	if err != nil {
		return OccurrenceChange{}, err
	}
	occStart := in.OccurrenceStart.UTC()
	if !isOccurrence(series, occStart, s.engine.Policy().DefaultTimezone) {
		return OccurrenceChange{}, validationError("occurrence_start is not an occurrence of the series")
	}

	current, found, err := s.occurrenceAppointment(ctx, series, occStart)
	if err != nil {
		return OccurrenceChange{}, err
	}

	ex := domain.RecurringException{SeriesID: series.ID, OccurrenceStart: occStart}
	if in.NewStart == nil {
		ex.Kind = domain.RecurringExceptionKindSkip
		if found {
			if _, err := s.Cancel(ctx, CancelInput{BusinessID: in.BusinessID, AppointmentID: current.ID, Reason: "occurrence skipped", Force: in.Force}); err != nil {
				return OccurrenceChange{}, err
			}
		}
	} else {
		ex.Kind = domain.RecurringExceptionKindOverride
		newStart := in.NewStart.UTC()
		ex.OverrideStart = &newStart

		var appt domain.Appointment
		if found {
			appt, err = s.move(ctx, current, newStart, uuid.Nil)
		} else {
			appt, err = s.engine.ValidateAndCommit(ctx, booking.Request{
				BusinessID: series.BusinessID,
				ServiceID:  series.ServiceID,
				StaffID:    series.StaffID,
				CustomerID: series.CustomerID,
				Start:      newStart,
			}, booking.Draft{SeriesID: series.ID})
		}
		if err != nil {
			return OccurrenceChange{}, err
		}
		ex.AppointmentID = appt.ID
		change.Appointment = &appt
	}

	change.Exception, err = s.store.UpsertRecurringException(ctx, ex)
	if err != nil {
		return OccurrenceChange{}, err
	}
	return change, nil
}

// occurrenceAppointment returns the live appointment holding an occurrence.
// Once an exception exists the occurrence is tracked through it, since a
// moved booking no longer starts at the generated time.
func (s *Service) occurrenceAppointment(ctx context.Context, series domain.RecurringSeries, occStart time.Time) (domain.Appointment, bool, error) {
	ex, err := s.store.GetRecurringException(ctx, series.ID, occStart)
	switch {
	case err == nil:
		if ex.AppointmentID == uuid.Nil {
			return domain.Appointment{}, false, nil
		}
		appt, err := s.store.GetAppointment(ctx, series.BusinessID, ex.AppointmentID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.Appointment{}, false, nil
		}
		if err != nil {
			return domain.Appointment{}, false, err
		}
		return appt, appt.Status.Occupies(), nil
	case !errors.Is(err, store.ErrNotFound):
		return domain.Appointment{}, false, err
	}

	appt, err := s.store.FindSeriesAppointment(ctx, series.ID, occStart)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Appointment{}, false, nil
	}
	if err != nil {
		return domain.Appointment{}, false, err
	}
	return appt, true, nil
}

func isOccurrence(series domain.RecurringSeries, start time.Time, fallbackTZ string) bool {
	loc, err := clock.LoadLocation(series.Timezone, fallbackTZ)
	if err != nil {
		loc = time.UTC
	}
	for occ := range series.Rule().Occurrences(series.DTStart.In(loc)) {
		switch {
		case occ.Equal(start):
			return true
		case occ.After(start):
			return false
		}
	}
	return false
}
