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
	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/events"
	"github.com/jonakson/beautyconnect/internal/rules"
	"github.com/jonakson/beautyconnect/internal/store"
)

type BookInput struct {
	BusinessID uuid.UUID
	ServiceID  uuid.UUID
	// StaffID may be empty; the first eligible staff member is assigned.
	StaffID        uuid.UUID
	CustomerID     string
	StartTime      time.Time
	Notes          string
	IdempotencyKey string
}

func (s *Service) Book(ctx context.Context, in BookInput) (appt domain.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Book", trace.WithAttributes(
		attribute.String("business.id", in.BusinessID.String()),
		attribute.String("service.id", in.ServiceID.String()),
	))
	defer func() {
		s.finish(span, "book", err,
			slog.String("business_id", in.BusinessID.String()),
			slog.Time("start_time", in.StartTime),
		)
	}()

	if err := requireID(in.BusinessID, "business_id"); err != nil {
		return domain.Appointment{}, err
	}
	if err := requireID(in.ServiceID, "service_id"); err != nil {
		return domain.Appointment{}, err
	}
	customer := strings.TrimSpace(in.CustomerID)
	if customer == "" {
		return domain.Appointment{}, validationError("customer_id is required")
	}
	if in.StartTime.IsZero() {
		return domain.Appointment{}, validationError("start_time is required")
	}
	if len(in.Notes) > maxNotesLength {
		return domain.Appointment{}, validationError("notes too long")
	}

	req := booking.Request{
		BusinessID: in.BusinessID,
		ServiceID:  in.ServiceID,
		StaffID:    in.StaffID,
		CustomerID: customer,
		Start:      in.StartTime.UTC(),
	}
	draft := booking.Draft{Notes: in.Notes}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > maxKeyLength {
			return domain.Appointment{}, validationError("idempotency_key too long")
		}
		draft.ID = idempotentID("book", in.BusinessID.String(), customer, key)

		// A replay must not be re-validated: its own interval would conflict.
		existing, err := s.store.GetAppointment(ctx, in.BusinessID, draft.ID)
		switch {
		case err == nil:
			if !sameRequest(existing, req) {
				return domain.Appointment{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		case !errors.Is(err, store.ErrNotFound):
			return domain.Appointment{}, err
		}
	}

	appt, err = s.engine.ValidateAndCommit(ctx, req, draft)
	if err != nil {
		return domain.Appointment{}, err
	}
	span.SetAttributes(attribute.String("appointment.id", appt.ID.String()))
	return appt, nil
}

func sameRequest(a domain.Appointment, req booking.Request) bool {
	return a.ServiceID == req.ServiceID &&
		a.CustomerID == req.CustomerID &&
		a.StartTime.Equal(req.Start.Truncate(time.Minute)) &&
		(req.StaffID == uuid.Nil || a.StaffID == req.StaffID)
}

type CancelInput struct {
	BusinessID    uuid.UUID
	AppointmentID uuid.UUID
	Reason        string
	// Force skips the cancellation window; for staff-side cancellations.
	Force bool
}

// Cancel frees the appointment's interval. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (appt domain.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Cancel", trace.WithAttributes(
		attribute.String("appointment.id", in.AppointmentID.String()),
	))
	defer func() { s.finish(span, "cancel", err, slog.String("appointment_id", in.AppointmentID.String())) }()

	if err := requireID(in.BusinessID, "business_id"); err != nil {
		return domain.Appointment{}, err
	}
	if err := requireID(in.AppointmentID, "appointment_id"); err != nil {
		return domain.Appointment{}, err
	}
	if len(in.Reason) > maxNotesLength {
		return domain.Appointment{}, validationError("reason too long")
	}

	appt, err = s.store.GetAppointment(ctx, in.BusinessID, in.AppointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.Status == domain.StatusCancelled {
		return appt, nil
	}
	if !appt.Status.CanBecome(domain.StatusCancelled) {
		return domain.Appointment{}, booking.Rejected(booking.ReasonInvalidTransition, "appointment is "+string(appt.Status))
	}
	if !in.Force {
		rs, err := s.rulesFor(ctx, appt)
		if err != nil {
			return domain.Appointment{}, err
		}
		if s.now().After(appt.StartTime.Add(-rs.CancellationWindow())) {
			return domain.Appointment{}, booking.Rejected(booking.ReasonCancellationWindowExpired, "too close to the appointment to cancel")
		}
	}

	updated, err := s.store.UpdateStatus(ctx, in.BusinessID, appt.ID, appt.Status, domain.StatusCancelled, in.Reason)
	if errors.Is(err, store.ErrConflict) {
		// Lost a race with another status change; a concurrent cancel is fine.
		current, getErr := s.store.GetAppointment(ctx, in.BusinessID, appt.ID)
		if getErr == nil && current.Status == domain.StatusCancelled {
			return current, nil
		}
		return domain.Appointment{}, booking.Rejected(booking.ReasonInvalidTransition, "appointment changed concurrently")
	}
	if err != nil {
		return domain.Appointment{}, err
	}

	ev := events.New(events.BookingCancelled, updated.BusinessID, updated.ID)
	ev.Status = string(updated.Status)
	s.publish(ctx, ev)
	return updated, nil
}

type RescheduleInput struct {
	BusinessID    uuid.UUID
	AppointmentID uuid.UUID
	NewStart      time.Time
	// StaffID moves the appointment to another staff member; empty keeps the
	// current one.
	StaffID uuid.UUID
	Force   bool
}

// Reschedule books the new interval and cancels the old one in one commit.
func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (appt domain.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Reschedule", trace.WithAttributes(
		attribute.String("appointment.id", in.AppointmentID.String()),
	))
	defer func() {
		s.finish(span, "reschedule", err,
			slog.String("appointment_id", in.AppointmentID.String()),
			slog.Time("new_start", in.NewStart),
		)
	}()

	if err := requireID(in.BusinessID, "business_id"); err != nil {
		return domain.Appointment{}, err
	}
	if err := requireID(in.AppointmentID, "appointment_id"); err != nil {
		return domain.Appointment{}, err
	}
	if in.NewStart.IsZero() {
		return domain.Appointment{}, validationError("new_start is required")
	}

	current, err := s.store.GetAppointment(ctx, in.BusinessID, in.AppointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !current.Status.Occupies() {
		return domain.Appointment{}, booking.Rejected(booking.ReasonInvalidTransition, "appointment is "+string(current.Status))
	}
	if !in.Force {
		rs, err := s.rulesFor(ctx, current)
		if err != nil {
			return domain.Appointment{}, err
		}
		if s.now().After(current.StartTime.Add(-rs.RescheduleWindow())) {
			return domain.Appointment{}, booking.Rejected(booking.ReasonCancellationWindowExpired, "too close to the appointment to reschedule")
		}
	}

	return s.move(ctx, current, in.NewStart, in.StaffID)
}

// move re-validates current at start against fresh state and replaces it.
func (s *Service) move(ctx context.Context, current domain.Appointment, start time.Time, staffID uuid.UUID) (domain.Appointment, error) {
	if staffID == uuid.Nil {
		staffID = current.StaffID
	}
	req := booking.Request{
		BusinessID: current.BusinessID,
		ServiceID:  current.ServiceID,
		StaffID:    staffID,
		CustomerID: current.CustomerID,
		Start:      start.UTC(),
		Exclude:    current.ID,
	}
	return s.engine.ValidateAndCommit(ctx, req, booking.Draft{
		Status:   current.Status,
		Notes:    current.Notes,
		SeriesID: current.SeriesID,
		Replaces: current.ID,
	})
}

// UpdateStatus applies a lifecycle transition other than cancellation.
func (s *Service) UpdateStatus(ctx context.Context, businessID, appointmentID uuid.UUID, to domain.AppointmentStatus) (appt domain.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.UpdateStatus", trace.WithAttributes(
		attribute.String("appointment.id", appointmentID.String()),
		attribute.String("status", string(to)),
	))
	defer func() { s.finish(span, "update_status", err, slog.String("appointment_id", appointmentID.String())) }()

	if err := requireID(businessID, "business_id"); err != nil {
		return domain.Appointment{}, err
	}
	if err := requireID(appointmentID, "appointment_id"); err != nil {
		return domain.Appointment{}, err
	}
	switch to {
	case domain.StatusConfirmed, domain.StatusCompleted, domain.StatusNoShow:
	case domain.StatusCancelled:
		return domain.Appointment{}, validationError("use Cancel to cancel an appointment")
	default:
		return domain.Appointment{}, validationError("invalid status")
	}

	current, err := s.store.GetAppointment(ctx, businessID, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if current.Status == to {
		return current, nil
	}
	if !current.Status.CanBecome(to) {
		return domain.Appointment{}, booking.Rejected(booking.ReasonInvalidTransition, string(current.Status)+" cannot become "+string(to))
	}
	if (to == domain.StatusCompleted || to == domain.StatusNoShow) && s.now().Before(current.StartTime) {
		return domain.Appointment{}, booking.Rejected(booking.ReasonInvalidTransition, "appointment has not started")
	}

	updated, err := s.store.UpdateStatus(ctx, businessID, appointmentID, current.Status, to, "")
	if errors.Is(err, store.ErrConflict) {
		return domain.Appointment{}, booking.Rejected(booking.ReasonInvalidTransition, "appointment changed concurrently")
	}
	if err != nil {
		return domain.Appointment{}, err
	}

	ev := events.New(events.BookingStatusChanged, updated.BusinessID, updated.ID)
	ev.Status = string(updated.Status)
	s.publish(ctx, ev)
	return updated, nil
}

func (s *Service) ListAppointments(ctx context.Context, businessID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	if err := requireID(businessID, "business_id"); err != nil {
		return nil, err
	}

	start := windowStart.UTC()
	end := windowEnd.UTC()
	if end.Equal(start) || end.Before(start) {
		return nil, validationError("window_end must be after window_start")
	}
	if end.Sub(start) > maxListWindow {
		return nil, validationError("window too long")
	}

	return s.store.ListAppointments(ctx, businessID, start, end)
}

func (s *Service) rulesFor(ctx context.Context, appt domain.Appointment) (rules.RuleSet, error) {
	state, err := s.catalog(ctx, appt.BusinessID)
	if err != nil {
		return rules.RuleSet{}, err
	}
	svc, _ := state.Service(appt.ServiceID)
	return s.engine.Policy().RulesFor(state, svc), nil
}
