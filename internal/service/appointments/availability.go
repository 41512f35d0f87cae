package appointments

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonakson/beautyconnect/internal/availability"
	"github.com/jonakson/beautyconnect/internal/clock"
	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/store"
)

type AvailabilityInput struct {
	BusinessID uuid.UUID
	ServiceID  uuid.UUID
	// StaffID narrows the result to one staff member; empty means everyone
	// eligible for the service.
	StaffID uuid.UUID
	// From and To are inclusive YYYY-MM-DD dates in the business zone.
	From string
	To   string
}

// Availability returns every bookable slot for the service in the date range.
func (s *Service) Availability(ctx context.Context, in AvailabilityInput) (slots []domain.TimeSlot, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Availability", trace.WithAttributes(
		attribute.String("business.id", in.BusinessID.String()),
		attribute.String("service.id", in.ServiceID.String()),
	))
	defer func() {
		span.SetAttributes(attribute.Int("slots", len(slots)))
		s.finish(span, "availability", err, slog.String("business_id", in.BusinessID.String()))
	}()

	if err := requireID(in.BusinessID, "business_id"); err != nil {
		return nil, err
	}
	if err := requireID(in.ServiceID, "service_id"); err != nil {
		return nil, err
	}
	from, err := clock.ParseDate(in.From)
	if err != nil {
		return nil, invalidFormat("from", err)
	}
	to, err := clock.ParseDate(in.To)
	if err != nil {
		return nil, invalidFormat("to", err)
	}
	if to.Before(from) {
		return nil, validationError("to must not be before from")
	}
	if len(clock.Days(from, to)) > maxQueryDays {
		return nil, validationError("date range too long")
	}

	// A UTC day either side covers every zone offset.
	state, err := s.store.LoadState(ctx, store.StateQuery{
		BusinessID: in.BusinessID,
		From:       from.Midnight(time.UTC).Add(-24 * time.Hour),
		To:         to.AddDays(2).Midnight(time.UTC),
	})
	if err != nil {
		return nil, err
	}
	loc, err := state.Business.Location(s.engine.Policy().DefaultTimezone)
	if err != nil {
		return nil, err
	}
	svc, ok := state.Service(in.ServiceID)
	if !ok {
		return nil, store.ErrNotFound
	}

	staff := state.Staff
	if in.StaffID != uuid.Nil {
		member, ok := state.StaffMember(in.StaffID)
		if !ok {
			return nil, store.ErrNotFound
		}
		staff = []domain.Staff{member}
	}

	slots = availability.ComputeSlots(availability.Input{
		Business:     state.Business,
		Location:     loc,
		Service:      svc,
		Staff:        staff,
		Appointments: state.Appointments,
		From:         from,
		To:           to,
		Rules:        s.engine.Policy().RulesFor(state, svc),
		Now:          s.now(),
	})
	return slots, nil
}
