// Package availability enumerates bookable slots. It is a pure function of
// its input and may run concurrently over a shared snapshot.
package availability

import (
	"bytes"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/jonakson/beautyconnect/internal/clock"
	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/rules"
)

type Input struct {
	Business     domain.Business
	Location     *time.Location
	Service      domain.Service
	Staff        []domain.Staff
	Appointments []domain.Appointment
	From         clock.Date
	To           clock.Date
	Rules        rules.RuleSet
	Now          time.Time
}

// Candidates returns the staff eligible for the service in ID order, or a
// single nil entry for services booked without staff.
func Candidates(svc domain.Service, staff []domain.Staff) []*domain.Staff {
	if !svc.RequiresStaff {
		return []*domain.Staff{nil}
	}
	out := make([]*domain.Staff, 0, len(staff))
	for i := range staff {
		if staff[i].Offers(svc.ID) {
			out = append(out, &staff[i])
		}
	}
	slices.SortFunc(out, func(a, b *domain.Staff) int { return bytes.Compare(a.ID[:], b.ID[:]) })
	return out
}

// ComputeSlots returns every bookable slot in [From, To], ordered by start
// then staff ID.
func ComputeSlots(in Input) []domain.TimeSlot {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	if !in.Service.Active || in.Service.DurationMinutes <= 0 || in.Rules.SlotIncrementMinutes <= 0 {
		return nil
	}

	earliest, latest := in.Rules.Window(in.Now)
	duration := in.Service.DurationMinutes
	buffer := in.Rules.BufferMinutes
	cal := NewCalendar(in.Business.ID, loc, in.Appointments, uuid.Nil)
	candidates := Candidates(in.Service, in.Staff)

	var out []domain.TimeSlot
	for _, d := range clock.Days(in.From, in.To) {
		// Whole day outside the booking window.
		if d.AddDays(1).Midnight(loc).Before(earliest) || d.Midnight(loc).After(latest) {
			continue
		}

		for _, staff := range candidates {
			spans, ok := WorkingSpans(in.Business, staff, d)
			if !ok {
				continue
			}
			staffID := StaffKey(staff)
			if in.Rules.DailyLimitReached(cal.Booked(in.Business.ID, staffID, d)) {
				continue
			}

			for _, span := range spans {
				for t := span.Start; t+duration+buffer <= span.End; t += in.Rules.SlotIncrementMinutes {
					start := d.At(t, loc)
					end := d.At(t+duration, loc)
					if start.Before(earliest) || start.After(latest) {
						continue
					}
					if cal.Conflicts(in.Business.ID, staffID, start, end, in.Rules.Buffer()) {
						continue
					}
					out = append(out, domain.TimeSlot{
						Start:      start,
						End:        end,
						Available:  true,
						StaffID:    staffID,
						ServiceID:  in.Service.ID,
						PriceCents: in.Service.PriceCents,
						Currency:   in.Service.Currency,
					})
				}
			}
		}
	}

	slices.SortStableFunc(out, func(a, b domain.TimeSlot) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return bytes.Compare(a.StaffID[:], b.StaffID[:])
	})
	return out
}
