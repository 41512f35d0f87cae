package availability

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonakson/beautyconnect/internal/clock"
	"github.com/jonakson/beautyconnect/internal/conflict"
	"github.com/jonakson/beautyconnect/internal/domain"
)

// WorkingSpans returns the bookable minute ranges for d: business hours minus
// breaks, intersected with the staff member's own hours when staff is set.
// ok is false when the business is closed or either side is defective.
func WorkingSpans(b domain.Business, staff *domain.Staff, d clock.Date) ([]clock.Span, bool) {
	spans, ok := b.Hours.On(d).Spans()
	if !ok {
		return nil, false
	}
	if staff == nil {
		return spans, true
	}
	own, ok := staff.Hours.On(d).Spans()
	if !ok {
		return nil, false
	}
	return clock.Intersect(spans, own), true
}

// Calendar is the occupied time of one business, per staff member and day.
type Calendar struct {
	loc      *time.Location
	registry *conflict.Registry
	perDay   map[conflict.Key]int
}

// NewCalendar files every occupying appointment except exclude.
func NewCalendar(businessID uuid.UUID, loc *time.Location, appts []domain.Appointment, exclude uuid.UUID) *Calendar {
	c := &Calendar{
		loc:      loc,
		registry: conflict.NewRegistry(func(uuid.UUID) *time.Location { return loc }),
		perDay:   make(map[conflict.Key]int),
	}
	for _, a := range appts {
		if a.ID == exclude || !a.Status.Occupies() || a.BusinessID != businessID {
			continue
		}
		c.registry.Add(businessID, a.StaffID, conflict.Interval{ID: a.ID, Start: a.StartTime, End: a.EndTime})
		c.perDay[conflict.Key{BusinessID: businessID, StaffID: a.StaffID, Day: clock.DateIn(a.StartTime, loc)}]++
	}
	return c
}

// Conflicts tests the buffer envelope [start-buffer, end+buffer) against the
// staff member's occupied intervals.
func (c *Calendar) Conflicts(businessID, staffID uuid.UUID, start, end time.Time, buffer time.Duration) bool {
	return c.registry.Overlaps(businessID, staffID, start.Add(-buffer), end.Add(buffer))
}

// Booked counts appointments starting on d for the staff member.
func (c *Calendar) Booked(businessID, staffID uuid.UUID, d clock.Date) int {
	return c.perDay[conflict.Key{BusinessID: businessID, StaffID: staffID, Day: d}]
}

// StaffKey is the calendar owner for a candidate from Candidates.
func StaffKey(s *domain.Staff) uuid.UUID {
	if s == nil {
		return uuid.Nil
	}
	return s.ID
}
