// Package booking decides whether a requested appointment may be written and
// serialises the write per staff member and day.
package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonakson/beautyconnect/internal/availability"
	"github.com/jonakson/beautyconnect/internal/clock"
	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/rules"
)

type Request struct {
	BusinessID uuid.UUID
	ServiceID  uuid.UUID
	// StaffID is required for services that need staff; the engine fills it
	// in when the caller leaves it empty.
	StaffID    uuid.UUID
	CustomerID string
	Start      time.Time
	// Exclude drops one appointment from the occupied set; used when moving it.
	Exclude uuid.UUID
}

// Accepted is the normalised interval to persist.
type Accepted struct {
	Start         time.Time
	End           time.Time
	OccupiedUntil time.Time
	StaffID       uuid.UUID
	Service       domain.Service
	Rules         rules.RuleSet
}

// Policy carries the declarative tables a decision is made against.
type Policy struct {
	Defaults        rules.RuleSet
	Tiers           rules.TierTable
	NoShow          rules.NoShowPolicy
	DefaultTimezone string
}

// RulesFor resolves the rule set for svc within state's business.
func (p Policy) RulesFor(state domain.BusinessState, svc domain.Service) rules.RuleSet {
	return rules.Resolve(p.Defaults, state.Business.Rules, svc.Rules)
}

// Validate re-checks one requested slot against state as of now. It reads
// nothing but its arguments, so repeated calls agree.
func (p Policy) Validate(req Request, state domain.BusinessState, now time.Time) (Accepted, error) {
	svc, ok := state.Service(req.ServiceID)
	if !ok || !svc.Active || svc.DurationMinutes <= 0 {
		return Accepted{}, reject(ReasonServiceUnavailable, "service is not offered")
	}

	var staff *domain.Staff
	if svc.RequiresStaff {
		st, ok := state.StaffMember(req.StaffID)
		if !ok || !st.Offers(svc.ID) {
			return Accepted{}, reject(ReasonStaffUnavailable, "staff member does not offer this service")
		}
		staff = &st
	}
	staffID := availability.StaffKey(staff)

	rs := p.RulesFor(state, svc)
	loc, err := state.Business.Location(p.DefaultTimezone)
	if err != nil {
		return Accepted{}, err
	}

	start := req.Start.In(loc).Truncate(time.Minute)
	end := start.Add(svc.Duration())
	earliest, latest := rs.Window(now)
	switch {
	case start.Before(now) || start.After(latest):
		return Accepted{}, reject(ReasonOutsideBookingWindow, "start is outside the booking window")
	case start.Before(earliest):
		return Accepted{}, reject(ReasonPastCutoff, "start no longer satisfies the minimum advance")
	}

	if p.NoShow.Blocked(state.CustomerNoShows) {
		return Accepted{}, reject(ReasonCustomerBlocked, "customer has too many recent no-shows")
	}
	if p.Tiers != nil && p.Tiers.Lookup(state.Business.Tier).MonthlyLimitReached(state.MonthBookings) {
		return Accepted{}, reject(ReasonMonthlyLimitExceeded, "monthly booking quota reached")
	}

	if err := checkHours(state.Business, staff, start, end, rs, loc); err != nil {
		return Accepted{}, err
	}

	day := clock.DateIn(start, loc)
	cal := availability.NewCalendar(state.Business.ID, loc, state.Appointments, req.Exclude)
	if rs.DailyLimitReached(cal.Booked(state.Business.ID, staffID, day)) {
		return Accepted{}, reject(ReasonDailyLimitExceeded, "staff member is fully booked that day")
	}
	if cal.Conflicts(state.Business.ID, staffID, start, end, rs.Buffer()) {
		return Accepted{}, reject(ReasonSlotConflict, "slot overlaps an existing appointment")
	}

	return Accepted{
		Start:         start.UTC(),
		End:           end.UTC(),
		OccupiedUntil: end.Add(rs.Buffer()).UTC(),
		StaffID:       staffID,
		Service:       svc,
		Rules:         rs,
	}, nil
}

// checkHours requires [start, end+buffer) inside one working span, starting
// on that span's slot grid. It is OutsideWorkingHours when the business is
// closed then or the start is off the grid, and StaffUnavailable when a break
// or the staff member's own hours are the cause.
func checkHours(b domain.Business, staff *domain.Staff, start, end time.Time, rs rules.RuleSet, loc *time.Location) error {
	day := clock.DateIn(start, loc)
	from := day.MinuteOfDay(start, loc)
	to := day.MinuteOfDay(end, loc) + rs.BufferMinutes

	bounds, ok := b.Hours.On(day).Bounds()
	if !ok || !bounds.Contains(from, to) {
		return reject(ReasonOutsideWorkingHours, "business is closed at that time")
	}
	spans, ok := availability.WorkingSpans(b, staff, day)
	if !ok {
		return reject(ReasonStaffUnavailable, "no working hours that day")
	}
	for _, s := range spans {
		if !s.Contains(from, to) {
			continue
		}
		// Offered starts step from the opening of their span.
		if inc := rs.SlotIncrementMinutes; inc > 0 && (from-s.Start)%inc != 0 {
			return reject(ReasonOutsideWorkingHours, "start is not on the slot grid")
		}
		return nil
	}
	return reject(ReasonStaffUnavailable, "staff member is on a break or not working")
}
