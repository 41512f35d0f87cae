// Package rules resolves the booking policy in effect for one business and
// service. A RuleSet is a value: build a fresh one per request.
package rules

import (
	"errors"
	"time"
)

type RuleSet struct {
	MinAdvanceHours               int
	MaxAdvanceDays                int
	BufferMinutes                 int
	SlotIncrementMinutes          int
	CancellationWindowHours       int
	RescheduleWindowHours         int
	MaxAppointmentsPerStaffPerDay int
}

// Defaults mirrors the platform-wide booking policy.
func Defaults() RuleSet {
	return RuleSet{
		MinAdvanceHours:               2,
		MaxAdvanceDays:                90,
		BufferMinutes:                 15,
		SlotIncrementMinutes:          15,
		CancellationWindowHours:       24,
		RescheduleWindowHours:         2,
		MaxAppointmentsPerStaffPerDay: 20,
	}
}

// Overrides carries the optional per-business or per-service values. Nil
// fields inherit from the level below.
type Overrides struct {
	MinAdvanceHours               *int `json:"min_advance_hours,omitempty"`
	MaxAdvanceDays                *int `json:"max_advance_days,omitempty"`
	BufferMinutes                 *int `json:"buffer_minutes,omitempty"`
	SlotIncrementMinutes          *int `json:"slot_increment_minutes,omitempty"`
	CancellationWindowHours       *int `json:"cancellation_window_hours,omitempty"`
	RescheduleWindowHours         *int `json:"reschedule_window_hours,omitempty"`
	MaxAppointmentsPerStaffPerDay *int `json:"max_appointments_per_staff_per_day,omitempty"`
}

// Resolve layers business then service overrides on top of defaults; the
// service value wins when both are present.
func Resolve(defaults RuleSet, business, service Overrides) RuleSet {
	rs := defaults
	for _, o := range []Overrides{business, service} {
		apply(&rs.MinAdvanceHours, o.MinAdvanceHours)
		apply(&rs.MaxAdvanceDays, o.MaxAdvanceDays)
		apply(&rs.BufferMinutes, o.BufferMinutes)
		apply(&rs.SlotIncrementMinutes, o.SlotIncrementMinutes)
		apply(&rs.CancellationWindowHours, o.CancellationWindowHours)
		apply(&rs.RescheduleWindowHours, o.RescheduleWindowHours)
		apply(&rs.MaxAppointmentsPerStaffPerDay, o.MaxAppointmentsPerStaffPerDay)
	}
	return rs
}

func apply(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func (r RuleSet) Validate() error {
	switch {
	case r.MinAdvanceHours < 0:
		return errors.New("min_advance_hours must not be negative")
	case r.MaxAdvanceDays <= 0:
		return errors.New("max_advance_days must be positive")
	case time.Duration(r.MinAdvanceHours)*time.Hour > time.Duration(r.MaxAdvanceDays)*24*time.Hour:
		return errors.New("min_advance_hours exceeds max_advance_days")
	case r.BufferMinutes < 0:
		return errors.New("buffer_minutes must not be negative")
	case r.SlotIncrementMinutes <= 0:
		return errors.New("slot_increment_minutes must be positive")
	case r.CancellationWindowHours < 0 || r.RescheduleWindowHours < 0:
		return errors.New("cancellation windows must not be negative")
	case r.MaxAppointmentsPerStaffPerDay < 0:
		return errors.New("max_appointments_per_staff_per_day must not be negative")
	}
	return nil
}

func (r RuleSet) MinAdvance() time.Duration {
	return time.Duration(r.MinAdvanceHours) * time.Hour
}

// MaxAdvance is measured in whole days of wall time from now.
func (r RuleSet) MaxAdvance() time.Duration {
	return time.Duration(r.MaxAdvanceDays) * 24 * time.Hour
}

func (r RuleSet) Buffer() time.Duration {
	return time.Duration(r.BufferMinutes) * time.Minute
}

func (r RuleSet) CancellationWindow() time.Duration {
	return time.Duration(r.CancellationWindowHours) * time.Hour
}

func (r RuleSet) RescheduleWindow() time.Duration {
	return time.Duration(r.RescheduleWindowHours) * time.Hour
}

// Window returns the inclusive bounds a slot start must fall within.
func (r RuleSet) Window(now time.Time) (earliest, latest time.Time) {
	return now.Add(r.MinAdvance()), now.Add(r.MaxAdvance())
}

// DailyLimitReached treats zero as unlimited.
func (r RuleSet) DailyLimitReached(booked int) bool {
	return r.MaxAppointmentsPerStaffPerDay > 0 && booked >= r.MaxAppointmentsPerStaffPerDay
}

func Int(v int) *int {
	return &v
}
