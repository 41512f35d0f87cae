// Package clock holds the calendar arithmetic shared by slot computation and
// booking validation. Clock times are minutes since local midnight and calendar
// dates carry no zone until they are placed into a business location.
package clock

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var ErrInvalidFormat = errors.New("invalid format")

const MinutesPerDay = 24 * 60

// ParseClock converts an HH:MM string into minutes since midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: clock %q", ErrInvalidFormat, s)
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: clock %q", ErrInvalidFormat, s)
	}
	m, err := strconv.Atoi(s[3:])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: clock %q", ErrInvalidFormat, s)
	}
	return h*60 + m, nil
}

// FormatClock is the inverse of ParseClock. 24:00 is rendered for end-of-day.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// RangesOverlap reports whether [s1,e1) and [s2,e2) intersect.
func RangesOverlap(s1, e1, s2, e2 int) bool {
	return s1 < e2 && s2 < e1
}

// TimesOverlap is RangesOverlap over instants.
func TimesOverlap(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// Date is a calendar day with no zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q", ErrInvalidFormat, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// DateIn returns the calendar day of t as observed in loc.
func DateIn(t time.Time, loc *time.Location) Date {
	return DateOf(t.In(loc))
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) Before(o Date) bool {
	return d.Compare(o) < 0
}

func (d Date) After(o Date) bool {
	return d.Compare(o) > 0
}

func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

// DayOfWeek returns 0..6 with 0 = Sunday, the index used by weekly hours.
func (d Date) DayOfWeek() int {
	return int(time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday())
}

// At places minutes-since-midnight of d into loc. Values past 24:00 roll over
// into the next day, matching time.Date normalisation.
func (d Date) At(minutes int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, minutes/60, minutes%60, 0, 0, loc)
}

// Midnight is the first instant of d in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	return d.At(0, loc)
}

// MinuteOfDay returns the minutes elapsed since d's midnight in loc for t.
// It is negative or beyond MinutesPerDay when t falls on another day.
func (d Date) MinuteOfDay(t time.Time, loc *time.Location) int {
	lt := t.In(loc)
	days := DateOf(lt).daysSince(d)
	return days*MinutesPerDay + lt.Hour()*60 + lt.Minute()
}

func (d Date) daysSince(o Date) int {
	a := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	b := time.Date(o.Year, o.Month, o.Day, 0, 0, 0, 0, time.UTC)
	return int(a.Sub(b) / (24 * time.Hour))
}

// Days iterates every date in [from, to] inclusive.
func Days(from, to Date) []Date {
	if from.After(to) {
		return nil
	}
	out := make([]Date, 0, to.daysSince(from)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// LoadLocation falls back to fallback when name is empty.
func LoadLocation(name, fallback string) (*time.Location, error) {
	if name == "" {
		name = fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: time zone %q", ErrInvalidFormat, name)
	}
	return loc, nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
