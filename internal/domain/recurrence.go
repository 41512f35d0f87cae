package domain

import (
	"context"
	"errors"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/jonakson/beautyconnect/internal/clock"
)

type RecurrenceFrequency string

const (
	RecurrenceFrequencyDaily   RecurrenceFrequency = "daily"
	RecurrenceFrequencyWeekly  RecurrenceFrequency = "weekly"
	RecurrenceFrequencyMonthly RecurrenceFrequency = "monthly"
	RecurrenceFrequencyYearly  RecurrenceFrequency = "yearly"
)

// maxGapYears, scaled by the interval, stops expansion of rules whose
// filters can never match, e.g. the 31st of February. It spans two leap days
// so a rule for the 29th of February still reaches its next occurrence.
const maxGapYears = 8

// RecurrenceRule terminates by Count or Until, never both. ByDay, ByMonthDay
// and ByMonth generate candidates where the frequency allows it and filter
// otherwise.
type RecurrenceRule struct {
	Frequency  RecurrenceFrequency
	Interval   int
	Count      *int
	Until      *time.Time
	ByDay      []time.Weekday
	ByMonthDay []int
	ByMonth    []time.Month
}

func (r RecurrenceRule) Validate() error {
	switch r.Frequency {
	case RecurrenceFrequencyDaily, RecurrenceFrequencyWeekly, RecurrenceFrequencyMonthly, RecurrenceFrequencyYearly:
	default:
		return errors.New("unsupported recurrence frequency")
	}
	if r.Interval < 1 {
		return errors.New("interval must be at least 1")
	}
	if (r.Count == nil) == (r.Until == nil) {
		return errors.New("exactly one of count or until is required")
	}
	if r.Count != nil && *r.Count < 1 {
		return errors.New("count must be at least 1")
	}
	for _, wd := range r.ByDay {
		if wd < time.Sunday || wd > time.Saturday {
			return errors.New("invalid weekday")
		}
	}
	for _, md := range r.ByMonthDay {
		if md < 1 || md > 31 {
			return errors.New("invalid month day")
		}
	}
	for _, m := range r.ByMonth {
		if m < time.January || m > time.December {
			return errors.New("invalid month")
		}
	}
	return nil
}

// Occurrences lazily yields occurrence starts in dtstart's location, keeping
// dtstart's wall-clock time. dtstart itself is the first candidate.
func (r RecurrenceRule) Occurrences(dtstart time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if r.Validate() != nil {
			return
		}
		loc := dtstart.Location()
		base := clock.DateOf(dtstart)
		emitted := 0
		horizon := dtstart.AddDate(maxGapYears*r.Interval, 0, 0)

		for period := 0; ; period++ {
			dates, periodStart := r.candidates(base, period)
			if periodStart.Midnight(loc).After(horizon) {
				return
			}
			if r.Until != nil && periodStart.Midnight(loc).After(*r.Until) {
				return
			}

			for _, d := range dates {
				t := time.Date(d.Year, d.Month, d.Day, dtstart.Hour(), dtstart.Minute(), dtstart.Second(), dtstart.Nanosecond(), loc)
				if t.Before(dtstart) {
					continue
				}
				if r.Until != nil && t.After(*r.Until) {
					return
				}
				if !yield(t) {
					return
				}
				horizon = t.AddDate(maxGapYears*r.Interval, 0, 0)
				emitted++
				if r.Count != nil && emitted >= *r.Count {
					return
				}
			}
		}
	}
}

// candidates returns the sorted dates of one period and the first day of it.
func (r RecurrenceRule) candidates(base clock.Date, period int) ([]clock.Date, clock.Date) {
	step := period * r.Interval
	switch r.Frequency {
	case RecurrenceFrequencyDaily:
		d := base.AddDays(step)
		if r.matchesMonth(d) && r.matchesMonthDay(d) && r.matchesDay(d) {
			return []clock.Date{d}, d
		}
		return nil, d

	case RecurrenceFrequencyWeekly:
		monday := base.AddDays(-mondayOffset(time.Weekday(base.DayOfWeek())) + 7*step)
		days := r.ByDay
		if len(days) == 0 {
			days = []time.Weekday{time.Weekday(base.DayOfWeek())}
		}
		offsets := make([]int, 0, len(days))
		for _, wd := range days {
			offsets = append(offsets, mondayOffset(wd))
		}
		slices.Sort(offsets)
		offsets = slices.Compact(offsets)

		out := make([]clock.Date, 0, len(offsets))
		for _, off := range offsets {
			d := monday.AddDays(off)
			if r.matchesMonth(d) && r.matchesMonthDay(d) {
				out = append(out, d)
			}
		}
		return out, monday

	case RecurrenceFrequencyMonthly:
		first := clock.DateOf(time.Date(base.Year, base.Month+time.Month(step), 1, 0, 0, 0, 0, time.UTC))
		if !r.matchesMonth(first) {
			return nil, first
		}
		return r.monthDays(first.Year, first.Month, base.Day), first

	default:
		year := base.Year + step
		first := clock.Date{Year: year, Month: time.January, Day: 1}
		months := slices.Clone(r.ByMonth)
		if len(months) == 0 {
			if len(r.ByDay) > 0 || len(r.ByMonthDay) > 0 {
				for m := time.January; m <= time.December; m++ {
					months = append(months, m)
				}
			} else {
				months = []time.Month{base.Month}
			}
		}
		slices.Sort(months)
		months = slices.Compact(months)

		var out []clock.Date
		for _, m := range months {
			out = append(out, r.monthDays(year, m, base.Day)...)
		}
		return out, first
	}
}

func (r RecurrenceRule) monthDays(year int, month time.Month, defaultDay int) []clock.Date {
	last := daysIn(year, month)
	var out []clock.Date
	switch {
	case len(r.ByMonthDay) > 0:
		days := slices.Clone(r.ByMonthDay)
		slices.Sort(days)
		days = slices.Compact(days)
		for _, md := range days {
			if md > last {
				continue
			}
			d := clock.Date{Year: year, Month: month, Day: md}
			if r.matchesDay(d) {
				out = append(out, d)
			}
		}
	case len(r.ByDay) > 0:
		for md := 1; md <= last; md++ {
			d := clock.Date{Year: year, Month: month, Day: md}
			if r.matchesDay(d) {
				out = append(out, d)
			}
		}
	default:
		if defaultDay <= last {
			out = append(out, clock.Date{Year: year, Month: month, Day: defaultDay})
		}
	}
	return out
}

func (r RecurrenceRule) matchesDay(d clock.Date) bool {
	return len(r.ByDay) == 0 || slices.Contains(r.ByDay, time.Weekday(d.DayOfWeek()))
}

func (r RecurrenceRule) matchesMonthDay(d clock.Date) bool {
	return len(r.ByMonthDay) == 0 || slices.Contains(r.ByMonthDay, d.Day)
}

func (r RecurrenceRule) matchesMonth(d clock.Date) bool {
	return len(r.ByMonth) == 0 || slices.Contains(r.ByMonth, d.Month)
}

func mondayOffset(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// RecurringSeries records a recurring booking request. Each occurrence is
// booked as an ordinary appointment carrying SeriesID.
type RecurringSeries struct {
	bun.BaseModel `bun:"table:recurring_series"`

	ID         uuid.UUID           `bun:"id,pk,type:uuid"`
	BusinessID uuid.UUID           `bun:"business_id,notnull,type:uuid"`
	ServiceID  uuid.UUID           `bun:"service_id,notnull,type:uuid"`
	StaffID    uuid.UUID           `bun:"staff_id,type:uuid,nullzero"`
	CustomerID string              `bun:"customer_id,notnull"`
	Timezone   string              `bun:"timezone,notnull"`
	DTStart    time.Time           `bun:"dtstart,notnull"`
	Frequency  RecurrenceFrequency `bun:"frequency,notnull"`
	Interval   int                 `bun:"interval,notnull"`
	ByWeekday  []int16             `bun:"byweekday,array"`
	ByMonthDay []int16             `bun:"bymonthday,array"`
	ByMonth    []int16             `bun:"bymonth,array"`
	Until      *time.Time          `bun:"until"`
	Count      *int                `bun:"count"`
	CreatedAt  time.Time           `bun:"created_at,notnull"`
	UpdatedAt  time.Time           `bun:"updated_at,notnull"`
}

func (s *RecurringSeries) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (s RecurringSeries) Rule() RecurrenceRule {
	r := RecurrenceRule{
		Frequency: s.Frequency,
		Interval:  s.Interval,
		Count:     s.Count,
		Until:     s.Until,
	}
	for _, wd := range s.ByWeekday {
		r.ByDay = append(r.ByDay, time.Weekday(wd))
	}
	for _, md := range s.ByMonthDay {
		r.ByMonthDay = append(r.ByMonthDay, int(md))
	}
	for _, m := range s.ByMonth {
		r.ByMonth = append(r.ByMonth, time.Month(m))
	}
	return r
}

// SetRule copies r's fields onto the series columns.
func (s *RecurringSeries) SetRule(r RecurrenceRule) {
	s.Frequency = r.Frequency
	s.Interval = r.Interval
	s.Count = r.Count
	s.Until = r.Until
	s.ByWeekday, s.ByMonthDay, s.ByMonth = nil, nil, nil
	for _, wd := range r.ByDay {
		s.ByWeekday = append(s.ByWeekday, int16(wd))
	}
	for _, md := range r.ByMonthDay {
		s.ByMonthDay = append(s.ByMonthDay, int16(md))
	}
	for _, m := range r.ByMonth {
		s.ByMonth = append(s.ByMonth, int16(m))
	}
}

type RecurringExceptionKind string

const (
	RecurringExceptionKindSkip     RecurringExceptionKind = "skip"
	RecurringExceptionKindOverride RecurringExceptionKind = "override"
)

// RecurringException moves or drops one occurrence, keyed by the start the
// rule originally produced.
type RecurringException struct {
	bun.BaseModel `bun:"table:recurring_exceptions"`

	ID              uuid.UUID              `bun:"id,pk,type:uuid"`
	SeriesID        uuid.UUID              `bun:"series_id,notnull,type:uuid"`
	OccurrenceStart time.Time              `bun:"occurrence_start,notnull"`
	Kind            RecurringExceptionKind `bun:"kind,notnull"`
	OverrideStart   *time.Time             `bun:"override_start"`
	AppointmentID   uuid.UUID              `bun:"appointment_id,type:uuid,nullzero"`
	CreatedAt       time.Time              `bun:"created_at,notnull"`
	UpdatedAt       time.Time              `bun:"updated_at,notnull"`
}

func (e *RecurringException) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &e.ID, &e.CreatedAt, &e.UpdatedAt)
}
