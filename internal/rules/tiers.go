package rules

import "time"

// Tier is one row of the subscription table. Zero limits mean unlimited.
type Tier struct {
	Name                string `mapstructure:"name"`
	MaxStaff            int    `mapstructure:"max_staff"`
	MaxServices         int    `mapstructure:"max_services"`
	MaxBookingsPerMonth int    `mapstructure:"max_bookings_per_month"`
}

type TierTable map[string]Tier

func DefaultTiers() TierTable {
	return TierTable{
		"free":         {Name: "free", MaxStaff: 1, MaxServices: 5, MaxBookingsPerMonth: 50},
		"professional": {Name: "professional", MaxStaff: 10, MaxServices: 50, MaxBookingsPerMonth: 1000},
		"enterprise":   {Name: "enterprise", MaxStaff: 100, MaxServices: 500, MaxBookingsPerMonth: 10000},
	}
}

// Lookup returns the named tier, falling back to free for unknown names.
func (t TierTable) Lookup(name string) Tier {
	if tier, ok := t[name]; ok {
		return tier
	}
	if tier, ok := t["free"]; ok {
		return tier
	}
	return Tier{Name: name}
}

func (t Tier) MonthlyLimitReached(booked int) bool {
	return t.MaxBookingsPerMonth > 0 && booked >= t.MaxBookingsPerMonth
}

// NoShowPolicy blocks customers with too many recent no-shows.
type NoShowPolicy struct {
	MaxNoShows int
	Window     time.Duration
}

func DefaultNoShowPolicy() NoShowPolicy {
	return NoShowPolicy{MaxNoShows: 3, Window: 30 * 24 * time.Hour}
}

func (p NoShowPolicy) Blocked(noShows int) bool {
	return p.MaxNoShows > 0 && noShows >= p.MaxNoShows
}

// MonthBounds returns the calendar month containing t, in t's location.
func MonthBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}
