package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

// Occupies reports whether an appointment in this status holds calendar space.
func (s AppointmentStatus) Occupies() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanBecome lists the transitions reachable through a status update.
func (s AppointmentStatus) CanBecome(next AppointmentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusNoShow || next == StatusCancelled
	default:
		return false
	}
}

// Appointment is one booked interval. OccupiedUntil is EndTime plus the buffer
// in force when it was booked; the storage overlap constraint runs on
// [StartTime, OccupiedUntil). StaffID is uuid.Nil for services without staff.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID            uuid.UUID         `bun:"id,pk,type:uuid"`
	BusinessID    uuid.UUID         `bun:"business_id,notnull,type:uuid"`
	ServiceID     uuid.UUID         `bun:"service_id,notnull,type:uuid"`
	StaffID       uuid.UUID         `bun:"staff_id,type:uuid,nullzero"`
	CustomerID    string            `bun:"customer_id,notnull"`
	SeriesID      uuid.UUID         `bun:"series_id,type:uuid,nullzero"`
	Status        AppointmentStatus `bun:"status,notnull"`
	StartTime     time.Time         `bun:"start_time,notnull"`
	EndTime       time.Time         `bun:"end_time,notnull"`
	OccupiedUntil time.Time         `bun:"occupied_until,notnull"`
	PriceCents    int64             `bun:"price_cents,notnull"`
	Currency      string            `bun:"currency,notnull"`
	Notes         string            `bun:"notes"`
	CancelReason  string            `bun:"cancel_reason"`
	CreatedAt     time.Time         `bun:"created_at,notnull"`
	UpdatedAt     time.Time         `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// SameBooking compares the fields an idempotent replay must repeat.
func (a Appointment) SameBooking(o Appointment) bool {
	return a.BusinessID == o.BusinessID &&
		a.ServiceID == o.ServiceID &&
		a.StaffID == o.StaffID &&
		a.CustomerID == o.CustomerID &&
		a.StartTime.Equal(o.StartTime) &&
		a.EndTime.Equal(o.EndTime)
}

// TimeSlot is a computed candidate interval. It is never persisted.
type TimeSlot struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Available  bool      `json:"available"`
	StaffID    uuid.UUID `json:"staff_id"`
	ServiceID  uuid.UUID `json:"service_id"`
	PriceCents int64     `json:"price_cents"`
	Currency   string    `json:"currency"`
}

// BusinessState is a consistent snapshot of everything a booking decision
// reads. Appointments holds only occupying appointments touching the
// requested range.
type BusinessState struct {
	Business     Business
	Services     []Service
	Staff        []Staff
	Appointments []Appointment

	// CustomerNoShows counts the requesting customer's recent no-shows.
	CustomerNoShows int
	// MonthBookings counts the business' bookings in the requested month.
	MonthBookings int
}

func (s BusinessState) Service(id uuid.UUID) (Service, bool) {
	for _, svc := range s.Services {
		if svc.ID == id {
			return svc, true
		}
	}
	return Service{}, false
}

func (s BusinessState) StaffMember(id uuid.UUID) (Staff, bool) {
	for _, st := range s.Staff {
		if st.ID == id {
			return st, true
		}
	}
	return Staff{}, false
}
