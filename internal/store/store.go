package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonakson/beautyconnect/internal/domain"
)

// RecurringConflictLookahead bounds how far ahead a recurring series is booked.
const RecurringConflictLookahead = 180 * 24 * time.Hour

// StateQuery selects the snapshot a booking decision reads.
type StateQuery struct {
	BusinessID uuid.UUID
	// Occupying appointments overlapping [From, To) are loaded.
	From time.Time
	To   time.Time

	// CustomerID and NoShowSince select the no-show count; empty skips it.
	CustomerID  string
	NoShowSince time.Time

	// MonthStart and MonthEnd select the monthly booking count; zero skips it.
	MonthStart time.Time
	MonthEnd   time.Time
}

// Commit is a validated write. The store rejects it with ErrStale when the
// business version moved past ExpectedVersion and with ErrConflict when the
// interval overlaps an occupying appointment of the same staff calendar.
// When Replaces is set that appointment is cancelled in the same transaction.
type Commit struct {
	Appointment     domain.Appointment
	ExpectedVersion int64
	Replaces        uuid.UUID
}

type BookingStore interface {
	LoadState(ctx context.Context, q StateQuery) (domain.BusinessState, error)
	Commit(ctx context.Context, c Commit) (domain.Appointment, error)
}

type AppointmentStore interface {
	BookingStore

	GetAppointment(ctx context.Context, businessID, appointmentID uuid.UUID) (domain.Appointment, error)
	ListAppointments(ctx context.Context, businessID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	// UpdateStatus moves an appointment from one status to another; it
	// returns ErrConflict when the current status is not from.
	UpdateStatus(ctx context.Context, businessID, appointmentID uuid.UUID, from, to domain.AppointmentStatus, reason string) (domain.Appointment, error)

	CreateRecurringSeries(ctx context.Context, series domain.RecurringSeries) (domain.RecurringSeries, error)
	GetRecurringSeries(ctx context.Context, businessID, seriesID uuid.UUID) (domain.RecurringSeries, error)
	FindSeriesAppointment(ctx context.Context, seriesID uuid.UUID, start time.Time) (domain.Appointment, error)
	// GetRecurringException returns the exception recorded for the
	// occurrence the rule produced at occurrenceStart, or ErrNotFound.
	GetRecurringException(ctx context.Context, seriesID uuid.UUID, occurrenceStart time.Time) (domain.RecurringException, error)
	UpsertRecurringException(ctx context.Context, ex domain.RecurringException) (domain.RecurringException, error)
}

// CatalogStore writes business configuration. Every write bumps the
// business version so in-flight decisions against older data go stale.
type CatalogStore interface {
	SaveBusiness(ctx context.Context, b domain.Business) (domain.Business, error)
	SaveService(ctx context.Context, s domain.Service) (domain.Service, error)
	SaveStaff(ctx context.Context, s domain.Staff) (domain.Staff, error)
}

type Store interface {
	AppointmentStore
	CatalogStore
}
