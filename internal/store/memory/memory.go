// Package memory is an in-process store for development and tests. It
// enforces the same version and overlap rules as the Postgres store.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonakson/beautyconnect/internal/conflict"
	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/store"
)

type exceptionKey struct {
	series uuid.UUID
	start  int64
}

type Store struct {
	mu         sync.Mutex
	businesses map[uuid.UUID]domain.Business
	services   map[uuid.UUID]domain.Service
	staff      map[uuid.UUID]domain.Staff
	appts      map[uuid.UUID]domain.Appointment
	series     map[uuid.UUID]domain.RecurringSeries
	exceptions map[exceptionKey]domain.RecurringException
	occupied   *conflict.Registry
}

var _ store.Store = (*Store)(nil)

// New returns an empty store. Occupied intervals are filed by day in each
// business' zone, falling back to defaultTimezone.
func New(defaultTimezone string) *Store {
	s := &Store{
		businesses: make(map[uuid.UUID]domain.Business),
		services:   make(map[uuid.UUID]domain.Service),
		staff:      make(map[uuid.UUID]domain.Staff),
		appts:      make(map[uuid.UUID]domain.Appointment),
		series:     make(map[uuid.UUID]domain.RecurringSeries),
		exceptions: make(map[exceptionKey]domain.RecurringException),
	}
	// The resolver runs with s.mu held by the caller.
	s.occupied = conflict.NewRegistry(func(id uuid.UUID) *time.Location {
		loc, err := s.businesses[id].Location(defaultTimezone)
		if err != nil {
			return time.UTC
		}
		return loc
	})
	return s
}

func newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

func occupiedInterval(a domain.Appointment) conflict.Interval {
	end := a.OccupiedUntil
	if end.Before(a.EndTime) {
		end = a.EndTime
	}
	return conflict.Interval{ID: a.ID, Start: a.StartTime, End: end}
}

func (s *Store) LoadState(ctx context.Context, q store.StateQuery) (domain.BusinessState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.businesses[q.BusinessID]
	if !ok {
		return domain.BusinessState{}, store.ErrNotFound
	}
	state := domain.BusinessState{Business: b}
	for _, svc := range s.services {
		if svc.BusinessID == b.ID {
			state.Services = append(state.Services, svc)
		}
	}
	for _, st := range s.staff {
		if st.BusinessID == b.ID {
			st.ServiceIDs = slices.Clone(st.ServiceIDs)
			state.Staff = append(state.Staff, st)
		}
	}
	for _, a := range s.appts {
		if a.BusinessID != b.ID {
			continue
		}
		if a.Status.Occupies() && a.StartTime.Before(q.To) && a.OccupiedUntil.After(q.From) {
			state.Appointments = append(state.Appointments, a)
		}
		if q.CustomerID != "" && !q.NoShowSince.IsZero() && a.CustomerID == q.CustomerID &&
			a.Status == domain.StatusNoShow && !a.StartTime.Before(q.NoShowSince) {
			state.CustomerNoShows++
		}
		if !q.MonthStart.IsZero() && a.Status != domain.StatusCancelled &&
			!a.StartTime.Before(q.MonthStart) && a.StartTime.Before(q.MonthEnd) {
			state.MonthBookings++
		}
	}
	sortByID(state.Services, func(v domain.Service) uuid.UUID { return v.ID })
	sortByID(state.Staff, func(v domain.Staff) uuid.UUID { return v.ID })
	slices.SortFunc(state.Appointments, func(a, b domain.Appointment) int { return a.StartTime.Compare(b.StartTime) })
	return state, nil
}

func (s *Store) Commit(ctx context.Context, c store.Commit) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt := c.Appointment
	b, ok := s.businesses[appt.BusinessID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	if b.Version != c.ExpectedVersion {
		return domain.Appointment{}, store.ErrStale
	}
	if appt.ID != uuid.Nil {
		if existing, ok := s.appts[appt.ID]; ok {
			if !existing.SameBooking(appt) {
				return domain.Appointment{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		}
	}

	var old domain.Appointment
	if c.Replaces != uuid.Nil {
		old, ok = s.appts[c.Replaces]
		if !ok || old.BusinessID != appt.BusinessID {
			return domain.Appointment{}, store.ErrNotFound
		}
		if !old.Status.Occupies() {
			return domain.Appointment{}, store.ErrConflict
		}
		s.occupied.Remove(old.BusinessID, old.StaffID, occupiedInterval(old))
	}

	if s.occupied.Overlaps(appt.BusinessID, appt.StaffID, appt.StartTime, occupiedInterval(appt).End) {
		if c.Replaces != uuid.Nil {
			s.occupied.Add(old.BusinessID, old.StaffID, occupiedInterval(old))
		}
		return domain.Appointment{}, store.ErrConflict
	}

	now := time.Now().UTC()
	if appt.ID == uuid.Nil {
		appt.ID = newID()
	}
	appt.CreatedAt, appt.UpdatedAt = now, now
	s.appts[appt.ID] = appt
	s.occupied.Add(appt.BusinessID, appt.StaffID, occupiedInterval(appt))

	if c.Replaces != uuid.Nil {
		old.Status = domain.StatusCancelled
		old.CancelReason = "rescheduled"
		old.UpdatedAt = now
		s.appts[old.ID] = old
	}
	return appt, nil
}

func (s *Store) GetAppointment(ctx context.Context, businessID, appointmentID uuid.UUID) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[appointmentID]
	if !ok || a.BusinessID != businessID {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAppointments(ctx context.Context, businessID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Appointment
	for _, a := range s.appts {
		if a.BusinessID == businessID && a.StartTime.Before(windowEnd) && a.EndTime.After(windowStart) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.Appointment) int { return a.StartTime.Compare(b.StartTime) })
	return out, nil
}

func (s *Store) UpdateStatus(ctx context.Context, businessID, appointmentID uuid.UUID, from, to domain.AppointmentStatus, reason string) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[appointmentID]
	if !ok || a.BusinessID != businessID {
		return domain.Appointment{}, store.ErrNotFound
	}
	if a.Status != from {
		return domain.Appointment{}, store.ErrConflict
	}
	if a.Status.Occupies() && !to.Occupies() {
		s.occupied.Remove(a.BusinessID, a.StaffID, occupiedInterval(a))
	}
	a.Status = to
	if to == domain.StatusCancelled {
		a.CancelReason = reason
	}
	a.UpdatedAt = time.Now().UTC()
	s.appts[a.ID] = a
	return a, nil
}

func (s *Store) CreateRecurringSeries(ctx context.Context, series domain.RecurringSeries) (domain.RecurringSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.businesses[series.BusinessID]; !ok {
		return domain.RecurringSeries{}, store.ErrNotFound
	}
	if series.ID == uuid.Nil {
		series.ID = newID()
	}
	now := time.Now().UTC()
	series.CreatedAt, series.UpdatedAt = now, now
	s.series[series.ID] = series
	return series, nil
}

func (s *Store) GetRecurringSeries(ctx context.Context, businessID, seriesID uuid.UUID) (domain.RecurringSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series, ok := s.series[seriesID]
	if !ok || series.BusinessID != businessID {
		return domain.RecurringSeries{}, store.ErrNotFound
	}
	return series, nil
}

func (s *Store) FindSeriesAppointment(ctx context.Context, seriesID uuid.UUID, start time.Time) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appts {
		if a.SeriesID == seriesID && a.StartTime.Equal(start) && a.Status.Occupies() {
			return a, nil
		}
	}
	return domain.Appointment{}, store.ErrNotFound
}

func (s *Store) GetRecurringException(ctx context.Context, seriesID uuid.UUID, occurrenceStart time.Time) (domain.RecurringException, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.exceptions[exceptionKey{series: seriesID, start: occurrenceStart.UnixNano()}]
	if !ok {
		return domain.RecurringException{}, store.ErrNotFound
	}
	return ex, nil
}

func (s *Store) UpsertRecurringException(ctx context.Context, ex domain.RecurringException) (domain.RecurringException, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.series[ex.SeriesID]; !ok {
		return domain.RecurringException{}, store.ErrNotFound
	}
	key := exceptionKey{series: ex.SeriesID, start: ex.OccurrenceStart.UnixNano()}
	now := time.Now().UTC()
	if existing, ok := s.exceptions[key]; ok {
		ex.ID, ex.CreatedAt = existing.ID, existing.CreatedAt
	} else {
		ex.ID, ex.CreatedAt = newID(), now
	}
	ex.UpdatedAt = now
	s.exceptions[key] = ex
	return ex, nil
}

func (s *Store) SaveBusiness(ctx context.Context, b domain.Business) (domain.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if b.ID == uuid.Nil {
		b.ID = newID()
	}
	if existing, ok := s.businesses[b.ID]; ok {
		b.CreatedAt = existing.CreatedAt
		b.Version = existing.Version + 1
	} else {
		b.CreatedAt = now
		b.Version = 1
	}
	b.UpdatedAt = now
	s.businesses[b.ID] = b
	return b, nil
}

func (s *Store) SaveService(ctx context.Context, svc domain.Service) (domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.bumpLocked(svc.BusinessID); err != nil {
		return domain.Service{}, err
	}
	now := time.Now().UTC()
	if svc.ID == uuid.Nil {
		svc.ID = newID()
	}
	if existing, ok := s.services[svc.ID]; ok {
		svc.CreatedAt = existing.CreatedAt
	} else {
		svc.CreatedAt = now
	}
	svc.UpdatedAt = now
	s.services[svc.ID] = svc
	return svc, nil
}

func (s *Store) SaveStaff(ctx context.Context, st domain.Staff) (domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.bumpLocked(st.BusinessID); err != nil {
		return domain.Staff{}, err
	}
	now := time.Now().UTC()
	if st.ID == uuid.Nil {
		st.ID = newID()
	}
	if existing, ok := s.staff[st.ID]; ok {
		st.CreatedAt = existing.CreatedAt
	} else {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	st.ServiceIDs = slices.Clone(st.ServiceIDs)
	s.staff[st.ID] = st
	return st, nil
}

func (s *Store) bumpLocked(businessID uuid.UUID) error {
	b, ok := s.businesses[businessID]
	if !ok {
		return store.ErrNotFound
	}
	b.Version++
	b.UpdatedAt = time.Now().UTC()
	s.businesses[businessID] = b
	return nil
}

func sortByID[T any](items []T, id func(T) uuid.UUID) {
	slices.SortFunc(items, func(a, b T) int {
		x, y := id(a), id(b)
		return slices.Compare(x[:], y[:])
	})
}
