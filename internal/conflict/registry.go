package conflict

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonakson/beautyconnect/internal/clock"
)

// Key identifies one staff member's calendar day. StaffID is uuid.Nil for
// the unassigned calendar of a business.
type Key struct {
	BusinessID uuid.UUID
	StaffID    uuid.UUID
	Day        clock.Date
}

// Registry holds one Index per Key and keeps them current as appointments are
// written. An interval is filed under every local day it touches.
type Registry struct {
	mu      sync.RWMutex
	loc     func(businessID uuid.UUID) *time.Location
	indexes map[Key]*Index
}

// NewRegistry takes the resolver used to pick each business' local day.
func NewRegistry(loc func(businessID uuid.UUID) *time.Location) *Registry {
	return &Registry{loc: loc, indexes: make(map[Key]*Index)}
}

func (r *Registry) Add(businessID, staffID uuid.UUID, it Interval) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys(businessID, staffID, it) {
		ix, ok := r.indexes[k]
		if !ok {
			ix = NewIndex(nil)
			r.indexes[k] = ix
		}
		ix.Insert(it)
	}
}

func (r *Registry) Remove(businessID, staffID uuid.UUID, it Interval) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys(businessID, staffID, it) {
		if ix, ok := r.indexes[k]; ok {
			ix.Remove(it.ID)
			if ix.Len() == 0 {
				delete(r.indexes, k)
			}
		}
	}
}

// Overlaps checks [start, end) against every day the range touches.
func (r *Registry) Overlaps(businessID, staffID uuid.UUID, start, end time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.keys(businessID, staffID, Interval{Start: start, End: end}) {
		if ix, ok := r.indexes[k]; ok && ix.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (r *Registry) Count(k Key) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ix, ok := r.indexes[k]; ok {
		return ix.Len()
	}
	return 0
}

func (r *Registry) keys(businessID, staffID uuid.UUID, it Interval) []Key {
	loc := time.UTC
	if r.loc != nil {
		if l := r.loc(businessID); l != nil {
			loc = l
		}
	}
	last := it.End
	if last.After(it.Start) {
		last = last.Add(-time.Nanosecond)
	}
	var out []Key
	for _, d := range clock.Days(clock.DateIn(it.Start, loc), clock.DateIn(last, loc)) {
		out = append(out, Key{BusinessID: businessID, StaffID: staffID, Day: d})
	}
	return out
}
