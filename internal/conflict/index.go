// Package conflict answers "does this interval overlap anything already
// booked" for one staff member on one day.
package conflict

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type Interval struct {
	ID    uuid.UUID
	Start time.Time
	End   time.Time
}

// Index keeps intervals sorted by start with a running maximum of end times,
// so an overlap query is one binary search.
type Index struct {
	items  []Interval
	maxEnd []time.Time
}

func NewIndex(items []Interval) *Index {
	ix := &Index{items: make([]Interval, 0, len(items))}
	for _, it := range items {
		if it.Start.Before(it.End) {
			ix.items = append(ix.items, it)
		}
	}
	sort.SliceStable(ix.items, func(i, j int) bool { return ix.items[i].Start.Before(ix.items[j].Start) })
	ix.maxEnd = make([]time.Time, len(ix.items))
	ix.rebuildFrom(0)
	return ix
}

func (ix *Index) Len() int {
	return len(ix.items)
}

// Intervals returns a copy in start order.
func (ix *Index) Intervals() []Interval {
	out := make([]Interval, len(ix.items))
	copy(out, ix.items)
	return out
}

// Overlaps reports whether [start, end) intersects any stored interval.
func (ix *Index) Overlaps(start, end time.Time) bool {
	// Only intervals starting before end can intersect.
	n := sort.Search(len(ix.items), func(i int) bool { return !ix.items[i].Start.Before(end) })
	if n == 0 {
		return false
	}
	return ix.maxEnd[n-1].After(start)
}

// Insert adds an interval, replacing any existing one with the same ID.
func (ix *Index) Insert(it Interval) {
	ix.Remove(it.ID)
	if !it.Start.Before(it.End) {
		return
	}
	pos := sort.Search(len(ix.items), func(i int) bool { return ix.items[i].Start.After(it.Start) })
	ix.items = append(ix.items, Interval{})
	copy(ix.items[pos+1:], ix.items[pos:])
	ix.items[pos] = it
	ix.maxEnd = append(ix.maxEnd, time.Time{})
	ix.rebuildFrom(pos)
}

func (ix *Index) Remove(id uuid.UUID) bool {
	for i, it := range ix.items {
		if it.ID != id {
			continue
		}
		ix.items = append(ix.items[:i], ix.items[i+1:]...)
		ix.maxEnd = ix.maxEnd[:len(ix.items)]
		ix.rebuildFrom(i)
		return true
	}
	return false
}

func (ix *Index) rebuildFrom(pos int) {
	for i := pos; i < len(ix.items); i++ {
		end := ix.items[i].End
		if i > 0 && ix.maxEnd[i-1].After(end) {
			end = ix.maxEnd[i-1]
		}
		ix.maxEnd[i] = end
	}
}
