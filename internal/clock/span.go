package clock

import "sort"

// Span is a half-open range of minutes since midnight.
type Span struct {
	Start int
	End   int
}

func (s Span) Valid() bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= MinutesPerDay
}

func (s Span) Contains(start, end int) bool {
	return s.Start <= start && end <= s.End
}

// OpenSpans returns [open, close) minus breaks. ok is false when the input
// is defective: open >= close, a break outside [open, close), or breaks that
// overlap each other.
func OpenSpans(open Span, breaks []Span) (spans []Span, ok bool) {
	if !open.Valid() {
		return nil, false
	}
	sorted := make([]Span, len(breaks))
	copy(sorted, breaks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	cursor := open.Start
	for i, b := range sorted {
		if !b.Valid() || b.Start < open.Start || b.End > open.End {
			return nil, false
		}
		if i > 0 && RangesOverlap(sorted[i-1].Start, sorted[i-1].End, b.Start, b.End) {
			return nil, false
		}
		if b.Start > cursor {
			spans = append(spans, Span{Start: cursor, End: b.Start})
		}
		if b.End > cursor {
			cursor = b.End
		}
	}
	if cursor < open.End {
		spans = append(spans, Span{Start: cursor, End: open.End})
	}
	return spans, true
}

// Intersect returns the pairwise intersection of two sorted, disjoint span lists.
func Intersect(a, b []Span) []Span {
	var out []Span
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := max(a[i].Start, b[j].Start)
		end := min(a[i].End, b[j].End)
		if start < end {
			out = append(out, Span{Start: start, End: end})
		}
		if a[i].End < b[j].End {
			i++
		} else {
			j++
		}
	}
	return out
}
