package tscache

import (
	"sort"
	"time"
)

// TimeStamped is implemented by every payload stored in a cache. Entries
// within a materialized sequence are strictly increasing by date.
type TimeStamped interface {
	// Date returns the instant this entry is attached to.
	Date() time.Time
}

// centralIndex returns the index of the last entry whose date is at or
// before date, or -1 if date precedes every entry.
func centralIndex[T TimeStamped](entries []T, date time.Time) int {
	return sort.Search(len(entries), func(i int) bool {
		return entries[i].Date().After(date)
	}) - 1
}

// windowStart returns the start index of the size-wide neighbor window
// centered on the last entry at or before date, clamped into
// [0, len(entries)-size]. Callers must ensure len(entries) >= size.
func windowStart[T TimeStamped](entries []T, size int, date time.Time) int {
	start := centralIndex(entries, date) - (size-1)/2
	if start < 0 {
		start = 0
	}
	if limit := len(entries) - size; start > limit {
		start = limit
	}
	return start
}

// window returns a copy of the size-wide neighbor window around date.
func window[T TimeStamped](entries []T, size int, date time.Time) []T {
	start := windowStart(entries, size, date)
	out := make([]T, size)
	copy(out, entries[start:start+size])
	return out
}

// chronological reports whether entries are sorted by non-decreasing date.
func chronological[T TimeStamped](entries []T) bool {
	for i := 1; i < len(entries); i++ {
		if entries[i].Date().Before(entries[i-1].Date()) {
			return false
		}
	}
	return true
}

// dedupe removes entries sharing a date with their predecessor, keeping the
// first instance. Input must be chronologically sorted; the input slice is
// reused when nothing is dropped.
func dedupe[T TimeStamped](entries []T) []T {
	for i := 1; i < len(entries); i++ {
		if entries[i].Date().Equal(entries[i-1].Date()) {
			out := make([]T, i, len(entries))
			copy(out, entries[:i])
			for _, e := range entries[i:] {
				if !e.Date().Equal(out[len(out)-1].Date()) {
					out = append(out, e)
				}
			}
			return out
		}
	}
	return entries
}

// mergeRuns merges two sorted runs into one sorted run, dropping entries of b
// whose date already exists in a.
func mergeRuns[T TimeStamped](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Date().Before(b[j].Date()):
			out = append(out, a[i])
			i++
		case b[j].Date().Before(a[i].Date()):
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return dedupe(out)
}
