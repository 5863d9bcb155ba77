package tscache

import (
	"sort"
	"sync/atomic"
	"time"
)

// slot is a contiguous, time-ordered run of materialized entries covering
// part of the timeline. Its content is an immutable slice replaced wholesale
// on growth, so readers holding a loaded slice never observe a torn state.
// lastAccess carries the cache-wide access tick used for LRU eviction
// ranking.
type slot[T TimeStamped] struct {
	data       atomic.Pointer[[]T]
	lastAccess atomic.Int64
}

func newSlot[T TimeStamped](entries []T, tick int64) *slot[T] {
	s := &slot[T]{}
	s.data.Store(&entries)
	s.lastAccess.Store(tick)
	return s
}

func (s *slot[T]) entries() []T {
	return *s.data.Load()
}

func (s *slot[T]) minDate() time.Time {
	e := s.entries()
	return e[0].Date()
}

func (s *slot[T]) maxDate() time.Time {
	e := s.entries()
	return e[len(e)-1].Date()
}

func (s *slot[T]) covers(date time.Time) bool {
	return !date.Before(s.minDate()) && !date.After(s.maxDate())
}

func (s *slot[T]) touch(tick int64) {
	s.lastAccess.Store(tick)
}

// slotTable is an immutable snapshot of the resident slots, ordered by
// minimum date and pairwise disjoint in time range. Structural mutation
// builds a new table and publishes it atomically.
type slotTable[T TimeStamped] struct {
	slots []*slot[T]
}

// covering returns the slot whose range contains date, or nil.
func (t *slotTable[T]) covering(date time.Time) *slot[T] {
	if i := t.indexAtOrBefore(date); i >= 0 && t.slots[i].covers(date) {
		return t.slots[i]
	}
	return nil
}

// nearby returns the slot whose edge is within gap of date, preferring the
// closer edge when two slots qualify and the earlier slot on a tie. Returns
// nil when no slot qualifies (including when date is covered by none and gap
// is zero).
func (t *slotTable[T]) nearby(date time.Time, gap time.Duration) *slot[T] {
	i := t.indexAtOrBefore(date)

	var before, after *slot[T]
	var beforeGap, afterGap time.Duration
	if i >= 0 {
		before = t.slots[i]
		beforeGap = date.Sub(before.maxDate())
		if beforeGap < 0 { // covered
			return before
		}
	}
	if i+1 < len(t.slots) {
		after = t.slots[i+1]
		afterGap = after.minDate().Sub(date)
	}

	switch {
	case before != nil && beforeGap <= gap && (after == nil || afterGap > gap || beforeGap <= afterGap):
		return before
	case after != nil && afterGap <= gap:
		return after
	default:
		return nil
	}
}

// indexAtOrBefore returns the index of the last slot starting at or before
// date, or -1.
func (t *slotTable[T]) indexAtOrBefore(date time.Time) int {
	return sort.Search(len(t.slots), func(i int) bool {
		return t.slots[i].minDate().After(date)
	}) - 1
}

func (t *slotTable[T]) entryCount() int {
	n := 0
	for _, s := range t.slots {
		n += len(s.entries())
	}
	return n
}

// withSlot returns a new table with s inserted in date order.
func (t *slotTable[T]) withSlot(s *slot[T]) *slotTable[T] {
	at := sort.Search(len(t.slots), func(i int) bool {
		return t.slots[i].minDate().After(s.minDate())
	})
	slots := make([]*slot[T], 0, len(t.slots)+1)
	slots = append(slots, t.slots[:at]...)
	slots = append(slots, s)
	slots = append(slots, t.slots[at:]...)
	return &slotTable[T]{slots: slots}
}

// without returns a new table with victim removed.
func (t *slotTable[T]) without(victim *slot[T]) *slotTable[T] {
	slots := make([]*slot[T], 0, len(t.slots)-1)
	for _, s := range t.slots {
		if s != victim {
			slots = append(slots, s)
		}
	}
	return &slotTable[T]{slots: slots}
}
