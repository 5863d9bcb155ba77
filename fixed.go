package tscache

import (
	"fmt"
	"sort"
	"time"
)

// FixedCache wraps a pre-materialized, fully known chronological sequence.
// It is immutable after construction: the backing sequence is copied in,
// never aliased to caller-mutable storage, and every returned slice is a
// fresh copy. Read-only, so trivially safe for concurrent use.
type FixedCache[T TimeStamped] struct {
	entries       []T
	neighborsSize int
}

// NewFixedCache copies entries into a new cache answering neighbor queries
// of width neighborsSize. The input need not be sorted; the copy is.
func NewFixedCache[T TimeStamped](neighborsSize int, entries []T) (*FixedCache[T], error) {
	if neighborsSize <= 0 {
		return nil, fmt.Errorf("%w: neighbors size %d, must be at least 1", ErrInvalidConfig, neighborsSize)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries provided", ErrInvalidConfig)
	}
	if neighborsSize > len(entries) {
		return nil, fmt.Errorf("%w: neighbors size %d exceeds %d available entries",
			ErrInvalidConfig, neighborsSize, len(entries))
	}

	own := make([]T, len(entries))
	copy(own, entries)
	sort.SliceStable(own, func(i, j int) bool {
		return own[i].Date().Before(own[j].Date())
	})

	return &FixedCache[T]{entries: own, neighborsSize: neighborsSize}, nil
}

// EmptyFixedCache returns a cache with zero entries and a zero neighbor
// window. Every neighbor, earliest and latest query fails. Useful as a
// placeholder where a cache is required but no data exists.
func EmptyFixedCache[T TimeStamped]() *FixedCache[T] {
	return &FixedCache[T]{}
}

// GetNeighbors returns the neighborsSize entries chronologically closest to
// date. The window always contains the last entry at or before date and is
// clamped inside the known range. Fails with a RangeError when date falls
// before the earliest or after the latest entry.
func (c *FixedCache[T]) GetNeighbors(date time.Time) ([]T, error) {
	if len(c.entries) == 0 {
		return nil, fmt.Errorf("cannot return neighbors: %w", ErrEmptyCache)
	}
	if date.Before(c.entries[0].Date()) {
		return nil, &RangeError{Query: date, Boundary: c.entries[0].Date(), Side: RangeEarlier}
	}
	if last := c.entries[len(c.entries)-1].Date(); date.After(last) {
		return nil, &RangeError{Query: date, Boundary: last, Side: RangeLater}
	}
	return window(c.entries, c.neighborsSize, date), nil
}

// GetEarliest returns the first entry.
func (c *FixedCache[T]) GetEarliest() (T, error) {
	if len(c.entries) == 0 {
		var zero T
		return zero, fmt.Errorf("cannot return earliest entry: %w", ErrEmptyCache)
	}
	return c.entries[0], nil
}

// GetLatest returns the last entry.
func (c *FixedCache[T]) GetLatest() (T, error) {
	if len(c.entries) == 0 {
		var zero T
		return zero, fmt.Errorf("cannot return latest entry: %w", ErrEmptyCache)
	}
	return c.entries[len(c.entries)-1], nil
}

// GetAll returns a copy of every entry in chronological order.
func (c *FixedCache[T]) GetAll() []T {
	out := make([]T, len(c.entries))
	copy(out, c.entries)
	return out
}

// NeighborsSize returns the width of the windows returned by GetNeighbors.
func (c *FixedCache[T]) NeighborsSize() int {
	return c.neighborsSize
}
