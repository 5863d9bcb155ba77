package tscache

import "time"

// Generator produces new entries on demand to fill gaps in a DynamicCache.
//
// If existing is earlier than date, the returned entries must cover at least
// (existing, date]; if later, at least [date, existing). If existing is nil,
// the entries must cover date itself. The generator may return a wider range
// than requested (the cache keeps everything, deduplicating by timestamp),
// but the output must be chronologically sorted. Entries already generated by
// an earlier call (typically the one at existing) may be returned again and
// are silently dropped.
//
// If entries must sit on a regular grid (for example one sample every hour),
// the generator must place them on that grid by itself, even when asked for
// ranges in random order: the cache merges entry runs returned by different
// calls into the same slot, and only grid-aligned output deduplicates
// cleanly across the seams.
//
// A generator that cannot produce data before or after its own known range
// must return a RangeError; the cache propagates it unchanged. As long as a
// generator is referenced by a single DynamicCache it is never invoked from
// two goroutines simultaneously, so implementations need no locking of their
// own.
type Generator[T TimeStamped] interface {
	Generate(existing *time.Time, date time.Time) ([]T, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc[T TimeStamped] func(existing *time.Time, date time.Time) ([]T, error)

// Generate calls f.
func (f GeneratorFunc[T]) Generate(existing *time.Time, date time.Time) ([]T, error) {
	return f(existing, date)
}
