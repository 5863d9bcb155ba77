package tscache

import (
	"fmt"
	"time"
)

// Config holds DynamicCache construction parameters.
type Config struct {
	// NeighborsSize is the width of the window returned by GetNeighbors.
	// Must be at least 1.
	NeighborsSize int

	// MaxSlots bounds the number of resident slots. Once exceeded, the
	// least-recently-used slot not involved in the active query is evicted
	// whole. Must be at least 1.
	MaxSlots int

	// MaxSpan caps the duration a single slot may grow to. Growth past the
	// cap materializes the surplus as a separate adjacent slot instead of
	// truncating it; a query a growth-capped slot cannot stretch to reach is
	// materialized in a fresh slot. Must be positive.
	MaxSpan time.Duration

	// NewSlotQuantumGap is the slot-splitting threshold: a query within this
	// gap (inclusive) of an existing slot's edge extends that slot, a query
	// farther away starts a new slot. Slots are merged only once growth makes
	// their ranges meet; a gap is never covered by concatenation alone. Zero
	// keeps every disjoint range in its own slot.
	NewSlotQuantumGap time.Duration
}

// DefaultConfig returns defaults sized for daily-scale astrodynamics data
// such as Earth-orientation history: 6-wide windows, 10 resident slots,
// 30-day slots, 12-hour extension gap.
func DefaultConfig() Config {
	return Config{
		NeighborsSize:     6,
		MaxSlots:          10,
		MaxSpan:           30 * 24 * time.Hour,
		NewSlotQuantumGap: 12 * time.Hour,
	}
}

func (c Config) validate() error {
	if c.NeighborsSize < 1 {
		return fmt.Errorf("%w: neighbors size %d, must be at least 1", ErrInvalidConfig, c.NeighborsSize)
	}
	if c.MaxSlots < 1 {
		return fmt.Errorf("%w: max slots %d, must be at least 1", ErrInvalidConfig, c.MaxSlots)
	}
	if c.MaxSpan <= 0 {
		return fmt.Errorf("%w: max span %v, must be positive", ErrInvalidConfig, c.MaxSpan)
	}
	if c.NewSlotQuantumGap < 0 {
		return fmt.Errorf("%w: new slot quantum gap %v, must not be negative", ErrInvalidConfig, c.NewSlotQuantumGap)
	}
	return nil
}
