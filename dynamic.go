package tscache

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orbitlab/tscache/metrics"
)

// maxGenerationRounds bounds the re-plan loop of a single query. It is only
// reached with a configuration whose MaxSpan cannot hold NeighborsSize
// entries of the generator's grid.
const maxGenerationRounds = 64

// DynamicCache maintains a bounded set of slots (contiguous covered
// sub-ranges of the timeline), growing them on demand through a Generator,
// merging slots that grow into one another and evicting the
// least-recently-used slot once MaxSlots is exceeded.
//
// Safe for concurrent use. Queries hitting already-materialized content take
// a lock-free path over atomically published snapshots; structural mutation
// and every Generator invocation are serialized through a single mutex.
type DynamicCache[T TimeStamped] struct {
	cfg    Config
	gen    Generator[T]
	logger *slog.Logger

	// mu serializes structural mutation of the slot table and all Generator
	// calls. Readers never take it.
	mu    sync.Mutex
	table atomic.Pointer[slotTable[T]]

	// clock hands out access ticks for LRU ranking.
	clock atomic.Int64

	// Counters (lock-free).
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	merges    atomic.Int64
	genCalls  atomic.Int64
}

// NewDynamicCache creates a dynamic cache over gen. The cache must be the
// only owner of gen: its thread-safety guarantee for the generator is scoped
// to single ownership. A nil logger falls back to slog.Default().
func NewDynamicCache[T TimeStamped](cfg Config, gen Generator[T], logger *slog.Logger) (*DynamicCache[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, fmt.Errorf("%w: generator must not be nil", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &DynamicCache[T]{cfg: cfg, gen: gen, logger: logger}
	c.table.Store(&slotTable[T]{})

	logger.Info("dynamic cache initialized",
		"neighbors_size", cfg.NeighborsSize,
		"max_slots", cfg.MaxSlots,
		"max_span", cfg.MaxSpan.String(),
		"new_slot_quantum_gap", cfg.NewSlotQuantumGap.String(),
	)
	return c, nil
}

// GetNeighbors returns the NeighborsSize entries chronologically closest to
// date, generating missing samples on demand. The returned window is an
// independent snapshot: later eviction or growth cannot invalidate it.
//
// Fails with a RangeError when the generator cannot supply data around date
// and with a ContractError when the generator violates its contract.
func (c *DynamicCache[T]) GetNeighbors(date time.Time) ([]T, error) {
	// Optimistic fast path: serve from a materialized slot without locking.
	if s := c.table.Load().covering(date); s != nil {
		if entries := s.entries(); len(entries) >= c.cfg.NeighborsSize {
			s.touch(c.tick())
			c.hits.Add(1)
			metrics.IncCacheHits()
			return window(entries, c.cfg.NeighborsSize, date), nil
		}
	}

	c.misses.Add(1)
	metrics.IncCacheMisses()
	return c.getNeighborsSlow(date)
}

func (c *DynamicCache[T]) getNeighborsSlow(date time.Time) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-plan every round: another goroutine may have materialized the range
	// while this one waited for the lock, and each structural step below
	// changes the table.
	for round := 0; round < maxGenerationRounds; round++ {
		act := c.plan(c.table.Load(), date)
		switch act.kind {
		case actServe:
			act.slot.touch(c.tick())
			return window(act.slot.entries(), c.cfg.NeighborsSize, date), nil
		case actCreate:
			if err := c.createSlot(date); err != nil {
				return nil, err
			}
		case actGrow:
			if err := c.growSlot(act.slot, date); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: %d-wide neighbor window cannot be assembled within max span %v",
		ErrInvalidConfig, c.cfg.NeighborsSize, c.cfg.MaxSpan)
}

// actionKind is the per-query structural decision, computed once per round
// under mu and then executed.
type actionKind int

const (
	actServe actionKind = iota
	actGrow
	actCreate
)

type action[T TimeStamped] struct {
	kind actionKind
	slot *slot[T]
}

func (c *DynamicCache[T]) plan(tab *slotTable[T], date time.Time) action[T] {
	if s := tab.covering(date); s != nil {
		if len(s.entries()) >= c.cfg.NeighborsSize {
			return action[T]{kind: actServe, slot: s}
		}
		return action[T]{kind: actGrow, slot: s}
	}
	s := tab.nearby(date, c.cfg.NewSlotQuantumGap)
	if s == nil || !c.canGrowToward(s, date) {
		// No slot is close enough, or the span cap forbids stretching the
		// nearby one to reach date: materialize date in a fresh slot.
		return action[T]{kind: actCreate}
	}
	return action[T]{kind: actGrow, slot: s}
}

// canGrowToward reports whether extending s to include date would keep its
// span within MaxSpan. Only called for dates outside s's range.
func (c *DynamicCache[T]) canGrowToward(s *slot[T], date time.Time) bool {
	if date.After(s.maxDate()) {
		return date.Sub(s.minDate()) <= c.cfg.MaxSpan
	}
	return s.maxDate().Sub(date) <= c.cfg.MaxSpan
}

// createSlot seeds a new slot from Generator(nil, date) and inserts it,
// evicting the least-recently-used slot if MaxSlots is exceeded.
func (c *DynamicCache[T]) createSlot(date time.Time) error {
	out, err := c.generate(nil, date)
	if err != nil {
		return err
	}
	if len(out) == 0 || date.Before(out[0].Date()) || date.After(out[len(out)-1].Date()) {
		return &ContractError{Reason: fmt.Sprintf("generated range does not cover requested date %s",
			date.UTC().Format(time.RFC3339Nano))}
	}

	ns := newSlot(out, c.tick())
	c.insert(ns)

	c.logger.Debug("slot created",
		"min", ns.minDate().UTC().Format(time.RFC3339),
		"max", ns.maxDate().UTC().Format(time.RFC3339),
		"entries", len(out),
	)
	return nil
}

// growSlot extends s toward date (or densifies it when date is already
// covered but the slot holds fewer than NeighborsSize entries). Growth past
// MaxSpan materializes the surplus as separate adjacent slots instead of
// truncating it.
func (c *DynamicCache[T]) growSlot(s *slot[T], date time.Time) error {
	existing, target := c.growTarget(s, date)
	out, err := c.generate(&existing, target)
	if err != nil {
		return err
	}

	old := s.entries()
	merged := mergeRuns(old, out)
	if len(merged) == len(old) {
		return &ContractError{Reason: fmt.Sprintf("no new entries covering %s from existing entry %s",
			target.UTC().Format(time.RFC3339Nano), existing.UTC().Format(time.RFC3339Nano))}
	}

	if merged[len(merged)-1].Date().Sub(merged[0].Date()) <= c.cfg.MaxSpan {
		s.data.Store(&merged)
		c.publish(c.mergeAdjacent(c.table.Load()))
		return nil
	}

	// Span cap exceeded: absorb only the entries inside the slot's current
	// range and spill the rest into fresh slots on either side.
	min, max := old[0].Date(), old[len(old)-1].Date()
	var before, within, after []T
	for _, e := range out {
		switch {
		case e.Date().Before(min):
			before = append(before, e)
		case e.Date().After(max):
			after = append(after, e)
		default:
			within = append(within, e)
		}
	}
	if len(within) > 0 {
		densified := mergeRuns(old, within)
		s.data.Store(&densified)
	}
	for _, spill := range [][]T{before, after} {
		if len(spill) == 0 {
			continue
		}
		ns := newSlot(dedupe(spill), c.tick())
		c.insert(ns, s)
		c.logger.Debug("slot split at span cap",
			"min", ns.minDate().UTC().Format(time.RFC3339),
			"max", ns.maxDate().UTC().Format(time.RFC3339),
			"entries", len(ns.entries()),
		)
	}
	if len(before) == 0 && len(after) == 0 {
		c.publish(c.mergeAdjacent(c.table.Load()))
	}
	return nil
}

// growTarget picks the existing edge and the date a generation call must
// cover. When the slot already covers date but is too sparse for a full
// window, the target extends past the edge the window clamps against, by the
// slot's mean sample spacing times the number of missing entries.
func (c *DynamicCache[T]) growTarget(s *slot[T], date time.Time) (existing, target time.Time) {
	switch {
	case date.After(s.maxDate()):
		return s.maxDate(), date
	case date.Before(s.minDate()):
		return s.minDate(), date
	}

	entries := s.entries()
	need := c.cfg.NeighborsSize - len(entries)
	step := c.estimateStep(entries)
	if centralIndex(entries, date)-(c.cfg.NeighborsSize-1)/2 < 0 {
		return s.minDate(), s.minDate().Add(-time.Duration(need) * step)
	}
	return s.maxDate(), s.maxDate().Add(time.Duration(need) * step)
}

// estimateStep guesses the generator's sample spacing from the slot content.
// The cache never learns the true grid; the growth loop corrects any
// under-estimate by iterating.
func (c *DynamicCache[T]) estimateStep(entries []T) time.Duration {
	if len(entries) >= 2 {
		return entries[len(entries)-1].Date().Sub(entries[0].Date()) / time.Duration(len(entries)-1)
	}
	if c.cfg.NewSlotQuantumGap > 0 {
		return c.cfg.NewSlotQuantumGap
	}
	return time.Second
}

// generate funnels every Generator call through one point (mu is held by all
// callers) and rejects unsorted output. Errors from the generator, including
// RangeError, propagate unchanged.
func (c *DynamicCache[T]) generate(existing *time.Time, date time.Time) ([]T, error) {
	c.genCalls.Add(1)
	metrics.IncGeneratorCalls()

	start := time.Now()
	out, err := c.gen.Generate(existing, date)
	metrics.ObserveGenerationDuration(time.Since(start))
	if err != nil {
		return nil, err
	}
	if !chronological(out) {
		return nil, &ContractError{Reason: "generated entries are not chronologically sorted"}
	}
	return dedupe(out), nil
}

// insert adds ns to the table, evicts down to MaxSlots (never evicting ns or
// any slot in keep) and merges adjacent slots before publishing.
func (c *DynamicCache[T]) insert(ns *slot[T], keep ...*slot[T]) {
	tab := c.table.Load().withSlot(ns)
	keep = append(keep, ns)

	for len(tab.slots) > c.cfg.MaxSlots {
		victim := c.lruVictim(tab, keep)
		if victim == nil {
			break
		}
		tab = tab.without(victim)
		c.evictions.Add(1)
		metrics.AddCacheEvictions(1)
		c.logger.Debug("slot evicted",
			"min", victim.minDate().UTC().Format(time.RFC3339),
			"max", victim.maxDate().UTC().Format(time.RFC3339),
			"entries", len(victim.entries()),
		)
	}

	c.publish(c.mergeAdjacent(tab))
}

func (c *DynamicCache[T]) lruVictim(tab *slotTable[T], keep []*slot[T]) *slot[T] {
	var victim *slot[T]
	for _, s := range tab.slots {
		kept := false
		for _, k := range keep {
			if s == k {
				kept = true
				break
			}
		}
		if kept {
			continue
		}
		if victim == nil || s.lastAccess.Load() < victim.lastAccess.Load() {
			victim = s
		}
	}
	return victim
}

// mergeAdjacent collapses slots whose ranges meet or overlap, keeping slots
// pairwise disjoint. Slots separated by a real gap are never concatenated,
// no matter how small the gap: a merged slot claiming coverage over a hole
// would serve queries inside it without ever consulting the generator. The
// pass re-sorts by minimum date first, since a generator returning far more
// than requested can move a grown slot's lower edge past earlier slots. Seam
// duplicates are dropped; a single accumulating pass over the sorted slots
// reaches the fixpoint.
func (c *DynamicCache[T]) mergeAdjacent(tab *slotTable[T]) *slotTable[T] {
	if len(tab.slots) < 2 {
		return tab
	}

	sorted := make([]*slot[T], len(tab.slots))
	copy(sorted, tab.slots)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].minDate().Before(sorted[j].minDate())
	})

	out := make([]*slot[T], 0, len(sorted))
	out = append(out, sorted[0])
	merged := 0
	for _, s := range sorted[1:] {
		prev := out[len(out)-1]
		if s.minDate().After(prev.maxDate()) {
			out = append(out, s)
			continue
		}
		entries := mergeRuns(prev.entries(), s.entries())
		tick := prev.lastAccess.Load()
		if t := s.lastAccess.Load(); t > tick {
			tick = t
		}
		out[len(out)-1] = newSlot(entries, tick)
		merged++
	}

	if merged > 0 {
		c.merges.Add(int64(merged))
		metrics.AddCacheMerges(merged)
		c.logger.Debug("slots merged", "pairs", merged)
	}
	return &slotTable[T]{slots: out}
}

// publish atomically replaces the slot table readers see.
func (c *DynamicCache[T]) publish(tab *slotTable[T]) {
	c.table.Store(tab)
	metrics.SetCacheSlots(len(tab.slots))
	metrics.SetCacheEntries(tab.entryCount())
}

func (c *DynamicCache[T]) tick() int64 {
	return c.clock.Add(1)
}

// GetEarliest returns the earliest currently materialized entry.
func (c *DynamicCache[T]) GetEarliest() (T, error) {
	tab := c.table.Load()
	if len(tab.slots) == 0 {
		var zero T
		return zero, fmt.Errorf("no entries materialized yet: %w", ErrEmptyCache)
	}
	return tab.slots[0].entries()[0], nil
}

// GetLatest returns the latest currently materialized entry.
func (c *DynamicCache[T]) GetLatest() (T, error) {
	tab := c.table.Load()
	if len(tab.slots) == 0 {
		var zero T
		return zero, fmt.Errorf("no entries materialized yet: %w", ErrEmptyCache)
	}
	last := tab.slots[len(tab.slots)-1].entries()
	return last[len(last)-1], nil
}

// NeighborsSize returns the width of the windows returned by GetNeighbors.
func (c *DynamicCache[T]) NeighborsSize() int {
	return c.cfg.NeighborsSize
}

// Stats holds cache statistics.
type Stats struct {
	Slots          int
	Entries        int
	Hits           int64
	Misses         int64
	Evictions      int64
	Merges         int64
	GeneratorCalls int64
}

// Stats returns current cache statistics.
func (c *DynamicCache[T]) Stats() Stats {
	tab := c.table.Load()
	return Stats{
		Slots:          len(tab.slots),
		Entries:        tab.entryCount(),
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		Evictions:      c.evictions.Load(),
		Merges:         c.merges.Load(),
		GeneratorCalls: c.genCalls.Load(),
	}
}

// SlotInfo describes one resident slot.
type SlotInfo struct {
	Min     time.Time
	Max     time.Time
	Entries int
}

// SlotInfos returns a snapshot of the resident slots in chronological order.
func (c *DynamicCache[T]) SlotInfos() []SlotInfo {
	tab := c.table.Load()
	out := make([]SlotInfo, len(tab.slots))
	for i, s := range tab.slots {
		out[i] = SlotInfo{Min: s.minDate(), Max: s.maxDate(), Entries: len(s.entries())}
	}
	return out
}
