// Package eop supplies Earth-orientation parameters (UT1-UTC, polar motion,
// length-of-day) to frame transforms. A fully loaded EOP table is windowed
// through the tscache Generator contract so consumers only ever touch the
// bounded neighbor cache, and interpolated values are memoized in a small
// LRU keyed by quantized query time.
package eop

import (
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/orbitlab/tscache"
)

// Entry is one Earth-orientation parameter sample.
type Entry struct {
	Epoch time.Time
	DUT1  float64 // UT1-UTC, seconds
	XP    float64 // polar motion x, arcseconds
	YP    float64 // polar motion y, arcseconds
	LOD   float64 // excess length of day, seconds
}

// Date returns the sample epoch, satisfying tscache.TimeStamped.
func (e Entry) Date() time.Time {
	return e.Epoch
}

// TableGenerator serves chunks of a fully loaded EOP table through the
// cache Generator contract, with genuine range errors at the table edges.
type TableGenerator struct {
	table []Entry
	chunk int
}

// NewTableGenerator wraps a chronologically sorted EOP table. chunk is the
// minimum number of entries returned per call (default: 16).
func NewTableGenerator(table []Entry, chunk int) (*TableGenerator, error) {
	if len(table) == 0 {
		return nil, errors.New("eop table is empty")
	}
	for i := 1; i < len(table); i++ {
		if !table[i].Epoch.After(table[i-1].Epoch) {
			return nil, fmt.Errorf("eop table not strictly chronological at index %d (%v)", i, table[i].Epoch)
		}
	}
	if chunk <= 0 {
		chunk = 16
	}
	own := make([]Entry, len(table))
	copy(own, table)
	return &TableGenerator{table: own, chunk: chunk}, nil
}

// Generate returns a chunk of the table covering the interval between
// existing and date (date itself when existing is nil), padded to the chunk
// size and clamped to the table. Dates outside the table fail with a
// tscache.RangeError.
func (g *TableGenerator) Generate(existing *time.Time, date time.Time) ([]Entry, error) {
	first, last := g.table[0].Epoch, g.table[len(g.table)-1].Epoch
	if date.Before(first) {
		return nil, &tscache.RangeError{Query: date, Boundary: first, Side: tscache.RangeEarlier}
	}
	if date.After(last) {
		return nil, &tscache.RangeError{Query: date, Boundary: last, Side: tscache.RangeLater}
	}

	loDate, hiDate := date, date
	if existing != nil {
		if existing.Before(loDate) {
			loDate = *existing
		}
		if existing.After(hiDate) {
			hiDate = *existing
		}
	}

	lo := g.indexAtOrBefore(loDate)
	if lo < 0 {
		lo = 0
	}
	hi := g.indexAtOrBefore(hiDate) + 1
	if hi > len(g.table)-1 {
		hi = len(g.table) - 1
	}

	// Pad symmetrically to the chunk size.
	for hi-lo+1 < g.chunk && (lo > 0 || hi < len(g.table)-1) {
		if lo > 0 {
			lo--
		}
		if hi < len(g.table)-1 {
			hi++
		}
	}

	out := make([]Entry, hi-lo+1)
	copy(out, g.table[lo:hi+1])
	return out, nil
}

func (g *TableGenerator) indexAtOrBefore(date time.Time) int {
	lo, hi := 0, len(g.table)
	for lo < hi {
		mid := (lo + hi) / 2
		if g.table[mid].Epoch.After(date) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo - 1
}

// NeighborCache is the slice of the cache API the interpolator needs; both
// *tscache.FixedCache[Entry] and *tscache.DynamicCache[Entry] satisfy it.
type NeighborCache interface {
	GetNeighbors(date time.Time) ([]Entry, error)
}

// Values holds Earth-orientation parameters interpolated at a query instant.
type Values struct {
	DUT1 float64
	XP   float64
	YP   float64
	LOD  float64
}

// Interpolator linearly interpolates EOP between the two samples bracketing
// a query instant, pulling neighbor windows from a cache. Queries are
// quantized before lookup so repeated queries in the same quantum hit a
// bounded memo instead of the cache.
type Interpolator struct {
	cache   NeighborCache
	quantum time.Duration
	memo    *lru.Cache[int64, Values]
}

// NewInterpolator creates an interpolator over cache. memoSize bounds the
// number of memoized quanta (default: 512); quantum is the query resolution
// (default: 1s). EOP varies by well under a microsecond of dUT1 per second,
// so second-level quantization is lossless for frame work.
func NewInterpolator(cache NeighborCache, memoSize int, quantum time.Duration) (*Interpolator, error) {
	if cache == nil {
		return nil, errors.New("neighbor cache must not be nil")
	}
	if memoSize <= 0 {
		memoSize = 512
	}
	if quantum <= 0 {
		quantum = time.Second
	}
	memo, err := lru.New[int64, Values](memoSize)
	if err != nil {
		return nil, err
	}
	return &Interpolator{cache: cache, quantum: quantum, memo: memo}, nil
}

// At returns the Earth-orientation parameters at date.
func (ip *Interpolator) At(date time.Time) (Values, error) {
	q := date.Truncate(ip.quantum)
	key := q.UnixNano()
	if v, ok := ip.memo.Get(key); ok {
		return v, nil
	}

	nb, err := ip.cache.GetNeighbors(q)
	if err != nil {
		return Values{}, err
	}

	a, b, ok := bracketing(nb, q)
	if !ok {
		// No pair brackets q: it sits on the last sample or beyond a clamped
		// window edge. Hold the nearest sample.
		e := nb[len(nb)-1]
		if q.Before(nb[0].Epoch) {
			e = nb[0]
		}
		v := Values{DUT1: e.DUT1, XP: e.XP, YP: e.YP, LOD: e.LOD}
		ip.memo.Add(key, v)
		return v, nil
	}

	w := float64(q.Sub(a.Epoch)) / float64(b.Epoch.Sub(a.Epoch))
	v := Values{
		DUT1: a.DUT1 + w*(b.DUT1-a.DUT1),
		XP:   a.XP + w*(b.XP-a.XP),
		YP:   a.YP + w*(b.YP-a.YP),
		LOD:  a.LOD + w*(b.LOD-a.LOD),
	}
	ip.memo.Add(key, v)
	return v, nil
}

// bracketing finds the consecutive pair a, b with a.Epoch <= date < b.Epoch.
func bracketing(nb []Entry, date time.Time) (a, b Entry, ok bool) {
	for i := 1; i < len(nb); i++ {
		if !nb[i-1].Epoch.After(date) && nb[i].Epoch.After(date) {
			return nb[i-1], nb[i], true
		}
	}
	return Entry{}, Entry{}, false
}
