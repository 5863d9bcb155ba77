package eop

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/orbitlab/tscache"
)

var tableStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// dailyTable builds a synthetic EOP table with one sample per day and
// parameters varying linearly, so interpolation results are exact.
func dailyTable(days int) []Entry {
	out := make([]Entry, days)
	for i := 0; i < days; i++ {
		out[i] = Entry{
			Epoch: tableStart.Add(time.Duration(i) * 24 * time.Hour),
			DUT1:  -0.03 - 0.0005*float64(i),
			XP:    0.04 + 0.0002*float64(i),
			YP:    0.3 - 0.0001*float64(i),
			LOD:   0.0015,
		}
	}
	return out
}

func TestNewTableGeneratorValidation(t *testing.T) {
	if _, err := NewTableGenerator(nil, 8); err == nil {
		t.Error("expected error for empty table, got nil")
	}

	dup := dailyTable(5)
	dup[3].Epoch = dup[2].Epoch
	if _, err := NewTableGenerator(dup, 8); err == nil {
		t.Error("expected error for non-chronological table, got nil")
	}
}

func TestTableGeneratorChunks(t *testing.T) {
	table := dailyTable(30)
	gen, err := NewTableGenerator(table, 8)
	if err != nil {
		t.Fatal(err)
	}

	date := tableStart.Add(10*24*time.Hour + 6*time.Hour)
	chunk, err := gen.Generate(nil, date)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(chunk) < 8 {
		t.Errorf("got %d entries, want >= 8", len(chunk))
	}
	if chunk[0].Epoch.After(date) || chunk[len(chunk)-1].Epoch.Before(date) {
		t.Errorf("chunk [%v .. %v] does not bracket query %v",
			chunk[0].Epoch, chunk[len(chunk)-1].Epoch, date)
	}
	for i := 1; i < len(chunk); i++ {
		if !chunk[i-1].Epoch.Before(chunk[i].Epoch) {
			t.Errorf("chunk not chronological at index %d", i)
		}
	}

	// Growth call covering an interval.
	existing := chunk[len(chunk)-1].Epoch
	far := tableStart.Add(25 * 24 * time.Hour)
	run, err := gen.Generate(&existing, far)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if run[0].Epoch.After(existing) || run[len(run)-1].Epoch.Before(far) {
		t.Errorf("run [%v .. %v] does not cover [%v .. %v]",
			run[0].Epoch, run[len(run)-1].Epoch, existing, far)
	}
}

func TestTableGeneratorRangeErrors(t *testing.T) {
	gen, err := NewTableGenerator(dailyTable(30), 8)
	if err != nil {
		t.Fatal(err)
	}

	_, err = gen.Generate(nil, tableStart.Add(-time.Hour))
	var re *tscache.RangeError
	if !errors.As(err, &re) || re.Side != tscache.RangeEarlier {
		t.Fatalf("expected EARLIER range error, got %v", err)
	}
	if !re.Boundary.Equal(tableStart) {
		t.Errorf("earlier boundary: got %v, want %v", re.Boundary, tableStart)
	}

	last := tableStart.Add(29 * 24 * time.Hour)
	_, err = gen.Generate(nil, last.Add(time.Hour))
	re = nil
	if !errors.As(err, &re) || re.Side != tscache.RangeLater {
		t.Fatalf("expected LATER range error, got %v", err)
	}
	if !re.Boundary.Equal(last) {
		t.Errorf("later boundary: got %v, want %v", re.Boundary, last)
	}
}

// countingCache counts neighbor lookups so memo behavior is observable.
type countingCache struct {
	inner NeighborCache
	calls int
}

func (c *countingCache) GetNeighbors(date time.Time) ([]Entry, error) {
	c.calls++
	return c.inner.GetNeighbors(date)
}

func fixedOver(t *testing.T, table []Entry) *tscache.FixedCache[Entry] {
	t.Helper()
	cache, err := tscache.NewFixedCache(2, table)
	if err != nil {
		t.Fatal(err)
	}
	return cache
}

func TestInterpolatorLinearity(t *testing.T) {
	table := dailyTable(30)
	ip, err := NewInterpolator(fixedOver(t, table), 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	// Quarter of the way between day 4 and day 5.
	q := tableStart.Add(4*24*time.Hour + 6*time.Hour)
	v, err := ip.At(q)
	if err != nil {
		t.Fatal(err)
	}

	a, b := table[4], table[5]
	wantDUT1 := a.DUT1 + 0.25*(b.DUT1-a.DUT1)
	wantXP := a.XP + 0.25*(b.XP-a.XP)
	if math.Abs(v.DUT1-wantDUT1) > 1e-12 {
		t.Errorf("DUT1: got %v, want %v", v.DUT1, wantDUT1)
	}
	if math.Abs(v.XP-wantXP) > 1e-12 {
		t.Errorf("XP: got %v, want %v", v.XP, wantXP)
	}

	// Exactly on a sample.
	v, err = ip.At(table[7].Epoch)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(v.DUT1-table[7].DUT1) > 1e-12 {
		t.Errorf("on-sample DUT1: got %v, want %v", v.DUT1, table[7].DUT1)
	}

	// On the last sample: no pair brackets it, the value is held.
	lastIdx := len(table) - 1
	v, err = ip.At(table[lastIdx].Epoch)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(v.DUT1-table[lastIdx].DUT1) > 1e-12 {
		t.Errorf("last-sample DUT1: got %v, want %v", v.DUT1, table[lastIdx].DUT1)
	}
}

func TestInterpolatorMemo(t *testing.T) {
	table := dailyTable(10)
	counter := &countingCache{inner: fixedOver(t, table)}
	ip, err := NewInterpolator(counter, 16, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	q := tableStart.Add(3*24*time.Hour + 300*time.Millisecond)
	first, err := ip.At(q)
	if err != nil {
		t.Fatal(err)
	}
	// Same quantum, different sub-second offset: served from the memo.
	second, err := ip.At(q.Add(400 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if counter.calls != 1 {
		t.Errorf("cache lookups: got %d, want 1 (second query memoized)", counter.calls)
	}
	if first != second {
		t.Errorf("memoized value differs: %+v vs %+v", first, second)
	}

	// A different quantum misses the memo.
	if _, err := ip.At(q.Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if counter.calls != 2 {
		t.Errorf("cache lookups: got %d, want 2", counter.calls)
	}
}

// TestInterpolatorOverDynamicCache runs the interpolator against a
// DynamicCache fed by a TableGenerator and checks it agrees with the fixed
// cache over the same table.
func TestInterpolatorOverDynamicCache(t *testing.T) {
	table := dailyTable(30)
	gen, err := NewTableGenerator(table, 8)
	if err != nil {
		t.Fatal(err)
	}
	cfg := tscache.Config{
		NeighborsSize:     2,
		MaxSlots:          4,
		MaxSpan:           40 * 24 * time.Hour,
		NewSlotQuantumGap: 24 * time.Hour,
	}
	dyn, err := tscache.NewDynamicCache[Entry](cfg, gen, nil)
	if err != nil {
		t.Fatal(err)
	}

	dynIP, err := NewInterpolator(dyn, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	fixIP, err := NewInterpolator(fixedOver(t, table), 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	for _, hours := range []float64{0, 7.5, 60, 200.25, 500, 695} {
		q := tableStart.Add(time.Duration(hours * float64(time.Hour)))
		got, err := dynIP.At(q)
		if err != nil {
			t.Fatalf("dynamic At(%v): %v", q, err)
		}
		want, err := fixIP.At(q)
		if err != nil {
			t.Fatalf("fixed At(%v): %v", q, err)
		}
		if math.Abs(got.DUT1-want.DUT1) > 1e-12 || math.Abs(got.XP-want.XP) > 1e-12 {
			t.Errorf("at %v: dynamic %+v, fixed %+v", q, got, want)
		}
	}
}

// TestGMSTKnownValue checks the IAU-82 model against Vallado Example 3-5:
// GMST at 1992 Aug 20 12:14:00 UT1 is 152.578788 degrees.
func TestGMSTKnownValue(t *testing.T) {
	ut1 := time.Date(1992, 8, 20, 12, 14, 0, 0, time.UTC)
	got := GMST(ut1, 0)
	want := 152.578788 * math.Pi / 180.0
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("GMST = %.9f rad (%.6f deg), want %.9f rad", got, got*180/math.Pi, want)
	}
}

// TestGMSTRotationRate checks sidereal advance over one hour.
func TestGMSTRotationRate(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	g0 := GMST(t0, 0)
	g1 := GMST(t0.Add(time.Hour), 0)

	advance := math.Mod(g1-g0+2*math.Pi, 2*math.Pi)
	want := 2 * math.Pi * 1.002737909 / 24.0
	if math.Abs(advance-want) > 1e-8 {
		t.Errorf("hourly sidereal advance = %.12f rad, want %.12f rad", advance, want)
	}

	for _, g := range []float64{g0, g1} {
		if g < 0 || g >= 2*math.Pi {
			t.Errorf("GMST %v outside [0, 2pi)", g)
		}
	}
}

func TestInterpolatorRotationRate(t *testing.T) {
	ip, err := NewInterpolator(fixedOver(t, dailyTable(10)), 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	// The synthetic table carries a constant LOD of 1.5 ms.
	got, err := ip.RotationRate(tableStart.Add(12 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	want := OmegaEarth * (1.0 - 0.0015/86400.0)
	if math.Abs(got-want) > 1e-15 {
		t.Errorf("rotation rate: got %.15e, want %.15e", got, want)
	}
	if got >= OmegaEarth {
		t.Errorf("positive LOD must slow the rate: got %.15e >= %.15e", got, OmegaEarth)
	}
}

func TestInterpolatorGMST(t *testing.T) {
	ip, err := NewInterpolator(fixedOver(t, dailyTable(10)), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	g, err := ip.GMST(tableStart.Add(36 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if g < 0 || g >= 2*math.Pi {
		t.Errorf("GMST %v outside [0, 2pi)", g)
	}
}
