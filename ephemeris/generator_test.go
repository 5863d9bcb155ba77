package ephemeris

import (
	"errors"
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"github.com/orbitlab/tscache"
)

// ISS TLE (epoch 2024, will still propagate reasonably for near-future times).
// These are real ISS orbital elements used for testing.
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// near the TLE epoch, so SGP4 output stays physical
var target = time.Date(2024, 4, 10, 12, 0, 5, 0, time.UTC)

func issGenerator(t *testing.T, cfg GeneratorConfig) *SGP4Generator {
	t.Helper()
	gen, err := NewSGP4Generator(issLine1, issLine2, 25544, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewSGP4Generator failed: %v", err)
	}
	return gen
}

func TestNewSGP4GeneratorInvalidTLE(t *testing.T) {
	tests := []struct {
		name  string
		line1 string
		line2 string
	}{
		{"garbage lines", "invalid line 1", "invalid line 2"},
		{"swapped lines", issLine2, issLine1},
		{"truncated line1", issLine1[:40], issLine2},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSGP4Generator(tt.line1, tt.line2, 99999, GeneratorConfig{}, testLogger()); err == nil {
				t.Fatal("expected error for invalid TLE, got nil")
			}
		})
	}
}

func TestNewSGP4GeneratorInvertedValidity(t *testing.T) {
	cfg := GeneratorConfig{ValidFrom: target, ValidUntil: target.Add(-time.Hour)}
	if _, err := NewSGP4Generator(issLine1, issLine2, 25544, cfg, testLogger()); err == nil {
		t.Fatal("expected error for inverted validity window, got nil")
	}
}

// TestGenerateSeedChunk verifies the first call (existing == nil): at least
// Chunk states, all on the step grid, strictly increasing, bracketing the
// query, with physical ISS position magnitudes.
func TestGenerateSeedChunk(t *testing.T) {
	step := 60 * time.Second
	gen := issGenerator(t, GeneratorConfig{Step: step, Chunk: 8})

	states, err := gen.Generate(nil, target)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(states) < 8 {
		t.Fatalf("got %d states, want >= 8", len(states))
	}
	if states[0].Epoch.After(target) || states[len(states)-1].Epoch.Before(target) {
		t.Errorf("run [%v .. %v] does not bracket query %v",
			states[0].Epoch, states[len(states)-1].Epoch, target)
	}

	for i, st := range states {
		if !st.Epoch.Equal(st.Epoch.Truncate(step)) {
			t.Errorf("state %d epoch %v is off the %v grid", i, st.Epoch, step)
		}
		if i > 0 && !states[i-1].Epoch.Before(st.Epoch) {
			t.Errorf("state %d epoch %v not after previous %v", i, st.Epoch, states[i-1].Epoch)
		}
		// ISS orbits at ~420 km altitude: magnitude ~6791 km.
		mag := math.Sqrt(st.Position.X*st.Position.X + st.Position.Y*st.Position.Y + st.Position.Z*st.Position.Z)
		if mag < 6500 || mag > 7000 {
			t.Errorf("state %d position magnitude = %.1f km, expected ~6791 km (ISS orbit)", i, mag)
		}
	}
}

// TestGenerateCoversInterval verifies a growth call covers the whole interval
// between the existing edge and the target, in both directions.
func TestGenerateCoversInterval(t *testing.T) {
	step := 60 * time.Second
	gen := issGenerator(t, GeneratorConfig{Step: step, Chunk: 4})

	t.Run("forward", func(t *testing.T) {
		existing := target
		date := target.Add(30 * time.Minute)
		states, err := gen.Generate(&existing, date)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if states[0].Epoch.After(existing) {
			t.Errorf("first epoch %v is after the existing edge %v", states[0].Epoch, existing)
		}
		if states[len(states)-1].Epoch.Before(date) {
			t.Errorf("last epoch %v is before the target %v", states[len(states)-1].Epoch, date)
		}
	})

	t.Run("backward", func(t *testing.T) {
		existing := target
		date := target.Add(-30 * time.Minute)
		states, err := gen.Generate(&existing, date)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if states[0].Epoch.After(date) {
			t.Errorf("first epoch %v is after the target %v", states[0].Epoch, date)
		}
		if states[len(states)-1].Epoch.Before(existing) {
			t.Errorf("last epoch %v is before the existing edge %v", states[len(states)-1].Epoch, existing)
		}
	})
}

func TestGenerateValidityWindow(t *testing.T) {
	gen := issGenerator(t, GeneratorConfig{
		Step:       60 * time.Second,
		Chunk:      8,
		ValidFrom:  target.Add(-time.Hour),
		ValidUntil: target.Add(time.Hour),
	})

	_, err := gen.Generate(nil, target.Add(-2*time.Hour))
	var re *tscache.RangeError
	if !errors.As(err, &re) || re.Side != tscache.RangeEarlier {
		t.Fatalf("expected EARLIER range error, got %v", err)
	}

	_, err = gen.Generate(nil, target.Add(2*time.Hour))
	re = nil
	if !errors.As(err, &re) || re.Side != tscache.RangeLater {
		t.Fatalf("expected LATER range error, got %v", err)
	}

	// Queries just inside the bounds must stay covered despite the clamp.
	for _, q := range []time.Time{target.Add(-time.Hour), target, target.Add(time.Hour)} {
		states, err := gen.Generate(nil, q)
		if err != nil {
			t.Fatalf("Generate(%v): %v", q, err)
		}
		if states[0].Epoch.After(q) || states[len(states)-1].Epoch.Before(q) {
			t.Errorf("run [%v .. %v] does not bracket in-window query %v",
				states[0].Epoch, states[len(states)-1].Epoch, q)
		}
	}
}

// TestGeneratorWithDynamicCache runs the generator under a real cache and
// sweeps queries across two hours: every window must bracket its query on
// the generation grid.
func TestGeneratorWithDynamicCache(t *testing.T) {
	step := 60 * time.Second
	gen := issGenerator(t, GeneratorConfig{Step: step, Chunk: 16})

	cfg := tscache.Config{
		NeighborsSize:     4,
		MaxSlots:          4,
		MaxSpan:           6 * time.Hour,
		NewSlotQuantumGap: 10 * time.Minute,
	}
	cache, err := tscache.NewDynamicCache[State](cfg, gen, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 24; i++ {
		q := target.Add(time.Duration(i) * 5 * time.Minute)
		win, err := cache.GetNeighbors(q)
		if err != nil {
			t.Fatalf("GetNeighbors(%v): %v", q, err)
		}
		if len(win) != cfg.NeighborsSize {
			t.Fatalf("window size at %v: got %d, want %d", q, len(win), cfg.NeighborsSize)
		}
		if win[0].Epoch.After(q) || win[len(win)-1].Epoch.Before(q) {
			t.Errorf("window [%v .. %v] does not bracket query %v", win[0].Epoch, win[len(win)-1].Epoch, q)
		}
		for k := 1; k < len(win); k++ {
			if win[k].Epoch.Sub(win[k-1].Epoch) != step {
				t.Errorf("at %v: window off the %v grid: %v -> %v", q, step, win[k-1].Epoch, win[k].Epoch)
			}
		}
	}

	stats := cache.Stats()
	if stats.GeneratorCalls == 0 {
		t.Error("expected at least one generator call")
	}
	t.Logf("hits=%d misses=%d generator_calls=%d slots=%d",
		stats.Hits, stats.Misses, stats.GeneratorCalls, stats.Slots)
}
