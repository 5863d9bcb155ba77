// Package ephemeris supplies SGP4-propagated satellite states through the
// tscache Generator contract, so frame transforms and interpolators can pull
// ephemeris windows from a DynamicCache instead of re-propagating per query.
package ephemeris

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/orbitlab/tscache"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go (no CGO), explicit TEME output. Propagate() takes Satellite by
// value so SGP4 error codes are not visible to the caller; propagation
// failures are detected by checking output for NaN/Inf and unreasonable
// position magnitudes.

// Vec3 is a Cartesian triple.
type Vec3 struct {
	X, Y, Z float64
}

// State is one propagated satellite state in the TEME frame.
type State struct {
	Epoch    time.Time
	Position Vec3 // km
	Velocity Vec3 // km/s
}

// Date returns the state epoch, satisfying tscache.TimeStamped.
func (s State) Date() time.Time {
	return s.Epoch
}

// GeneratorConfig holds SGP4 generator parameters.
type GeneratorConfig struct {
	// Step is the sample grid spacing (default: 60s). Every generated epoch
	// is a whole multiple of Step since the Unix epoch, so chunks produced
	// by separate calls line up and deduplicate cleanly when the cache
	// merges them.
	Step time.Duration
	// Chunk is the minimum number of states produced per call (default: 32).
	Chunk int
	// ValidFrom and ValidUntil bound the coverage this generator accepts to
	// produce. Zero values leave the corresponding side unbounded. Queries
	// outside the window fail with a tscache.RangeError.
	ValidFrom  time.Time
	ValidUntil time.Time
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.Step <= 0 {
		c.Step = 60 * time.Second
	}
	if c.Chunk <= 0 {
		c.Chunk = 32
	}
	return c
}

// SGP4Generator produces grid-aligned TEME states for one satellite.
// It holds no mutable state; the owning cache serializes calls.
type SGP4Generator struct {
	sat     satellite.Satellite
	noradID int
	cfg     GeneratorConfig
	logger  *slog.Logger
}

// NewSGP4Generator creates a generator from TLE lines. Returns an error if
// the TLE cannot be parsed or the SGP4 model fails to initialize.
//
// Pre-validates TLE format before passing lines to the library, because
// go-satellite calls log.Fatal on malformed input.
func NewSGP4Generator(line1, line2 string, noradID int, cfg GeneratorConfig, logger *slog.Logger) (*SGP4Generator, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", noradID, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	if !cfg.ValidFrom.IsZero() && !cfg.ValidUntil.IsZero() && cfg.ValidUntil.Before(cfg.ValidFrom) {
		return nil, fmt.Errorf("validity window ends %v before it starts %v", cfg.ValidUntil, cfg.ValidFrom)
	}

	sat := satellite.TLEToSat(strings.TrimSpace(line1), strings.TrimSpace(line2), satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", noradID, sat.Error, sat.ErrorStr)
	}
	return &SGP4Generator{sat: sat, noradID: noradID, cfg: cfg, logger: logger}, nil
}

// validateTLELines performs basic format validation on TLE lines.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// Generate produces a chronologically sorted run of states whose grid range
// covers at least the interval between existing and date (date itself when
// existing is nil), extended to the configured chunk size.
func (g *SGP4Generator) Generate(existing *time.Time, date time.Time) ([]State, error) {
	if !g.cfg.ValidFrom.IsZero() && date.Before(g.cfg.ValidFrom) {
		return nil, &tscache.RangeError{Query: date, Boundary: g.cfg.ValidFrom, Side: tscache.RangeEarlier}
	}
	if !g.cfg.ValidUntil.IsZero() && date.After(g.cfg.ValidUntil) {
		return nil, &tscache.RangeError{Query: date, Boundary: g.cfg.ValidUntil, Side: tscache.RangeLater}
	}

	from, to := g.gridRange(existing, date)
	states := make([]State, 0, int(to.Sub(from)/g.cfg.Step)+1)
	for t := from; !t.After(to); t = t.Add(g.cfg.Step) {
		st, err := g.propagate(t)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}

	g.logger.Debug("ephemeris chunk generated",
		"norad_id", g.noradID,
		"from", from.UTC().Format(time.RFC3339),
		"to", to.UTC().Format(time.RFC3339),
		"states", len(states),
	)
	return states, nil
}

// gridRange picks the [from, to] grid endpoints for one call: the requested
// interval widened to grid points bracketing both ends, then padded to at
// least Chunk samples on the side being explored, clamped to the validity
// window.
func (g *SGP4Generator) gridRange(existing *time.Time, date time.Time) (from, to time.Time) {
	floor := func(t time.Time) time.Time { return t.Truncate(g.cfg.Step) }
	ceil := func(t time.Time) time.Time {
		f := t.Truncate(g.cfg.Step)
		if f.Before(t) {
			f = f.Add(g.cfg.Step)
		}
		return f
	}
	pad := time.Duration(g.cfg.Chunk-1) * g.cfg.Step

	switch {
	case existing == nil:
		// Seed chunk centered on date, kept on the grid.
		from = floor(date).Add(-time.Duration(g.cfg.Chunk/2) * g.cfg.Step)
		to = from.Add(pad)
		if to.Before(ceil(date)) {
			to = ceil(date)
		}
	case existing.Before(date):
		from = floor(*existing)
		to = ceil(date)
		if min := from.Add(pad); to.Before(min) {
			to = min
		}
	default:
		to = ceil(*existing)
		from = floor(date)
		if max := to.Add(-pad); from.After(max) {
			from = max
		}
	}

	// Validity is enforced per query; the grid may overshoot the bounds by
	// less than one step so a query just inside a bound stays covered.
	if !g.cfg.ValidFrom.IsZero() {
		if lo := floor(g.cfg.ValidFrom); from.Before(lo) {
			from = lo
		}
	}
	if !g.cfg.ValidUntil.IsZero() {
		if hi := ceil(g.cfg.ValidUntil); to.After(hi) {
			to = hi
		}
	}
	return from, to
}

// propagate computes one state, rejecting NaN/Inf output and implausible
// position magnitudes the way the SGP4 error codes would if they were
// visible.
func (g *SGP4Generator) propagate(t time.Time) (State, error) {
	u := t.UTC()
	pos, vel := satellite.Propagate(g.sat, u.Year(), int(u.Month()), u.Day(), u.Hour(), u.Minute(), u.Second())

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return State{}, fmt.Errorf("sgp4 propagation failed for NORAD %d at %s: output is NaN/Inf",
			g.noradID, u.Format(time.RFC3339))
	}
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return State{}, fmt.Errorf("sgp4 propagation failed for NORAD %d at %s: unreasonable position magnitude %.1f km",
			g.noradID, u.Format(time.RFC3339), mag)
	}

	return State{
		Epoch:    u,
		Position: Vec3{X: pos.X, Y: pos.Y, Z: pos.Z},
		Velocity: Vec3{X: vel.X, Y: vel.Y, Z: vel.Z},
	}, nil
}
