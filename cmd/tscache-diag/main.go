// tscache-diag exercises a DynamicCache end to end against a real SGP4
// generator: it loads a TLE, sweeps neighbor queries across a time span and
// reports cache behavior (hits, misses, generator calls, slot layout).
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/orbitlab/tscache"
	"github.com/orbitlab/tscache/ephemeris"
)

// fileConfig mirrors tscache.Config in a HuJSON (JWCC) config file, so the
// file may carry comments and trailing commas.
type fileConfig struct {
	NeighborsSize     int `json:"neighbors_size"`
	MaxSlots          int `json:"max_slots"`
	MaxSpanMinutes    int `json:"max_span_minutes"`
	QuantumGapSeconds int `json:"quantum_gap_seconds"`
	StepSeconds       int `json:"step_seconds"`
	Chunk             int `json:"chunk"`
}

type report struct {
	NORADID   int                `json:"norad_id"`
	Queries   int                `json:"queries"`
	SpanHours float64            `json:"span_hours"`
	Stats     tscache.Stats      `json:"stats"`
	Slots     []tscache.SlotInfo `json:"slots"`
}

func main() {
	var (
		tlePath    = pflag.String("tle", "", "path to a TLE file (2 or 3 lines)")
		configPath = pflag.String("config", "", "optional HuJSON config file")
		queries    = pflag.Int("queries", 200, "number of neighbor queries to sweep")
		span       = pflag.Duration("span", 6*time.Hour, "time span to sweep queries across")
		outPath    = pflag.String("out", "", "write a JSON report to this path (atomically)")
		verbose    = pflag.Bool("verbose", false, "enable debug logging")
	)
	pflag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *tlePath == "" {
		fmt.Fprintln(os.Stderr, "usage: tscache-diag --tle <file> [--config <file>] [--queries N] [--span D] [--out report.json]")
		os.Exit(2)
	}

	line1, line2, noradID, err := readTLE(*tlePath)
	if err != nil {
		logger.Error("reading TLE", "error", err)
		os.Exit(1)
	}

	cfg, genCfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}

	gen, err := ephemeris.NewSGP4Generator(line1, line2, noradID, genCfg, logger)
	if err != nil {
		logger.Error("building generator", "error", err)
		os.Exit(1)
	}

	cache, err := tscache.NewDynamicCache(cfg, gen, logger)
	if err != nil {
		logger.Error("building cache", "error", err)
		os.Exit(1)
	}

	start := time.Now().UTC()
	sweep := *span / time.Duration(*queries)
	begun := time.Now()

	for i := 0; i < *queries; i++ {
		target := start.Add(time.Duration(i) * sweep)
		win, err := cache.GetNeighbors(target)
		if err != nil {
			logger.Error("query failed", "target", target.Format(time.RFC3339), "error", err)
			os.Exit(1)
		}
		if i == 0 || i == *queries-1 {
			first, last := win[0], win[len(win)-1]
			fmt.Printf("query %s -> window [%s .. %s], %d states\n",
				target.Format(time.RFC3339),
				first.Epoch.Format(time.RFC3339), last.Epoch.Format(time.RFC3339), len(win))
		}
	}

	stats := cache.Stats()
	fmt.Printf("\nswept %d queries over %s in %s\n", *queries, *span, time.Since(begun).Round(time.Millisecond))
	fmt.Printf("hits=%d misses=%d generator_calls=%d evictions=%d merges=%d\n",
		stats.Hits, stats.Misses, stats.GeneratorCalls, stats.Evictions, stats.Merges)
	for _, s := range cache.SlotInfos() {
		fmt.Printf("slot [%s .. %s] %d entries\n",
			s.Min.Format(time.RFC3339), s.Max.Format(time.RFC3339), s.Entries)
	}

	if *outPath != "" {
		rep := report{
			NORADID:   noradID,
			Queries:   *queries,
			SpanHours: span.Hours(),
			Stats:     stats,
			Slots:     cache.SlotInfos(),
		}
		b, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			logger.Error("marshaling report", "error", err)
			os.Exit(1)
		}
		if err := atomic.WriteFile(*outPath, bytes.NewReader(b)); err != nil {
			logger.Error("writing report", "path", *outPath, "error", err)
			os.Exit(1)
		}
		logger.Info("report written", "path", *outPath)
	}
}

// readTLE extracts the first TLE line pair from a 2- or 3-line file and the
// NORAD catalog number from columns 3-7 of line 1.
func readTLE(path string) (line1, line2 string, noradID int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		switch {
		case strings.HasPrefix(line, "1 "):
			line1 = line
		case strings.HasPrefix(line, "2 ") && line1 != "":
			line2 = line
		}
		if line1 != "" && line2 != "" {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return "", "", 0, err
	}
	if line1 == "" || line2 == "" {
		return "", "", 0, fmt.Errorf("no TLE line pair found in %s", path)
	}

	noradID, err = strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return "", "", 0, fmt.Errorf("parsing NORAD id from %q: %w", line1[2:7], err)
	}
	return line1, line2, noradID, nil
}

// loadConfig merges an optional HuJSON file over the defaults.
func loadConfig(path string) (tscache.Config, ephemeris.GeneratorConfig, error) {
	cfg := tscache.Config{
		NeighborsSize:     4,
		MaxSlots:          6,
		MaxSpan:           12 * time.Hour,
		NewSlotQuantumGap: 10 * time.Minute,
	}
	genCfg := ephemeris.GeneratorConfig{Step: time.Minute, Chunk: 32}
	if path == "" {
		return cfg, genCfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, genCfg, err
	}
	std, err := hujson.Standardize(raw)
	if err != nil {
		return cfg, genCfg, fmt.Errorf("standardizing %s: %w", path, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(std, &fc); err != nil {
		return cfg, genCfg, fmt.Errorf("parsing %s: %w", path, err)
	}

	if fc.NeighborsSize > 0 {
		cfg.NeighborsSize = fc.NeighborsSize
	}
	if fc.MaxSlots > 0 {
		cfg.MaxSlots = fc.MaxSlots
	}
	if fc.MaxSpanMinutes > 0 {
		cfg.MaxSpan = time.Duration(fc.MaxSpanMinutes) * time.Minute
	}
	if fc.QuantumGapSeconds > 0 {
		cfg.NewSlotQuantumGap = time.Duration(fc.QuantumGapSeconds) * time.Second
	}
	if fc.StepSeconds > 0 {
		genCfg.Step = time.Duration(fc.StepSeconds) * time.Second
	}
	if fc.Chunk > 0 {
		genCfg.Chunk = fc.Chunk
	}
	return cfg, genCfg, nil
}
