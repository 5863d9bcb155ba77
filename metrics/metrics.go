// Package metrics publishes cache health to Prometheus: hit/miss traffic,
// slot churn (evictions, merges) and generator latency. Collectors are
// registered on the default registry; embedders expose them by mounting
// Handler on their mux.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tscache_hits_total",
		Help: "Total neighbor queries served from materialized slot content.",
	})

	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tscache_misses_total",
		Help: "Total neighbor queries requiring slot creation or growth.",
	})

	cacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tscache_evictions_total",
		Help: "Total slots evicted to keep the resident slot count bounded.",
	})

	cacheMergesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tscache_merges_total",
		Help: "Total slot pairs merged after becoming adjacent or overlapping.",
	})

	generatorCallsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tscache_generator_calls_total",
		Help: "Total invocations of the user-supplied entry generator.",
	})

	generationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tscache_generation_duration_seconds",
		Help:    "Duration of generator invocations in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	cacheSlots = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tscache_slots",
		Help: "Number of resident slots.",
	})

	cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tscache_entries",
		Help: "Number of materialized entries across all slots.",
	})
)

func init() {
	prometheus.MustRegister(cacheHitsTotal)
	prometheus.MustRegister(cacheMissesTotal)
	prometheus.MustRegister(cacheEvictionsTotal)
	prometheus.MustRegister(cacheMergesTotal)
	prometheus.MustRegister(generatorCallsTotal)
	prometheus.MustRegister(generationSeconds)
	prometheus.MustRegister(cacheSlots)
	prometheus.MustRegister(cacheEntries)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncCacheHits increments the hit counter.
func IncCacheHits() { cacheHitsTotal.Inc() }

// IncCacheMisses increments the miss counter.
func IncCacheMisses() { cacheMissesTotal.Inc() }

// AddCacheEvictions adds n to the eviction counter.
func AddCacheEvictions(n int) { cacheEvictionsTotal.Add(float64(n)) }

// AddCacheMerges adds n to the merge counter.
func AddCacheMerges(n int) { cacheMergesTotal.Add(float64(n)) }

// IncGeneratorCalls increments the generator invocation counter.
func IncGeneratorCalls() { generatorCallsTotal.Inc() }

// ObserveGenerationDuration records one generator invocation duration.
func ObserveGenerationDuration(d time.Duration) { generationSeconds.Observe(d.Seconds()) }

// SetCacheSlots publishes the current resident slot count.
func SetCacheSlots(n int) { cacheSlots.Set(float64(n)) }

// SetCacheEntries publishes the current materialized entry count.
func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }
