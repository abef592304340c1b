// Package metrics records pipeline counters and timings on a private
// prometheus registry. Nothing is served over HTTP; the registry is dumped to
// the terminal when the debug cache flag is set.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds all collectors for one process
type Recorder struct {
	registry *prometheus.Registry

	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	failures       *prometheus.CounterVec
	fetches        *prometheus.CounterVec
}

// New creates a recorder with its own registry
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_cache_hits_total",
				Help: "Cache lookups served from memory",
			},
			[]string{"cache"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_cache_misses_total",
				Help: "Cache lookups that required computation",
			},
			[]string{"cache"},
		),
		cacheEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_cache_evictions_total",
				Help: "Entries removed for expiry or capacity",
			},
			[]string{"cache"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coincast_stage_duration_seconds",
				Help:    "Duration of pipeline stages",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15},
			},
			[]string{"stage"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_component_failures_total",
				Help: "Absorbed failures of single indicators, strategies and backtest periods",
			},
			[]string{"kind", "name"},
		),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_provider_fetches_total",
				Help: "Market data requests by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
	}

	r.registry.MustRegister(r.cacheHits, r.cacheMisses, r.cacheEvictions, r.stageDuration, r.failures, r.fetches)
	return r
}

// CacheHit implements cache.Observer
func (r *Recorder) CacheHit(cache string) {
	r.cacheHits.WithLabelValues(cache).Inc()
}

// CacheMiss implements cache.Observer
func (r *Recorder) CacheMiss(cache string) {
	r.cacheMisses.WithLabelValues(cache).Inc()
}

// CacheEvicted implements cache.Observer
func (r *Recorder) CacheEvicted(cache string, n int) {
	r.cacheEvictions.WithLabelValues(cache).Add(float64(n))
}

// ObserveStage records how long a stage took
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Failure records an absorbed component failure
func (r *Recorder) Failure(kind, name string) {
	r.failures.WithLabelValues(kind, name).Inc()
}

// Fetch records a provider request outcome ("ok", "error", "cached")
func (r *Recorder) Fetch(provider, outcome string) {
	r.fetches.WithLabelValues(provider, outcome).Inc()
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteText writes every non-zero sample as "name{labels} value" lines
func (r *Recorder) WriteText(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			pairs := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				pairs = append(pairs, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			labels := strings.Join(pairs, ",")

			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), labels, m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s_count{%s} %d", mf.GetName(), labels, h.GetSampleCount()))
				lines = append(lines, fmt.Sprintf("%s_sum{%s} %g", mf.GetName(), labels, h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// Sink is the subset of Recorder the pipeline stages depend on
type Sink interface {
	ObserveStage(stage string, d time.Duration)
	Failure(kind, name string)
}

// Nop is a Sink that records nothing
type Nop struct{}

func (Nop) ObserveStage(string, time.Duration) {}
func (Nop) Failure(string, string)             {}
