// Package forecast merges indicator or strategy forecasts into one
// day-indexed weighted consensus forecast.
package forecast

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/rs/zerolog"

	"coincast/internal/cache"
	"coincast/internal/metrics"
	"coincast/internal/numeric"
	"coincast/pkg/model"
)

// Weighted is one merge input
type Weighted struct {
	Name     string
	Forecast []model.ForecastPoint
	Weight   float64
}

// Merge combines forecasts day by day.
//
// Weights are normalized by their total; a zero total weights every input
// equally. For each day only the inputs that have a point for that day
// contribute, and their weights are renormalized among themselves. A day
// nobody covers is left out of the result. Non-finite values become 0.
func Merge(inputs []Weighted, days int) []model.ForecastPoint {
	if len(inputs) == 0 || days <= 0 {
		return nil
	}

	weights := normalizedWeights(inputs)
	byDay := make([]map[int]model.ForecastPoint, len(inputs))
	for i, in := range inputs {
		byDay[i] = make(map[int]model.ForecastPoint, len(in.Forecast))
		for _, p := range in.Forecast {
			if _, dup := byDay[i][p.Day]; !dup {
				byDay[i][p.Day] = p
			}
		}
	}

	merged := make([]model.ForecastPoint, 0, days)
	for day := 1; day <= days; day++ {
		var points []model.ForecastPoint
		var pointWeights []float64
		for i := range inputs {
			if p, ok := byDay[i][day]; ok {
				points = append(points, p)
				pointWeights = append(pointWeights, weights[i])
			}
		}
		if len(points) == 0 {
			continue
		}

		var sumW float64
		for _, w := range pointWeights {
			sumW += w
		}
		if sumW <= 0 {
			for i := range pointWeights {
				pointWeights[i] = 1
			}
			sumW = float64(len(pointWeights))
		}

		var high, low, avg, conf float64
		for i, p := range points {
			w := pointWeights[i] / sumW
			high += p.High * w
			low += p.Low * w
			avg += p.Avg * w
			conf += p.Confidence * w
		}

		merged = append(merged, model.ForecastPoint{
			Day:        day,
			High:       numeric.Sanitize(high, 0),
			Low:        numeric.Sanitize(low, 0),
			Avg:        numeric.Sanitize(avg, 0),
			Confidence: numeric.Clamp01(numeric.Sanitize(conf, 0)),
			Indicator:  model.MergedSource,
		})
	}
	return merged
}

// normalizedWeights divides every weight by the total, or returns equal
// weights when the total is zero or degenerate. Negative weights count as 0.
func normalizedWeights(inputs []Weighted) []float64 {
	weights := make([]float64, len(inputs))
	var total float64
	for i, in := range inputs {
		w := numeric.Sanitize(in.Weight, 0)
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}

	if total <= 0 {
		for i := range weights {
			weights[i] = 1 / float64(len(weights))
		}
		return weights
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

// Merger memoizes merges by a signature of their inputs
type Merger struct {
	cache *cache.Cache[[]model.ForecastPoint]
	log   zerolog.Logger
	sink  metrics.Sink
}

// Option configures a Merger
type Option func(*Merger)

// WithCache replaces the merged-forecast cache
func WithCache(c *cache.Cache[[]model.ForecastPoint]) Option {
	return func(m *Merger) {
		if c != nil {
			m.cache = c
		}
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(m *Merger) {
		m.log = log
	}
}

// WithSink sets the metrics sink
func WithSink(s metrics.Sink) Option {
	return func(m *Merger) {
		if s != nil {
			m.sink = s
		}
	}
}

// NewMerger creates a merger with its own cache
func NewMerger(opts ...Option) *Merger {
	m := &Merger{
		log:  zerolog.Nop(),
		sink: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = cache.New[[]model.ForecastPoint]("merged")
	}
	return m
}

// Cache exposes the merged-forecast cache for the debug dump
func (m *Merger) Cache() *cache.Cache[[]model.ForecastPoint] {
	return m.cache
}

// MergeIndicators merges indicator forecasts weighted by their static weight
func (m *Merger) MergeIndicators(symbol string, results []model.IndicatorResult, days int) []model.ForecastPoint {
	inputs := make([]Weighted, 0, len(results))
	for _, r := range results {
		inputs = append(inputs, Weighted{Name: r.Name, Forecast: r.Forecast, Weight: r.Weight})
	}
	return m.merge("indicators", symbol, inputs, days)
}

// MergeStrategies merges strategy forecasts weighted by their run weight
func (m *Merger) MergeStrategies(symbol string, results []model.StrategyResult, days int) []model.ForecastPoint {
	inputs := make([]Weighted, 0, len(results))
	for _, r := range results {
		inputs = append(inputs, Weighted{Name: r.Name, Forecast: r.Forecast, Weight: r.Weight})
	}
	return m.merge("strategies", symbol, inputs, days)
}

func (m *Merger) merge(population, symbol string, inputs []Weighted, days int) []model.ForecastPoint {
	start := time.Now()
	key := fmt.Sprintf("%s:%s:%d:%x", population, symbol, days, signature(inputs))
	if cached, ok := m.cache.Get(key); ok {
		return cached
	}

	merged := Merge(inputs, days)
	m.cache.Put(key, merged)
	m.sink.ObserveStage("merge_"+population, time.Since(start))

	if len(merged) < days {
		m.log.Warn().
			Str("symbol", symbol).
			Str("population", population).
			Int("days", days).
			Int("covered", len(merged)).
			Msg("merged forecast shorter than requested horizon")
	}
	return merged
}

// signature hashes names, weights and every forecast value
func signature(inputs []Weighted) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	for _, in := range inputs {
		h.Write([]byte(in.Name))
		writeFloat(in.Weight)
		for _, p := range in.Forecast {
			writeFloat(float64(p.Day))
			writeFloat(p.High)
			writeFloat(p.Low)
			writeFloat(p.Avg)
			writeFloat(p.Confidence)
		}
	}
	return h.Sum64()
}
