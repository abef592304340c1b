// Package strategy implements the six signal strategies and the orchestrator
// that combines their signals and forecasts into one consensus.
package strategy

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"coincast/internal/numeric"
	"coincast/pkg/model"
)

// Risk tolerances scale how far strategy forecasts drift
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Config is the run configuration every strategy receives
type Config struct {
	Symbol        string
	ForecastDays  int
	Lookback      int    // window in which a crossover or pattern counts as recent
	RiskTolerance string // low, medium, high
	Seed          uint64 // seeds the forecast perturbation
	Prices        []model.PricePoint
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		ForecastDays:  10,
		Lookback:      10,
		RiskTolerance: RiskMedium,
		Seed:          42,
	}
}

// riskScale maps the tolerance to a drift multiplier
func (c Config) riskScale() float64 {
	switch c.RiskTolerance {
	case RiskLow:
		return 0.75
	case RiskHigh:
		return 1.25
	default:
		return 1
	}
}

func (c Config) lookback() int {
	if c.Lookback <= 0 {
		return 10
	}
	return c.Lookback
}

// signature identifies the config in cache keys
func (c Config) signature() string {
	var last float64
	if len(c.Prices) > 0 {
		last = c.Prices[len(c.Prices)-1].Close
	}
	return fmt.Sprintf("%s:%d:%d:%s:%d:%d:%g", c.Symbol, c.ForecastDays, c.lookback(), c.RiskTolerance, c.Seed, len(c.Prices), last)
}

// Requirement declares which indicator kinds a strategy needs
type Requirement struct {
	AnyOf []model.IndicatorKind // at least one must be present
	AllOf []model.IndicatorKind // every one must be present
}

// Satisfied reports whether the set meets the requirement
func (r Requirement) Satisfied(set model.IndicatorSet) bool {
	for _, k := range r.AllOf {
		if !set.Has(k) {
			return false
		}
	}
	if len(r.AnyOf) == 0 {
		return true
	}
	for _, k := range r.AnyOf {
		if set.Has(k) {
			return true
		}
	}
	return false
}

// Needed lists the required kinds for error messages
func (r Requirement) Needed() []string {
	kinds := append(append([]model.IndicatorKind(nil), r.AllOf...), r.AnyOf...)
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

// String describes the requirement
func (r Requirement) String() string {
	var parts []string
	if len(r.AllOf) > 0 {
		parts = append(parts, "all of "+joinKinds(r.AllOf))
	}
	if len(r.AnyOf) > 0 {
		parts = append(parts, "any of "+joinKinds(r.AnyOf))
	}
	return strings.Join(parts, "; ")
}

func joinKinds(kinds []model.IndicatorKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// Strategy defines the interface for signal strategies
type Strategy interface {
	// Name returns the strategy name
	Name() string

	// Description returns a brief description
	Description() string

	// Requires returns the indicator kinds the strategy cannot run without
	Requires() Requirement

	// Execute derives a signal and a forecast from the indicator set
	Execute(ctx context.Context, set model.IndicatorSet, cfg Config) (*model.StrategyResult, error)
}

// setSignature hashes the kinds, weights and forecasts of an indicator set
func setSignature(set model.IndicatorSet) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	for _, r := range set.Results() {
		h.Write([]byte(r.Kind))
		writeFloat(r.Weight)
		writeFloat(r.Accuracy)
		for _, p := range r.Forecast {
			writeFloat(p.Avg)
			writeFloat(p.Confidence)
		}
	}
	return h.Sum64()
}

// averageAccuracy is the mean static accuracy of the given kinds present in
// the set
func averageAccuracy(set model.IndicatorSet, kinds ...model.IndicatorKind) float64 {
	var values []float64
	for _, k := range kinds {
		if r, ok := set.Get(k); ok {
			values = append(values, r.Accuracy)
		}
	}
	if len(values) == 0 {
		return 0.5
	}
	return numeric.Mean(values)
}
