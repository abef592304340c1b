package strategy

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"coincast/internal/cache"
	"coincast/internal/errs"
	"coincast/internal/numeric"
	"coincast/pkg/model"
)

const (
	// noSignalConfidence is forced when no sub-signal fired
	noSignalConfidence = 0.1
	noSignalReason     = "No clear signal detected"

	analysisTTL = 60 * time.Second
)

// signalBuilder accumulates a recommendation. The first directional
// sub-signal decides the recommendation; later ones in the opposite
// direction are recorded but add no confidence.
type signalBuilder struct {
	recommendation model.Recommendation
	confidence     float64
	reasons        []string
}

func newSignalBuilder() *signalBuilder {
	return &signalBuilder{recommendation: model.Neutral}
}

// add records a directional sub-signal
func (b *signalBuilder) add(dir model.Recommendation, increment float64, reason string) {
	if b.recommendation == model.Neutral {
		b.recommendation = dir
	}
	if dir == b.recommendation || dir == model.Neutral {
		b.confidence += increment
	} else {
		reason = "Conflicting: " + reason
	}
	b.reasons = append(b.reasons, reason)
}

// confirm records a non-directional sub-signal that supports the current one
func (b *signalBuilder) confirm(increment float64, reason string) {
	b.confidence += increment
	b.reasons = append(b.reasons, reason)
}

// boost multiplies confidence when at least n reasons concur
func (b *signalBuilder) boost(n int, factor float64) {
	if len(b.reasons) >= n {
		b.confidence *= factor
	}
}

// scale multiplies confidence unconditionally
func (b *signalBuilder) scale(factor float64) {
	b.confidence *= factor
}

func (b *signalBuilder) fired() bool {
	return len(b.reasons) > 0
}

// build finalizes the signal. The timestamp is set by the caller.
func (b *signalBuilder) build(strategy string) model.TradeSignal {
	if !b.fired() {
		return model.TradeSignal{
			Recommendation:  model.Neutral,
			Reasons:         []string{noSignalReason},
			ConfidenceScore: noSignalConfidence,
			Strategy:        strategy,
		}
	}
	return model.TradeSignal{
		Recommendation:  b.recommendation,
		Reasons:         b.reasons,
		ConfidenceScore: numeric.Clamp01(b.confidence),
		Strategy:        strategy,
	}
}

// direction maps a recommendation to +1, -1 or 0
func direction(r model.Recommendation) float64 {
	switch r {
	case model.Buy:
		return 1
	case model.Sell:
		return -1
	default:
		return 0
	}
}

// shape is a strategy's forecast profile
type shape struct {
	drift func(day, days int) float64 // cumulative relative drift for a +1 signal
	noise float64                      // bound of the per-day perturbation
	decay float64                      // confidence decay rate per day
}

// linearRamp drifts linearly toward total by the last day
func linearRamp(total float64) func(day, days int) float64 {
	return func(day, days int) float64 {
		return total * float64(day) / float64(days)
	}
}

// twoPhase drifts toward first over the opening fraction of the horizon,
// then toward second by the last day
func twoPhase(split, first, second float64) func(day, days int) float64 {
	return func(day, days int) float64 {
		pivot := math.Max(1, math.Round(float64(days)*split))
		d := float64(day)
		if d <= pivot {
			return first * d / pivot
		}
		return first + (second-first)*(d-pivot)/math.Max(1, float64(days)-pivot)
	}
}

// project derives a strategy forecast from a base indicator forecast
func project(base []model.ForecastPoint, sig model.TradeSignal, sh shape, cfg Config, name string, days int) []model.ForecastPoint {
	rng := newRand(cfg.Seed, name)
	dir := direction(sig.Recommendation) * cfg.riskScale()
	if days <= 0 || days > len(base) {
		days = len(base)
	}

	out := make([]model.ForecastPoint, 0, days)
	for _, p := range base {
		if p.Day < 1 || p.Day > days {
			continue
		}
		noise := (rng.Float64()*2 - 1) * sh.noise
		factor := 1 + dir*sh.drift(p.Day, days) + noise
		if factor <= 0 {
			factor = 0.01
		}
		avg := p.Avg * factor
		high := math.Max(p.High*factor, avg)
		low := math.Min(p.Low*factor, avg)

		out = append(out, model.ForecastPoint{
			Day:        p.Day,
			High:       numeric.Sanitize(high, p.High),
			Low:        numeric.Sanitize(math.Max(low, 0), p.Low),
			Avg:        numeric.Sanitize(avg, p.Avg),
			Confidence: numeric.Clamp01(sig.ConfidenceScore * math.Exp(-sh.decay*float64(p.Day-1))),
			Indicator:  name,
		})
	}
	return out
}

// newRand returns a PCG source seeded from the run seed and the strategy name
func newRand(seed uint64, name string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}

// profile is the fixed part of a strategy: identity, requirement, scoring
type profile struct {
	name            string
	description     string
	requires        Requirement
	baseWeight      float64
	accuracyCeiling float64
	inputs          []model.IndicatorKind // kinds whose accuracy scales the result
}

// runner evaluates one strategy against an indicator set
type runner func(set model.IndicatorSet, cfg Config) (model.TradeSignal, []model.ForecastPoint)

// core carries the parts every strategy shares: its profile, the result
// cache and the clock
type core struct {
	profile
	results *cache.Cache[model.StrategyResult]
	clock   cache.Clock
}

func newCore(p profile, opts ...cache.Option) core {
	return core{
		profile: p,
		results: cache.New[model.StrategyResult](p.name, opts...),
		clock:   time.Now,
	}
}

// Name returns the strategy name
func (c *core) Name() string {
	return c.name
}

// Description returns the strategy description
func (c *core) Description() string {
	return c.description
}

// Requires returns the indicator requirement
func (c *core) Requires() Requirement {
	return c.requires
}

// Cache exposes the result cache for the debug dump
func (c *core) Cache() *cache.Cache[model.StrategyResult] {
	return c.results
}

// execute checks the requirement, then serves the result from the cache or
// computes it with run
func (c *core) execute(ctx context.Context, set model.IndicatorSet, cfg Config, run runner) (*model.StrategyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.requires.Satisfied(set) {
		return nil, &errs.StrategyInputError{Strategy: c.name, Needed: c.requires.Needed()}
	}

	key := c.name + ":" + cfg.signature() + ":" + strconv.FormatUint(setSignature(set), 16)
	result, err := c.results.GetOrCompute(key, func() (model.StrategyResult, error) {
		start := time.Now()
		signal, forecast := run(set, cfg)
		signal.Timestamp = c.clock()

		return model.StrategyResult{
			Name:          c.name,
			Signal:        signal,
			Forecast:      forecast,
			Accuracy:      numeric.Clamp01(c.accuracyCeiling * averageAccuracy(set, c.inputs...)),
			Weight:        numeric.Clamp01(c.baseWeight * signal.ConfidenceScore),
			ExecutionTime: time.Since(start),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// baseForecast picks the first available indicator forecast
func baseForecast(set model.IndicatorSet, kinds ...model.IndicatorKind) []model.ForecastPoint {
	if r, ok := set.First(kinds...); ok {
		return r.Forecast
	}
	if results := set.Results(); len(results) > 0 {
		return results[0].Forecast
	}
	return nil
}

// memo returns a 60 second analysis cache sharing the strategy's options
func memo[V any](name string, opts ...cache.Option) *cache.Cache[V] {
	return cache.New[V](name, append(opts, cache.WithTTL(analysisTTL))...)
}
