package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"

	"coincast/internal/cache"
	"coincast/internal/numeric"
	"coincast/pkg/model"
)

// BreakoutConfig holds configuration for the breakout strategy
type BreakoutConfig struct {
	LevelWindow      int     // trailing window for support/resistance (default 10)
	LevelSpan        int     // how many windows back levels are collected (default 6)
	NearResistance   float64 // range position above which a breakout is pending (default 0.9)
	NearSupport      float64 // range position below which a breakdown is pending (default 0.1)
	VolumeMultiple   float64 // minimum volume vs average (default 1.5)
	VolumePeriod     int     // default 20
	MinADX           float64 // trend strength that confirms (default 25)
	BreakoutDrift    float64 // total forecast drift (default 0.10)
	ConcurrenceBoost float64 // default 1.1
}

// DefaultBreakoutConfig returns default configuration
func DefaultBreakoutConfig() BreakoutConfig {
	return BreakoutConfig{
		LevelWindow:      10,
		LevelSpan:        6,
		NearResistance:   0.9,
		NearSupport:      0.1,
		VolumeMultiple:   1.5,
		VolumePeriod:     20,
		MinADX:           25,
		BreakoutDrift:    0.10,
		ConcurrenceBoost: 1.1,
	}
}

// levels are the support and resistance prices found in the history
type levels struct {
	supports    []float64 // ascending
	resistances []float64 // ascending
}

// BreakoutStrategy trades moves out of a support/resistance range.
// Buy when:
// 1. Price clears every resistance level, or
// 2. Price sits in the top of its nearest support-resistance range
// Sell on the mirror conditions. Band breaks, volume and ADX confirm.
type BreakoutStrategy struct {
	core
	config BreakoutConfig
	levels *cache.Cache[levels]
}

// NewBreakoutStrategy creates a new breakout strategy
func NewBreakoutStrategy(cfg BreakoutConfig, opts ...cache.Option) *BreakoutStrategy {
	return &BreakoutStrategy{
		core: newCore(profile{
			name:            "breakout",
			description:     "Breakout - trade price escaping support/resistance with volume confirmation",
			requires:        Requirement{AnyOf: []model.IndicatorKind{model.KindBollinger, model.KindSMA, model.KindEMA}},
			baseWeight:      0.75,
			accuracyCeiling: 0.70,
			inputs:          []model.IndicatorKind{model.KindBollinger, model.KindSMA, model.KindEMA, model.KindADX},
		}, opts...),
		config: cfg,
		levels: memo[levels]("breakout.levels", opts...),
	}
}

// Execute runs the strategy
func (s *BreakoutStrategy) Execute(ctx context.Context, set model.IndicatorSet, cfg Config) (*model.StrategyResult, error) {
	return s.execute(ctx, set, cfg, s.run)
}

func (s *BreakoutStrategy) run(set model.IndicatorSet, cfg Config) (model.TradeSignal, []model.ForecastPoint) {
	c := candlesOf(cfg.Prices)
	price := c.lastClose()
	b := newSignalBuilder()

	if c.len() > s.config.LevelWindow && price > 0 {
		key := fmt.Sprintf("%s:%d:%g", cfg.Symbol, c.len(), price)
		lv, _ := s.levels.GetOrCompute(key, func() (levels, error) {
			// the current bar is excluded so it can break the levels
			history := c.len() - 1
			return findLevels(c.highs[:history], c.lows[:history], s.config.LevelWindow, s.config.LevelSpan), nil
		})
		s.scoreLevels(b, lv, price)
	}

	// Bollinger band break
	upper, okU := lastOf(set, model.KindBollinger, "upper")
	lower, okL := lastOf(set, model.KindBollinger, "lower")
	if okU && okL && price > 0 {
		switch {
		case price > upper:
			b.add(model.Buy, 0.2, "Close above upper Bollinger band")
		case price < lower:
			b.add(model.Sell, 0.2, "Close below lower Bollinger band")
		}
	}

	if b.fired() {
		if ratio := volumeRatio(c.volumes, s.config.VolumePeriod); ratio >= s.config.VolumeMultiple {
			b.confirm(0.25, fmt.Sprintf("Volume %.1fx average confirms the move", ratio))
		}
		if adx, ok := lastOf(set, model.KindADX, "adx"); ok && adx > s.config.MinADX {
			b.confirm(0.15, fmt.Sprintf("Strong trend (ADX %.1f)", adx))
		}
	}

	b.boost(3, s.config.ConcurrenceBoost)
	signal := b.build(s.name)

	forecast := project(
		baseForecast(set, model.KindBollinger, model.KindEMA, model.KindSMA),
		signal,
		shape{drift: linearRamp(s.config.BreakoutDrift), noise: 0.015, decay: 0.04},
		cfg, s.name, cfg.ForecastDays,
	)
	return signal, forecast
}

func (s *BreakoutStrategy) scoreLevels(b *signalBuilder, lv levels, price float64) {
	if len(lv.resistances) > 0 && price > lv.resistances[len(lv.resistances)-1] {
		b.add(model.Buy, 0.4, fmt.Sprintf("Broke above resistance at %.2f", lv.resistances[len(lv.resistances)-1]))
		return
	}
	if len(lv.supports) > 0 && price < lv.supports[0] {
		b.add(model.Sell, 0.4, fmt.Sprintf("Broke below support at %.2f", lv.supports[0]))
		return
	}

	support, okS := nearestBelow(lv.supports, price)
	resistance, okR := nearestAbove(lv.resistances, price)
	if !okS || !okR || resistance <= support {
		return
	}
	position := (price - support) / (resistance - support)
	switch {
	case position > s.config.NearResistance:
		b.add(model.Buy, 0.3, fmt.Sprintf("Testing resistance at %.2f (%.0f%% of range)", resistance, position*100))
	case position < s.config.NearSupport:
		b.add(model.Sell, 0.3, fmt.Sprintf("Testing support at %.2f (%.0f%% of range)", support, position*100))
	}
}

// findLevels slides a window over the last span windows of history. A
// window's max is a resistance and its min a support only when the extreme
// lies strictly inside the window.
func findLevels(highs, lows []float64, window, span int) levels {
	var lv levels
	start := max(0, len(highs)-window*span)
	seenR := make(map[float64]bool)
	seenS := make(map[float64]bool)

	for end := start + window; end <= len(highs); end++ {
		hi, hiIdx := extremum(highs[end-window:end], func(a, b float64) bool { return a > b })
		if hiIdx > 0 && hiIdx < window-1 && !seenR[hi] {
			seenR[hi] = true
			lv.resistances = append(lv.resistances, hi)
		}
		lo, loIdx := extremum(lows[end-window:end], func(a, b float64) bool { return a < b })
		if loIdx > 0 && loIdx < window-1 && !seenS[lo] {
			seenS[lo] = true
			lv.supports = append(lv.supports, lo)
		}
	}
	sort.Float64s(lv.supports)
	sort.Float64s(lv.resistances)
	return lv
}

// extremum returns the winning value and its first index
func extremum(values []float64, better func(a, b float64) bool) (float64, int) {
	best, idx := values[0], 0
	for i, v := range values[1:] {
		if better(v, best) {
			best, idx = v, i+1
		}
	}
	return best, idx
}

func nearestBelow(sorted []float64, price float64) (float64, bool) {
	best, ok := math.Inf(-1), false
	for _, v := range sorted {
		if v <= price && v > best {
			best, ok = v, true
		}
	}
	return best, ok
}

func nearestAbove(sorted []float64, price float64) (float64, bool) {
	best, ok := math.Inf(1), false
	for _, v := range sorted {
		if v >= price && v < best {
			best, ok = v, true
		}
	}
	return numeric.Sanitize(best, 0), ok
}
