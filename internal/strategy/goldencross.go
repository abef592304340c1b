package strategy

import (
	"context"
	"fmt"

	"coincast/internal/cache"
	"coincast/internal/numeric"
	"coincast/pkg/model"
)

// GoldenCrossConfig holds configuration for the golden cross strategy
type GoldenCrossConfig struct {
	ShortPeriod      int     // fallback short SMA period when only one MA line exists (default 5)
	SlopeWindow      int     // bars used to measure the short MA slope (default 3)
	VolumeMultiple   float64 // default 1.5
	VolumePeriod     int     // default 20
	CrossDrift       float64 // total forecast drift (default 0.12)
	ConcurrenceBoost float64 // default 1.1
}

// DefaultGoldenCrossConfig returns default configuration
func DefaultGoldenCrossConfig() GoldenCrossConfig {
	return GoldenCrossConfig{
		ShortPeriod:      5,
		SlopeWindow:      3,
		VolumeMultiple:   1.5,
		VolumePeriod:     20,
		CrossDrift:       0.12,
		ConcurrenceBoost: 1.1,
	}
}

// crossover is a sign change of short MA minus long MA
type crossover struct {
	index  int  // position in the aligned series
	golden bool // short crossed above long
}

type crossAnalysis struct {
	crossovers []crossover
	length     int
	shortAbove bool
	shortSlope float64
}

// GoldenCrossStrategy follows moving average crossovers.
// Buy when:
// 1. The short MA crossed above the long MA within the lookback
// 2. The short MA is above the long MA and rising
// Sell on death crosses and falling alignment. Volume confirms.
type GoldenCrossStrategy struct {
	core
	config  GoldenCrossConfig
	crosses *cache.Cache[crossAnalysis]
}

// NewGoldenCrossStrategy creates a new golden cross strategy
func NewGoldenCrossStrategy(cfg GoldenCrossConfig, opts ...cache.Option) *GoldenCrossStrategy {
	return &GoldenCrossStrategy{
		core: newCore(profile{
			name:            "golden-cross",
			description:     "Golden Cross - follow short/long moving average crossovers",
			requires:        Requirement{AnyOf: []model.IndicatorKind{model.KindEMA, model.KindSMA}},
			baseWeight:      0.85,
			accuracyCeiling: 0.74,
			inputs:          []model.IndicatorKind{model.KindEMA, model.KindSMA},
		}, opts...),
		config:  cfg,
		crosses: memo[crossAnalysis]("golden-cross.crossovers", opts...),
	}
}

// Execute runs the strategy
func (s *GoldenCrossStrategy) Execute(ctx context.Context, set model.IndicatorSet, cfg Config) (*model.StrategyResult, error) {
	return s.execute(ctx, set, cfg, s.run)
}

func (s *GoldenCrossStrategy) run(set model.IndicatorSet, cfg Config) (model.TradeSignal, []model.ForecastPoint) {
	c := candlesOf(cfg.Prices)
	short, long := s.movingAverages(set, c)
	b := newSignalBuilder()

	if len(short) >= 2 {
		key := fmt.Sprintf("%s:%d:%d:%g", cfg.Symbol, len(short), c.len(), numeric.Last(short))
		a, _ := s.crosses.GetOrCompute(key, func() (crossAnalysis, error) {
			return analyzeCrossovers(short, long, s.config.SlopeWindow), nil
		})

		// most recent crossover inside the lookback drives the signal
		for i := len(a.crossovers) - 1; i >= 0; i-- {
			x := a.crossovers[i]
			ago := a.length - 1 - x.index
			if ago >= cfg.lookback() {
				break
			}
			if x.golden {
				b.add(model.Buy, 0.4, fmt.Sprintf("Golden cross %d days ago", ago))
			} else {
				b.add(model.Sell, 0.4, fmt.Sprintf("Death cross %d days ago", ago))
			}
			break
		}

		switch {
		case a.shortAbove && a.shortSlope > 0:
			b.add(model.Buy, 0.2, "Short MA above long MA and rising")
		case !a.shortAbove && a.shortSlope < 0:
			b.add(model.Sell, 0.2, "Short MA below long MA and falling")
		}
	}

	if b.fired() {
		if ratio := volumeRatio(c.volumes, s.config.VolumePeriod); ratio >= s.config.VolumeMultiple {
			b.confirm(0.25, fmt.Sprintf("Volume %.1fx average confirms the trend", ratio))
		}
	}

	b.boost(2, s.config.ConcurrenceBoost)
	signal := b.build(s.name)

	forecast := project(
		baseForecast(set, model.KindEMA, model.KindSMA),
		signal,
		shape{drift: linearRamp(s.config.CrossDrift), noise: 0.01, decay: 0.025},
		cfg, s.name, cfg.ForecastDays,
	)
	return signal, forecast
}

// movingAverages picks the short and long lines. With both EMA and SMA
// present the EMA is the short line; with one, a short SMA of the closes (or
// of the line itself when there are no prices) is compared against it.
func (s *GoldenCrossStrategy) movingAverages(set model.IndicatorSet, c candles) (short, long []float64) {
	ema := lineOf(set, model.KindEMA, "ema")
	sma := lineOf(set, model.KindSMA, "sma")
	if len(ema) > 0 && len(sma) > 0 {
		return alignTails(ema, sma)
	}

	long = ema
	if len(long) == 0 {
		long = sma
	}
	source := c.closes
	if len(source) < s.config.ShortPeriod {
		source = long
	}
	return alignTails(numeric.SMA(source, s.config.ShortPeriod), long)
}

// analyzeCrossovers records every sign flip of short-long
func analyzeCrossovers(short, long []float64, slopeWindow int) crossAnalysis {
	a := crossAnalysis{length: len(short)}
	prev := 0.0
	for i := range short {
		diff := short[i] - long[i]
		if diff == 0 {
			continue
		}
		if prev != 0 && (diff > 0) != (prev > 0) {
			a.crossovers = append(a.crossovers, crossover{index: i, golden: diff > 0})
		}
		prev = diff
	}

	a.shortAbove = numeric.Last(short) > numeric.Last(long)
	if n := min(slopeWindow, len(short)-1); n > 0 {
		a.shortSlope = relativeSlope(short[len(short)-1-n], short[len(short)-1])
	}
	return a
}
