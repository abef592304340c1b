package strategy

import (
	"context"
	"fmt"

	"coincast/internal/cache"
	"coincast/internal/numeric"
	"coincast/pkg/model"
)

// MeanReversionConfig holds configuration for the mean reversion strategy
type MeanReversionConfig struct {
	RSIOversold      float64 // default 30
	RSIOverbought    float64 // default 70
	RSIExtreme       float64 // distance beyond the thresholds for the deep bonus (default 10)
	ZScorePeriod     int     // window of the price deviation (default 20)
	ZScoreThreshold  float64 // default 2
	VWAPTolerance    float64 // price must be this far past VWAP to confirm (default 0.02)
	BBTouchTolerance float64 // how close to a band counts as a touch (default 0.01)
	ReversionDrift   float64 // total forecast drift toward the mean (default 0.06)
	ConcurrenceBoost float64 // multiplier when three reasons agree (default 1.1)
}

// DefaultMeanReversionConfig returns default configuration
func DefaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{
		RSIOversold:      30,
		RSIOverbought:    70,
		RSIExtreme:       10,
		ZScorePeriod:     20,
		ZScoreThreshold:  2,
		VWAPTolerance:    0.02,
		BBTouchTolerance: 0.01,
		ReversionDrift:   0.06,
		ConcurrenceBoost: 1.1,
	}
}

type deviation struct {
	mean   float64
	stdDev float64
	zScore float64
}

// MeanReversionStrategy expects stretched prices to return to their mean.
// Buy when:
// 1. RSI is oversold, deeper oversold adds confidence
// 2. Price touches the lower Bollinger band
// 3. Price sits more than two standard deviations below its mean
// Sell on the mirror conditions. A price on the far side of VWAP confirms.
type MeanReversionStrategy struct {
	core
	config     MeanReversionConfig
	deviations *cache.Cache[deviation]
}

// NewMeanReversionStrategy creates a new mean reversion strategy
func NewMeanReversionStrategy(cfg MeanReversionConfig, opts ...cache.Option) *MeanReversionStrategy {
	return &MeanReversionStrategy{
		core: newCore(profile{
			name:            "mean-reversion",
			description:     "Mean Reversion - fade RSI extremes and Bollinger band touches back toward the mean",
			requires:        Requirement{AnyOf: []model.IndicatorKind{model.KindRSI, model.KindBollinger}},
			baseWeight:      0.8,
			accuracyCeiling: 0.72,
			inputs:          []model.IndicatorKind{model.KindRSI, model.KindBollinger, model.KindVWAP},
		}, opts...),
		config:     cfg,
		deviations: memo[deviation]("mean-reversion.deviation", opts...),
	}
}

// Execute runs the strategy
func (s *MeanReversionStrategy) Execute(ctx context.Context, set model.IndicatorSet, cfg Config) (*model.StrategyResult, error) {
	return s.execute(ctx, set, cfg, s.run)
}

func (s *MeanReversionStrategy) run(set model.IndicatorSet, cfg Config) (model.TradeSignal, []model.ForecastPoint) {
	c := candlesOf(cfg.Prices)
	price := c.lastClose()
	b := newSignalBuilder()

	// RSI extremes
	if rsi, ok := lastOf(set, model.KindRSI, "rsi"); ok {
		switch {
		case rsi < s.config.RSIOversold:
			b.add(model.Buy, 0.35, fmt.Sprintf("RSI oversold at %.1f", rsi))
			if rsi < s.config.RSIOversold-s.config.RSIExtreme {
				b.confirm(0.1, "RSI deeply oversold")
			}
		case rsi > s.config.RSIOverbought:
			b.add(model.Sell, 0.35, fmt.Sprintf("RSI overbought at %.1f", rsi))
			if rsi > s.config.RSIOverbought+s.config.RSIExtreme {
				b.confirm(0.1, "RSI deeply overbought")
			}
		}
	}

	// Bollinger band touch; a collapsed band has nothing to revert from
	upper, okU := lastOf(set, model.KindBollinger, "upper")
	lower, okL := lastOf(set, model.KindBollinger, "lower")
	if okU && okL && price > 0 && upper > lower {
		switch {
		case price <= lower*(1+s.config.BBTouchTolerance):
			b.add(model.Buy, 0.3, fmt.Sprintf("Price at lower Bollinger band (%.2f)", lower))
		case price >= upper*(1-s.config.BBTouchTolerance):
			b.add(model.Sell, 0.3, fmt.Sprintf("Price at upper Bollinger band (%.2f)", upper))
		}
	}

	// Statistical deviation from the mean
	if c.len() >= s.config.ZScorePeriod {
		key := fmt.Sprintf("%s:%d:%g", cfg.Symbol, c.len(), price)
		dev, _ := s.deviations.GetOrCompute(key, func() (deviation, error) {
			return zScore(c.closes, s.config.ZScorePeriod), nil
		})
		switch {
		case dev.zScore <= -s.config.ZScoreThreshold:
			b.add(model.Buy, 0.2, fmt.Sprintf("Price %.1f standard deviations below mean", -dev.zScore))
		case dev.zScore >= s.config.ZScoreThreshold:
			b.add(model.Sell, 0.2, fmt.Sprintf("Price %.1f standard deviations above mean", dev.zScore))
		}
	}

	// VWAP confirmation
	if vwap, ok := lastOf(set, model.KindVWAP, "vwap"); ok && vwap > 0 && b.fired() {
		switch {
		case b.recommendation == model.Buy && price < vwap*(1-s.config.VWAPTolerance):
			b.confirm(0.1, "Price below VWAP supports reversion up")
		case b.recommendation == model.Sell && price > vwap*(1+s.config.VWAPTolerance):
			b.confirm(0.1, "Price above VWAP supports reversion down")
		}
	}

	b.boost(3, s.config.ConcurrenceBoost)
	signal := b.build(s.name)

	forecast := project(
		baseForecast(set, model.KindBollinger, model.KindSMA, model.KindRSI),
		signal,
		shape{drift: linearRamp(s.config.ReversionDrift), noise: 0.01, decay: 0.03},
		cfg, s.name, cfg.ForecastDays,
	)
	return signal, forecast
}

// zScore measures the last close against the trailing mean
func zScore(closes []float64, period int) deviation {
	window := numeric.Tail(closes, period)
	d := deviation{mean: numeric.Mean(window), stdDev: numeric.StdDev(window)}
	if d.stdDev > 0 {
		d.zScore = (numeric.Last(closes) - d.mean) / d.stdDev
	}
	return d
}
