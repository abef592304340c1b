package strategy

import (
	"context"
	"fmt"

	"coincast/internal/cache"
	"coincast/internal/numeric"
	"coincast/pkg/model"
)

// DivergenceConfig holds configuration for the momentum divergence strategy
type DivergenceConfig struct {
	SlopeThreshold float64 // minimum relative slope on each side (default 0.01)
	MinWindow      int     // bars searched for pivots at minimum (default 15)
	ReversalDrift  float64 // total forecast drift after the turn (default 0.08)
	ExhaustDrift   float64 // drift in the original direction before the turn (default 0.02)
}

// DefaultDivergenceConfig returns default configuration
func DefaultDivergenceConfig() DivergenceConfig {
	return DivergenceConfig{
		SlopeThreshold: 0.01,
		MinWindow:      15,
		ReversalDrift:  0.08,
		ExhaustDrift:   0.02,
	}
}

type divergence struct {
	bullish     bool
	bearish     bool
	priceSlope  float64
	momentSlope float64
}

// momentumSource names the oscillator a divergence was read from
type momentumSource struct {
	kind  model.IndicatorKind
	line  string
	label string
}

var momentumSources = []momentumSource{
	{model.KindRSI, "rsi", "RSI"},
	{model.KindMACD, "macd", "MACD"},
	{model.KindStochastic, "k", "Stochastic"},
}

// MomentumDivergenceStrategy looks for price and momentum disagreeing.
// Buy when price makes lower lows while momentum makes higher lows.
// Sell when price makes higher highs while momentum makes lower highs.
// Momentum already turning in the signal direction confirms.
type MomentumDivergenceStrategy struct {
	core
	config      DivergenceConfig
	divergences *cache.Cache[divergence]
}

// NewMomentumDivergenceStrategy creates a new momentum divergence strategy
func NewMomentumDivergenceStrategy(cfg DivergenceConfig, opts ...cache.Option) *MomentumDivergenceStrategy {
	return &MomentumDivergenceStrategy{
		core: newCore(profile{
			name:            "momentum-divergence",
			description:     "Momentum Divergence - price and oscillator pivots moving in opposite directions",
			requires:        Requirement{AnyOf: []model.IndicatorKind{model.KindRSI, model.KindMACD, model.KindStochastic}},
			baseWeight:      0.7,
			accuracyCeiling: 0.68,
			inputs:          []model.IndicatorKind{model.KindRSI, model.KindMACD, model.KindStochastic},
		}, opts...),
		config:      cfg,
		divergences: memo[divergence]("momentum-divergence.pivots", opts...),
	}
}

// Execute runs the strategy
func (s *MomentumDivergenceStrategy) Execute(ctx context.Context, set model.IndicatorSet, cfg Config) (*model.StrategyResult, error) {
	return s.execute(ctx, set, cfg, s.run)
}

func (s *MomentumDivergenceStrategy) run(set model.IndicatorSet, cfg Config) (model.TradeSignal, []model.ForecastPoint) {
	c := candlesOf(cfg.Prices)
	b := newSignalBuilder()
	window := max(s.config.MinWindow, cfg.lookback()*3)

	for _, src := range momentumSources {
		momentum := lineOf(set, src.kind, src.line)
		if len(momentum) < 3 || c.len() < 3 {
			continue
		}
		price, mom := alignTails(c.closes, momentum)
		price, mom = numeric.Tail(price, window), numeric.Tail(mom, window)

		key := fmt.Sprintf("%s:%s:%d:%g", cfg.Symbol, src.kind, c.len(), numeric.Last(mom))
		d, _ := s.divergences.GetOrCompute(key, func() (divergence, error) {
			return detectDivergence(price, mom, s.config.SlopeThreshold), nil
		})

		switch {
		case d.bullish:
			b.add(model.Buy, 0.45, fmt.Sprintf("Bullish divergence: price lower lows, %s higher lows", src.label))
		case d.bearish:
			b.add(model.Sell, 0.45, fmt.Sprintf("Bearish divergence: price higher highs, %s lower highs", src.label))
		}
		if b.fired() {
			break
		}
	}

	if b.fired() {
		s.confirmMomentum(b, set)
	}
	signal := b.build(s.name)

	forecast := project(
		baseForecast(set, model.KindMACD, model.KindRSI, model.KindStochastic),
		signal,
		shape{drift: twoPhase(0.3, -s.config.ExhaustDrift, s.config.ReversalDrift), noise: 0.012, decay: 0.035},
		cfg, s.name, cfg.ForecastDays,
	)
	return signal, forecast
}

// confirmMomentum adds confidence when an oscillator already leans the
// signal's way
func (s *MomentumDivergenceStrategy) confirmMomentum(b *signalBuilder, set model.IndicatorSet) {
	if hist, ok := lastOf(set, model.KindMACD, "histogram"); ok {
		if (b.recommendation == model.Buy && hist > 0) || (b.recommendation == model.Sell && hist < 0) {
			b.confirm(0.15, "MACD histogram confirms momentum shift")
			return
		}
	}
	if rsi, ok := lastOf(set, model.KindRSI, "rsi"); ok {
		if (b.recommendation == model.Buy && rsi < 40) || (b.recommendation == model.Sell && rsi > 60) {
			b.confirm(0.15, fmt.Sprintf("RSI %.1f supports the reversal", rsi))
		}
	}
}

// detectDivergence compares the last two peaks and the last two valleys of
// price and momentum, each found independently
func detectDivergence(price, momentum []float64, threshold float64) divergence {
	var d divergence

	pricePeaks, momPeaks := pivots(price, true), pivots(momentum, true)
	if len(pricePeaks) >= 2 && len(momPeaks) >= 2 {
		ps := relativeSlope(price[pricePeaks[len(pricePeaks)-2]], price[pricePeaks[len(pricePeaks)-1]])
		ms := relativeSlope(momentum[momPeaks[len(momPeaks)-2]], momentum[momPeaks[len(momPeaks)-1]])
		if ps > threshold && ms < -threshold {
			d.bearish, d.priceSlope, d.momentSlope = true, ps, ms
		}
	}

	priceValleys, momValleys := pivots(price, false), pivots(momentum, false)
	if len(priceValleys) >= 2 && len(momValleys) >= 2 {
		ps := relativeSlope(price[priceValleys[len(priceValleys)-2]], price[priceValleys[len(priceValleys)-1]])
		ms := relativeSlope(momentum[momValleys[len(momValleys)-2]], momentum[momValleys[len(momValleys)-1]])
		if ps < -threshold && ms > threshold {
			d.bullish, d.priceSlope, d.momentSlope = true, ps, ms
		}
	}
	return d
}

// pivots returns indices of 3-point local maxima (peaks) or minima
func pivots(values []float64, peaks bool) []int {
	var out []int
	for i := 1; i < len(values)-1; i++ {
		if peaks && values[i] > values[i-1] && values[i] > values[i+1] {
			out = append(out, i)
		}
		if !peaks && values[i] < values[i-1] && values[i] < values[i+1] {
			out = append(out, i)
		}
	}
	return out
}
