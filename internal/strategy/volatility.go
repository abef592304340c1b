package strategy

import (
	"context"
	"fmt"

	"coincast/internal/cache"
	"coincast/internal/numeric"
	"coincast/pkg/model"
)

// VolatilityConfig holds configuration for the volatility breakout strategy
type VolatilityConfig struct {
	CVWindow         int     // window of the rolling coefficient of variation (default 10)
	AverageWindow    int     // trailing values the current volatility is compared with (default 20)
	PriceSqueeze     float64 // CV below this fraction of its average (default 0.8)
	PriceExpansion   float64 // CV above this fraction of its average (default 1.2)
	BandSqueeze      float64 // bandwidth below this fraction of its average (default 0.7)
	BandExpansion    float64 // bandwidth above this fraction of its average (default 1.3)
	DirectionWindow  int     // bars used to read the move direction (default 5)
	MinADX           float64 // default 20
	ExpansionDrift   float64 // default 0.09
	ConsolidateDrift float64 // default 0.01
}

// DefaultVolatilityConfig returns default configuration
func DefaultVolatilityConfig() VolatilityConfig {
	return VolatilityConfig{
		CVWindow:         10,
		AverageWindow:    20,
		PriceSqueeze:     0.8,
		PriceExpansion:   1.2,
		BandSqueeze:      0.7,
		BandExpansion:    1.3,
		DirectionWindow:  5,
		MinADX:           20,
		ExpansionDrift:   0.09,
		ConsolidateDrift: 0.01,
	}
}

// regime is the volatility state of one measure
type regime int

const (
	regimeNormal regime = iota
	regimeSqueeze
	regimeExpansion
)

func (r regime) String() string {
	switch r {
	case regimeSqueeze:
		return "squeeze"
	case regimeExpansion:
		return "expansion"
	default:
		return "normal"
	}
}

type volatilityState struct {
	price     regime
	band      regime
	priceRate float64 // current CV / average CV
	bandRate  float64 // current bandwidth / average bandwidth
}

// VolatilityBreakoutStrategy trades volatility expansion out of a squeeze.
// A squeeze alone adds confidence without direction; an expansion takes the
// direction of the recent move. Both measures agreeing and ADX confirm.
type VolatilityBreakoutStrategy struct {
	core
	config VolatilityConfig
	states *cache.Cache[volatilityState]
}

// NewVolatilityBreakoutStrategy creates a new volatility breakout strategy
func NewVolatilityBreakoutStrategy(cfg VolatilityConfig, opts ...cache.Option) *VolatilityBreakoutStrategy {
	return &VolatilityBreakoutStrategy{
		core: newCore(profile{
			name:            "volatility-breakout",
			description:     "Volatility Breakout - squeeze and expansion of price CV and Bollinger bandwidth",
			requires:        Requirement{AllOf: []model.IndicatorKind{model.KindBollinger}},
			baseWeight:      0.65,
			accuracyCeiling: 0.66,
			inputs:          []model.IndicatorKind{model.KindBollinger, model.KindADX},
		}, opts...),
		config: cfg,
		states: memo[volatilityState]("volatility-breakout.regimes", opts...),
	}
}

// Execute runs the strategy
func (s *VolatilityBreakoutStrategy) Execute(ctx context.Context, set model.IndicatorSet, cfg Config) (*model.StrategyResult, error) {
	return s.execute(ctx, set, cfg, s.run)
}

func (s *VolatilityBreakoutStrategy) run(set model.IndicatorSet, cfg Config) (model.TradeSignal, []model.ForecastPoint) {
	c := candlesOf(cfg.Prices)
	bandwidth := lineOf(set, model.KindBollinger, "bandwidth")
	b := newSignalBuilder()

	key := fmt.Sprintf("%s:%d:%d:%g", cfg.Symbol, c.len(), len(bandwidth), numeric.Last(bandwidth))
	st, _ := s.states.GetOrCompute(key, func() (volatilityState, error) {
		return s.measure(c.closes, bandwidth), nil
	})

	squeeze := st.price == regimeSqueeze || st.band == regimeSqueeze
	expansion := st.price == regimeExpansion || st.band == regimeExpansion

	if squeeze && !expansion {
		b.confirm(0.2, fmt.Sprintf("Volatility squeeze (price CV %.0f%%, bandwidth %.0f%% of average)", st.priceRate*100, st.bandRate*100))
	}
	if expansion {
		move := s.moveDirection(c.closes, set)
		switch {
		case move > 0:
			b.add(model.Buy, 0.35, "Volatility expansion with upward move")
		case move < 0:
			b.add(model.Sell, 0.35, "Volatility expansion with downward move")
		}
	}
	if b.fired() && st.price == st.band && st.price != regimeNormal {
		b.confirm(0.15, fmt.Sprintf("Price and band volatility agree on %s", st.price))
	}
	if adx, ok := lastOf(set, model.KindADX, "adx"); ok && adx > s.config.MinADX && b.fired() {
		b.confirm(0.1, fmt.Sprintf("Trend strength supports breakout (ADX %.1f)", adx))
	}
	signal := b.build(s.name)

	forecast := project(
		baseForecast(set, model.KindBollinger),
		signal,
		shape{drift: twoPhase(0.3, s.config.ConsolidateDrift, s.config.ExpansionDrift), noise: 0.015, decay: 0.04},
		cfg, s.name, cfg.ForecastDays,
	)
	return signal, forecast
}

// measure classifies the current price CV and bandwidth against their
// trailing averages
func (s *VolatilityBreakoutStrategy) measure(closes, bandwidth []float64) volatilityState {
	var st volatilityState

	var cvs []float64
	for end := s.config.CVWindow; end <= len(closes); end++ {
		cvs = append(cvs, numeric.CoefficientOfVariation(closes[end-s.config.CVWindow:end]))
	}
	st.price, st.priceRate = classifyRegime(cvs, s.config.AverageWindow, s.config.PriceSqueeze, s.config.PriceExpansion)
	st.band, st.bandRate = classifyRegime(bandwidth, s.config.AverageWindow, s.config.BandSqueeze, s.config.BandExpansion)
	return st
}

// classifyRegime compares the last value with the mean of the values before
// it
func classifyRegime(values []float64, window int, squeeze, expansion float64) (regime, float64) {
	if len(values) < 3 {
		return regimeNormal, 1
	}
	current := values[len(values)-1]
	avg := numeric.Mean(numeric.Tail(values[:len(values)-1], window))
	if avg <= 0 {
		return regimeNormal, 1
	}
	rate := current / avg
	switch {
	case rate < squeeze:
		return regimeSqueeze, rate
	case rate > expansion:
		return regimeExpansion, rate
	}
	return regimeNormal, rate
}

// moveDirection reads the recent price change, or the close against the
// middle band when there are no prices
func (s *VolatilityBreakoutStrategy) moveDirection(closes []float64, set model.IndicatorSet) float64 {
	if n := min(s.config.DirectionWindow, len(closes)-1); n > 0 {
		return closes[len(closes)-1] - closes[len(closes)-1-n]
	}
	middle := lineOf(set, model.KindBollinger, "middle")
	r, ok := set.Get(model.KindBollinger)
	if !ok || len(middle) == 0 || len(r.Forecast) == 0 {
		return 0
	}
	return r.Forecast[0].Avg - numeric.Last(middle)
}
