package strategy

import (
	"context"
	"fmt"
	"math"

	"coincast/internal/cache"
	"coincast/pkg/model"
)

// CandlestickConfig holds configuration for the candlestick reversal strategy
type CandlestickConfig struct {
	DojiBody       float64 // max body/range for a doji (default 0.1)
	ShadowMultiple float64 // min shadow/body for hammer and shooting star (default 2)
	StarBody       float64 // max middle-star body vs first body (default 0.3)
	MaxPatterns    int     // most recent patterns scored (default 3)
	ReversalDrift  float64 // default 0.07
	MissingRSI     float64 // confidence multiplier without RSI (default 0.9)
}

// DefaultCandlestickConfig returns default configuration
func DefaultCandlestickConfig() CandlestickConfig {
	return CandlestickConfig{
		DojiBody:       0.1,
		ShadowMultiple: 2,
		StarBody:       0.3,
		MaxPatterns:    3,
		ReversalDrift:  0.07,
		MissingRSI:     0.9,
	}
}

// pattern is a recognised candle formation
type pattern struct {
	name     string
	index    int
	bullish  bool
	strength float64
}

// CandlestickReversalStrategy reads reversal formations in recent candles:
// doji, hammer, shooting star, engulfing and morning/evening star. Missing
// opens are taken from the previous close. RSI on the matching side confirms.
type CandlestickReversalStrategy struct {
	core
	config   CandlestickConfig
	patterns *cache.Cache[[]pattern]
}

// NewCandlestickReversalStrategy creates a new candlestick reversal strategy
func NewCandlestickReversalStrategy(cfg CandlestickConfig, opts ...cache.Option) *CandlestickReversalStrategy {
	return &CandlestickReversalStrategy{
		core: newCore(profile{
			name:        "candlestick-reversal",
			description: "Candlestick Reversal - doji, hammer, engulfing and star formations",
			requires: Requirement{AnyOf: []model.IndicatorKind{
				model.KindRSI, model.KindStochastic, model.KindBollinger, model.KindSMA, model.KindEMA,
			}},
			baseWeight:      0.6,
			accuracyCeiling: 0.63,
			inputs:          []model.IndicatorKind{model.KindRSI, model.KindStochastic},
		}, opts...),
		config:   cfg,
		patterns: memo[[]pattern]("candlestick-reversal.patterns", opts...),
	}
}

// Execute runs the strategy
func (s *CandlestickReversalStrategy) Execute(ctx context.Context, set model.IndicatorSet, cfg Config) (*model.StrategyResult, error) {
	return s.execute(ctx, set, cfg, s.run)
}

func (s *CandlestickReversalStrategy) run(set model.IndicatorSet, cfg Config) (model.TradeSignal, []model.ForecastPoint) {
	c := candlesOf(cfg.Prices)
	b := newSignalBuilder()

	if c.len() >= 3 {
		key := fmt.Sprintf("%s:%d:%d:%g", cfg.Symbol, c.len(), cfg.lookback(), c.lastClose())
		found, _ := s.patterns.GetOrCompute(key, func() ([]pattern, error) {
			return s.detect(c, cfg.lookback()), nil
		})

		// most recent first
		for i, p := range found {
			if i >= s.config.MaxPatterns {
				break
			}
			ago := c.len() - 1 - p.index
			dir := model.Sell
			if p.bullish {
				dir = model.Buy
			}
			recency := 1 / (1 + 0.1*float64(ago))
			b.add(dir, p.strength*recency, fmt.Sprintf("%s %d days ago", p.name, ago))
		}
	}

	if b.fired() {
		if rsi, ok := lastOf(set, model.KindRSI, "rsi"); ok {
			switch {
			case b.recommendation == model.Buy && rsi < 40:
				b.confirm(0.15, fmt.Sprintf("RSI %.1f confirms bullish reversal", rsi))
			case b.recommendation == model.Sell && rsi > 60:
				b.confirm(0.15, fmt.Sprintf("RSI %.1f confirms bearish reversal", rsi))
			}
		} else {
			b.scale(s.config.MissingRSI)
		}
	}
	signal := b.build(s.name)

	forecast := project(
		baseForecast(set, model.KindSMA, model.KindEMA, model.KindBollinger),
		signal,
		shape{drift: linearRamp(s.config.ReversalDrift), noise: 0.012, decay: 0.05},
		cfg, s.name, cfg.ForecastDays,
	)
	return signal, forecast
}

// detect classifies the last lookback candles, newest first. Each candle
// reports its strongest pattern only.
func (s *CandlestickReversalStrategy) detect(c candles, lookback int) []pattern {
	var found []pattern
	stop := max(1, c.len()-lookback)
	for i := c.len() - 1; i >= stop; i-- {
		if p, ok := s.classify(c, i); ok {
			found = append(found, p)
		}
	}
	return found
}

func (s *CandlestickReversalStrategy) classify(c candles, i int) (pattern, bool) {
	o, cl, high, low := c.opens[i], c.closes[i], c.highs[i], c.lows[i]
	body := math.Abs(cl - o)
	rng := high - low
	upper := high - math.Max(o, cl)
	lower := math.Min(o, cl) - low

	prevOpen, prevClose := c.opens[i-1], c.closes[i-1]
	prevBody := math.Abs(prevClose - prevOpen)

	// three-candle stars
	if i >= 2 {
		firstOpen, firstClose := c.opens[i-2], c.closes[i-2]
		firstBody := math.Abs(firstClose - firstOpen)
		mid := (firstOpen + firstClose) / 2
		if firstBody > 0 && prevBody <= firstBody*s.config.StarBody {
			if firstClose < firstOpen && cl > o && cl > mid {
				return pattern{name: "Morning star", index: i, bullish: true, strength: 0.35}, true
			}
			if firstClose > firstOpen && cl < o && cl < mid {
				return pattern{name: "Evening star", index: i, bullish: false, strength: 0.35}, true
			}
		}
	}

	// engulfing
	if prevBody > 0 && body > prevBody {
		if prevClose < prevOpen && cl > o && o <= prevClose && cl >= prevOpen {
			return pattern{name: "Bullish engulfing", index: i, bullish: true, strength: 0.3}, true
		}
		if prevClose > prevOpen && cl < o && o >= prevClose && cl <= prevOpen {
			return pattern{name: "Bearish engulfing", index: i, bullish: false, strength: 0.3}, true
		}
	}

	if body > 0 {
		if lower >= body*s.config.ShadowMultiple && upper <= body*0.5 {
			return pattern{name: "Hammer", index: i, bullish: true, strength: 0.25}, true
		}
		if upper >= body*s.config.ShadowMultiple && lower <= body*0.5 {
			return pattern{name: "Shooting star", index: i, bullish: false, strength: 0.25}, true
		}
	}

	// a doji after a decline hints at a bottom, after a rise at a top
	if rng > 0 && body <= rng*s.config.DojiBody && i >= 2 {
		downtrend := c.closes[i-2] > c.closes[i-1]
		return pattern{name: "Doji", index: i, bullish: downtrend, strength: 0.15}, true
	}
	return pattern{}, false
}
