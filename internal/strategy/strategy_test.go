package strategy

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coincast/pkg/model"
)

func flatForecast(name string, days int, avg float64) []model.ForecastPoint {
	points := make([]model.ForecastPoint, days)
	for i := range points {
		points[i] = model.ForecastPoint{Day: i + 1, High: avg * 1.02, Low: avg * 0.98, Avg: avg, Confidence: 0.6, Indicator: name}
	}
	return points
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func indicator(kind model.IndicatorKind, lines map[string][]float64) model.IndicatorResult {
	return model.IndicatorResult{
		Name:     string(kind),
		Kind:     kind,
		Forecast: flatForecast(string(kind), 10, 100),
		Accuracy: 0.65,
		Weight:   0.1,
		Lines:    lines,
	}
}

// quietSet is a full indicator set in which nothing should fire
func quietSet() model.IndicatorSet {
	return model.NewIndicatorSet([]model.IndicatorResult{
		indicator(model.KindRSI, map[string][]float64{"rsi": constant(30, 50)}),
		indicator(model.KindEMA, map[string][]float64{"ema": constant(30, 100)}),
		indicator(model.KindSMA, map[string][]float64{"sma": constant(30, 100)}),
		indicator(model.KindBollinger, map[string][]float64{
			"upper": constant(30, 110), "middle": constant(30, 100), "lower": constant(30, 90), "bandwidth": constant(30, 0.2),
		}),
	})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Symbol = "BTC"
	cfg.ForecastDays = 10
	return cfg
}

func TestStrategiesAlwaysAnswer(t *testing.T) {
	set := quietSet()
	for _, s := range All() {
		t.Run(s.Name(), func(t *testing.T) {
			result, err := s.Execute(context.Background(), set, testConfig())
			require.NoError(t, err)
			assert.Equal(t, model.Neutral, result.Signal.Recommendation)
			assert.Equal(t, noSignalConfidence, result.Signal.ConfidenceScore)
			assert.Equal(t, []string{noSignalReason}, result.Signal.Reasons)
			assert.Len(t, result.Forecast, 10)
			assert.LessOrEqual(t, result.Weight, noSignalConfidence)
		})
	}
}

func TestStrategyMissingRequirement(t *testing.T) {
	set := model.NewIndicatorSet([]model.IndicatorResult{
		indicator(model.KindVWAP, map[string][]float64{"vwap": constant(30, 100)}),
	})
	_, err := NewVolatilityBreakoutStrategy(DefaultVolatilityConfig()).Execute(context.Background(), set, testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bollinger")
}

func TestStrategyResultIsCached(t *testing.T) {
	s := NewGoldenCrossStrategy(DefaultGoldenCrossConfig())
	set := quietSet()

	first, err := s.Execute(context.Background(), set, testConfig())
	require.NoError(t, err)
	second, err := s.Execute(context.Background(), set, testConfig())
	require.NoError(t, err)

	assert.Equal(t, *first, *second)
	assert.Equal(t, 1, s.Cache().Len())
}

func TestGoldenCrossDetectsRecentCross(t *testing.T) {
	ema := constant(30, 99)
	ema[27], ema[28], ema[29] = 101, 101.5, 102
	set := model.NewIndicatorSet([]model.IndicatorResult{
		indicator(model.KindEMA, map[string][]float64{"ema": ema}),
		indicator(model.KindSMA, map[string][]float64{"sma": constant(30, 100)}),
	})

	result, err := NewGoldenCrossStrategy(DefaultGoldenCrossConfig()).Execute(context.Background(), set, testConfig())
	require.NoError(t, err)
	assert.Equal(t, model.Buy, result.Signal.Recommendation)
	assert.Equal(t, "Golden cross 2 days ago", result.Signal.Reasons[0])
	assert.InDelta(t, 0.66, result.Signal.ConfidenceScore, 1e-9)
	assert.Greater(t, result.Forecast[9].Avg, 100.0)
}

func TestAnalyzeCrossoversRecordsEveryFlip(t *testing.T) {
	ema := constant(30, 99)
	for i := 5; i < 30; i++ {
		ema[i] = 98 + float64(i)*0.01
	}
	ema[5] = 101
	analysis := analyzeCrossovers(ema, constant(30, 100), 3)
	require.Len(t, analysis.crossovers, 2)
	assert.True(t, analysis.crossovers[0].golden)
	assert.False(t, analysis.crossovers[1].golden)
}

func TestMeanReversionOversold(t *testing.T) {
	prices := make([]model.PricePoint, 30)
	for i := range prices {
		prices[i] = model.PricePoint{Close: 100, High: 101, Low: 99}
	}
	prices[29] = model.PricePoint{Close: 85, High: 90, Low: 84}

	set := model.NewIndicatorSet([]model.IndicatorResult{
		indicator(model.KindRSI, map[string][]float64{"rsi": append(constant(15, 45), 15)}),
		indicator(model.KindBollinger, map[string][]float64{
			"upper": constant(10, 110), "middle": constant(10, 100), "lower": constant(10, 90),
		}),
	})

	cfg := testConfig()
	cfg.Prices = prices
	result, err := NewMeanReversionStrategy(DefaultMeanReversionConfig()).Execute(context.Background(), set, cfg)
	require.NoError(t, err)
	assert.Equal(t, model.Buy, result.Signal.Recommendation)
	assert.Equal(t, "RSI oversold at 15.0", result.Signal.Reasons[0])
	assert.Greater(t, result.Signal.ConfidenceScore, 0.8)
	assert.LessOrEqual(t, result.Signal.ConfidenceScore, 1.0)
}

func TestDetectDivergence(t *testing.T) {
	price := []float64{105, 100, 104, 103, 95, 99}
	momentum := []float64{40, 30, 38, 37, 35, 39}

	d := detectDivergence(price, momentum, 0.01)
	assert.True(t, d.bullish)
	assert.False(t, d.bearish)
	assert.Less(t, d.priceSlope, 0.0)
	assert.Greater(t, d.momentSlope, 0.0)

	d = detectDivergence([]float64{95, 100, 96, 97, 105, 99}, []float64{30, 70, 50, 55, 60, 40}, 0.01)
	assert.True(t, d.bearish)
}

func TestCandlestickPatterns(t *testing.T) {
	s := NewCandlestickReversalStrategy(DefaultCandlestickConfig())

	tests := []struct {
		name    string
		prices  []model.PricePoint
		pattern string
		bullish bool
	}{
		{
			name: "hammer",
			prices: []model.PricePoint{
				{Open: 110, Close: 105, High: 111, Low: 104},
				{Open: 105, Close: 101, High: 106, Low: 100},
				{Open: 100, Close: 101, High: 101.2, Low: 96},
			},
			pattern: "Hammer",
			bullish: true,
		},
		{
			name: "bullish engulfing",
			prices: []model.PricePoint{
				{Open: 100, Close: 100, High: 101, Low: 99},
				{Open: 100, Close: 97, High: 100.5, Low: 96.5},
				{Open: 96.5, Close: 101, High: 101.5, Low: 96},
			},
			pattern: "Bullish engulfing",
			bullish: true,
		},
		{
			name: "evening star",
			prices: []model.PricePoint{
				{Open: 100, Close: 110, High: 111, Low: 99},
				{Open: 111, Close: 111.5, High: 113, Low: 110},
				{Open: 111, Close: 103, High: 111.5, Low: 102},
			},
			pattern: "Evening star",
			bullish: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := s.classify(candlesOf(tt.prices), 2)
			require.True(t, ok)
			assert.Equal(t, tt.pattern, p.name)
			assert.Equal(t, tt.bullish, p.bullish)
		})
	}
}

func TestFindLevelsUsesInteriorExtremes(t *testing.T) {
	highs := []float64{10, 12, 11, 10, 9, 15}
	lows := []float64{9, 8, 10, 9, 8.5, 14}

	lv := findLevels(highs, lows, 3, 10)
	assert.Equal(t, []float64{12}, lv.resistances)
	assert.Equal(t, []float64{8, 8.5}, lv.supports)
}

func TestClassifyRegime(t *testing.T) {
	r, rate := classifyRegime([]float64{1, 1, 1, 0.5}, 20, 0.8, 1.2)
	assert.Equal(t, regimeSqueeze, r)
	assert.InDelta(t, 0.5, rate, 1e-9)

	r, _ = classifyRegime([]float64{1, 1, 1, 1.5}, 20, 0.8, 1.2)
	assert.Equal(t, regimeExpansion, r)

	r, _ = classifyRegime([]float64{1, 1}, 20, 0.8, 1.2)
	assert.Equal(t, regimeNormal, r)
}

func TestProjectShapesForecast(t *testing.T) {
	base := flatForecast("ema", 10, 100)
	sig := model.TradeSignal{Recommendation: model.Buy, ConfidenceScore: 0.8}
	out := project(base, sig, shape{drift: linearRamp(0.12), noise: 0.01, decay: 0.05}, testConfig(), "golden-cross", 10)

	require.Len(t, out, 10)
	assert.InDelta(t, 112, out[9].Avg, 1.01)
	assert.InDelta(t, 0.8, out[0].Confidence, 1e-9)
	for i, p := range out {
		assert.LessOrEqual(t, p.Low, p.Avg)
		assert.LessOrEqual(t, p.Avg, p.High)
		if i > 0 {
			assert.Less(t, p.Confidence, out[i-1].Confidence)
		}
	}

	again := project(base, sig, shape{drift: linearRamp(0.12), noise: 0.01, decay: 0.05}, testConfig(), "golden-cross", 10)
	assert.Equal(t, out, again, "seeded perturbation is reproducible")
}

func TestTwoPhaseDrift(t *testing.T) {
	drift := twoPhase(0.3, -0.02, 0.08)
	assert.InDelta(t, -0.02, drift(3, 10), 1e-9)
	assert.InDelta(t, 0.08, drift(10, 10), 1e-9)
	assert.Less(t, drift(1, 10), 0.0)
}

func TestSignalBuilderFirstDirectionWins(t *testing.T) {
	b := newSignalBuilder()
	b.add(model.Sell, 0.3, "first")
	b.add(model.Buy, 0.4, "second")
	b.confirm(0.1, "volume")

	sig := b.build("x")
	assert.Equal(t, model.Sell, sig.Recommendation)
	assert.InDelta(t, 0.4, sig.ConfidenceScore, 1e-9)
	assert.Equal(t, "Conflicting: second", sig.Reasons[1])

	b = newSignalBuilder()
	b.add(model.Buy, 0.9, "a")
	b.add(model.Buy, 0.9, "b")
	assert.Equal(t, 1.0, b.build("x").ConfidenceScore)
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{
		"breakout", "candlestick-reversal", "golden-cross",
		"mean-reversion", "momentum-divergence", "volatility-breakout",
	}, List())

	_, err := Get("martingale")
	assert.Error(t, err)

	infos := AllInfo()
	require.Len(t, infos, 6)
	assert.Equal(t, "mean-reversion", infos[0].Name)
	assert.Equal(t, "all of bollinger", infos[5].Requires)
}

func TestConfidenceAlwaysClamped(t *testing.T) {
	prices := make([]model.PricePoint, 60)
	for i := range prices {
		c := 100 + 10*math.Sin(float64(i)/2)
		prices[i] = model.PricePoint{Date: time.Unix(int64(i)*86400, 0), Close: c, High: c + 3, Low: c - 3, Volume: float64(1000 + (i%5)*800)}
	}
	cfg := testConfig()
	cfg.Prices = prices

	set := quietSet()
	for _, s := range All() {
		result, err := s.Execute(context.Background(), set, cfg)
		require.NoError(t, err, s.Name())
		assert.GreaterOrEqual(t, result.Signal.ConfidenceScore, 0.0)
		assert.LessOrEqual(t, result.Signal.ConfidenceScore, 1.0)
		assert.NotEmpty(t, result.Signal.Reasons)
		for _, p := range result.Forecast {
			assert.GreaterOrEqual(t, p.Confidence, 0.0)
			assert.LessOrEqual(t, p.Confidence, 1.0)
		}
	}
}

func TestBreakoutScoreLevels(t *testing.T) {
	s := NewBreakoutStrategy(DefaultBreakoutConfig())
	lv := levels{supports: []float64{95, 100}, resistances: []float64{110, 120}}

	tests := []struct {
		name       string
		price      float64
		want       model.Recommendation
		confidence float64
		reason     string
	}{
		{"near resistance", 109.5, model.Buy, 0.3, "Testing resistance at 110.00 (95% of range)"},
		{"near support", 100.5, model.Sell, 0.3, "Testing support at 100.00 (5% of range)"},
		{"mid range", 105, model.Neutral, noSignalConfidence, noSignalReason},
		{"at resistance edge", 109, model.Neutral, noSignalConfidence, noSignalReason},
		{"above every resistance", 121, model.Buy, 0.4, "Broke above resistance at 120.00"},
		{"below every support", 94, model.Sell, 0.4, "Broke below support at 95.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newSignalBuilder()
			s.scoreLevels(b, lv, tt.price)
			sig := b.build(s.Name())

			assert.Equal(t, tt.want, sig.Recommendation)
			assert.InDelta(t, tt.confidence, sig.ConfidenceScore, 1e-9)
			assert.Equal(t, []string{tt.reason}, sig.Reasons)
		})
	}
}

func TestBreakoutScoreLevelsNeedsBothSides(t *testing.T) {
	s := NewBreakoutStrategy(DefaultBreakoutConfig())
	b := newSignalBuilder()
	s.scoreLevels(b, levels{supports: []float64{100}}, 100.5)
	assert.False(t, b.fired())
}

// ramp returns n candles moving by step per day from start
func ramp(n int, start, step float64) []model.PricePoint {
	prices := make([]model.PricePoint, n)
	for i := range prices {
		c := start + float64(i)*step
		prices[i] = model.PricePoint{Close: c, High: c + 0.5, Low: c - 0.5, Volume: 1000}
	}
	return prices
}

func TestVolatilityBreakoutRegimes(t *testing.T) {
	expanding := append(constant(29, 0.1), 0.3)
	squeezed := append(constant(29, 0.1), 0.05)

	tests := []struct {
		name      string
		bandwidth []float64
		middle    float64
		prices    []model.PricePoint
		want      model.Recommendation
		conf      float64
		reason    string
	}{
		{
			name:      "expansion with upward move",
			bandwidth: expanding,
			middle:    100,
			prices:    ramp(30, 100, 1),
			want:      model.Buy,
			conf:      0.35,
			reason:    "Volatility expansion with upward move",
		},
		{
			name:      "expansion with downward move",
			bandwidth: expanding,
			middle:    100,
			prices:    ramp(30, 130, -1),
			want:      model.Sell,
			conf:      0.35,
			reason:    "Volatility expansion with downward move",
		},
		{
			name:      "expansion without prices reads the middle band",
			bandwidth: expanding,
			middle:    95,
			want:      model.Buy,
			conf:      0.35,
			reason:    "Volatility expansion with upward move",
		},
		{
			name:      "squeeze has no direction",
			bandwidth: squeezed,
			middle:    100,
			prices:    ramp(30, 100, 1),
			want:      model.Neutral,
			conf:      0.2,
			reason:    "Volatility squeeze",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := model.NewIndicatorSet([]model.IndicatorResult{
				indicator(model.KindBollinger, map[string][]float64{
					"upper":     constant(30, tt.middle+10),
					"middle":    constant(30, tt.middle),
					"lower":     constant(30, tt.middle-10),
					"bandwidth": tt.bandwidth,
				}),
			})
			cfg := testConfig()
			cfg.Prices = tt.prices

			result, err := NewVolatilityBreakoutStrategy(DefaultVolatilityConfig()).Execute(context.Background(), set, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Signal.Recommendation)
			assert.InDelta(t, tt.conf, result.Signal.ConfidenceScore, 1e-9)
			require.Len(t, result.Signal.Reasons, 1)
			assert.Contains(t, result.Signal.Reasons[0], tt.reason)
		})
	}
}
