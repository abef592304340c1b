package strategy

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coincast/internal/errs"
	ind "coincast/internal/indicator"
	"coincast/pkg/model"
)

func vote(name string, rec model.Recommendation, conf, weight float64, reason string) model.StrategyResult {
	return model.StrategyResult{
		Name:   name,
		Weight: weight,
		Signal: model.TradeSignal{Recommendation: rec, ConfidenceScore: conf, Reasons: []string{reason}, Strategy: name},
	}
}

func TestCombineSignalsTie(t *testing.T) {
	var results []model.StrategyResult
	for i := 0; i < 3; i++ {
		results = append(results, vote("b", model.Buy, 0.6, 0.5, "up"))
		results = append(results, vote("s", model.Sell, 0.6, 0.5, "down"))
	}

	sig := CombineSignals(results, time.Time{})
	assert.Equal(t, model.Neutral, sig.Recommendation)
	// each side normalizes to 0.5; the damped neutral confidence is 0.5 x 0.5
	assert.InDelta(t, 0.25, sig.ConfidenceScore, 1e-9)
	assert.Equal(t, "3 buy, 3 sell, 0 neutral", sig.Reasons[0])
	assert.Len(t, sig.Reasons, 7)
	assert.Equal(t, ConsensusSource, sig.Strategy)
}

func TestCombineSignalsBuyWins(t *testing.T) {
	sig := CombineSignals([]model.StrategyResult{
		vote("a", model.Buy, 0.8, 0.8, "golden cross"),
		vote("b", model.Buy, 0.4, 0.5, "hammer"),
		vote("c", model.Sell, 0.3, 0.5, "resistance"),
	}, time.Time{})

	// buy 0.64+0.2, sell 0.15, total 0.99
	assert.Equal(t, model.Buy, sig.Recommendation)
	assert.InDelta(t, 0.84/0.99, sig.ConfidenceScore, 1e-9)
	assert.Equal(t, []string{"2 buy, 1 sell, 0 neutral", "golden cross"}, sig.Reasons)
}

func TestCombineSignalsBelowThreshold(t *testing.T) {
	sig := CombineSignals([]model.StrategyResult{
		vote("a", model.Buy, 0.4, 0.5, "weak"),
		vote("b", model.Neutral, 0.5, 1, "flat"),
		vote("c", model.Neutral, 0.5, 1, "flat"),
		vote("d", model.Sell, 0.1, 1, "noise"),
	}, time.Time{})

	assert.Equal(t, model.Neutral, sig.Recommendation)
	assert.InDelta(t, 0.2/1.2*0.5, sig.ConfidenceScore, 1e-9)
	assert.Equal(t, "1 buy, 0 sell, 2 neutral", sig.Reasons[0])
}

func TestCombineSignalsEmpty(t *testing.T) {
	sig := CombineSignals(nil, time.Time{})
	assert.Equal(t, model.Neutral, sig.Recommendation)
	assert.Equal(t, 0.0, sig.ConfidenceScore)
	assert.Equal(t, []string{"0 buy, 0 sell, 0 neutral"}, sig.Reasons)
}

func TestBuildConsensus(t *testing.T) {
	c := BuildConsensus([]model.StrategyResult{
		vote("a", model.Buy, 0.7, 1, ""),
		vote("b", model.Sell, 0.7, 1, ""),
		vote("c", model.Neutral, 0.1, 1, ""),
	})
	assert.Equal(t, 1, c.BuyVotes)
	assert.Equal(t, 1, c.SellVotes)
	assert.Equal(t, 1, c.NeutralVotes)
	assert.InDelta(t, 0.5, c.AverageConfidence, 1e-9)
	require.NotNil(t, c.Strongest)
	assert.Equal(t, "a", c.Strongest.Name, "first wins ties")
}

func wavePrices(n int) []model.PricePoint {
	prices := make([]model.PricePoint, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range prices {
		c := 100 + float64(i)*0.5 + 6*math.Sin(float64(i)/4)
		prices[i] = model.PricePoint{
			Date:   start.AddDate(0, 0, i),
			Close:  c,
			High:   c * 1.015,
			Low:    c * 0.985,
			Volume: 1000 + float64(i%9)*200,
		}
	}
	return prices
}

func TestRunAllWithRealIndicators(t *testing.T) {
	prices := wavePrices(90)
	indicators, err := ind.NewOrchestrator().CalculateAll(context.Background(), "BTC", prices, 20)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.ForecastDays = 20
	cfg.Prices = prices

	o := NewOrchestrator(All(), nil)
	combined, err := o.RunAll(context.Background(), indicators, cfg)
	require.NoError(t, err)

	assert.Len(t, combined.Strategies, 6)
	assert.Equal(t, 6, combined.Performance.Succeeded)
	assert.Zero(t, combined.Performance.Failed)
	assert.Len(t, combined.Forecast, 20)
	assert.NotEmpty(t, combined.Signal.Reasons)
	assert.Contains(t, []model.Recommendation{model.Buy, model.Sell, model.Neutral}, combined.Signal.Recommendation)
	assert.Equal(t, 6, combined.Consensus.BuyVotes+combined.Consensus.SellVotes+combined.Consensus.NeutralVotes)
	for _, p := range combined.Forecast {
		assert.Equal(t, model.MergedSource, p.Indicator)
	}

	again, err := o.RunAll(context.Background(), indicators, cfg)
	require.NoError(t, err)
	assert.Equal(t, combined, again)
	assert.Equal(t, 1, o.Cache().Len())
}

func TestRunAllDropsStrategiesMissingInputs(t *testing.T) {
	set := []model.IndicatorResult{
		indicator(model.KindRSI, map[string][]float64{"rsi": constant(30, 50)}),
	}
	combined, err := NewOrchestrator(All(), nil).RunAll(context.Background(), set, testConfig())
	require.NoError(t, err)

	assert.Equal(t, 3, combined.Performance.Succeeded)
	assert.ElementsMatch(t, []string{"breakout", "golden-cross", "volatility-breakout"}, combined.Performance.FailedWith)
}

func TestRunAllNothingSucceeds(t *testing.T) {
	set := []model.IndicatorResult{
		indicator(model.KindVWAP, map[string][]float64{"vwap": constant(30, 100)}),
	}
	_, err := NewOrchestrator(All(), nil).RunAll(context.Background(), set, testConfig())

	var cerr *errs.ComputationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "strategies", cerr.Stage)
	assert.Len(t, cerr.Failures, 6)

	var inputErr *errs.StrategyInputError
	assert.ErrorAs(t, err, &inputErr)
}

type panicking struct{ Strategy }

func (panicking) Name() string          { return "panicking" }
func (panicking) Requires() Requirement { return Requirement{} }
func (panicking) Execute(context.Context, model.IndicatorSet, Config) (*model.StrategyResult, error) {
	panic("boom")
}

func TestRunAllRecoversPanics(t *testing.T) {
	strategies := []Strategy{panicking{}, NewGoldenCrossStrategy(DefaultGoldenCrossConfig())}
	combined, err := NewOrchestrator(strategies, nil).RunAll(context.Background(), quietSet().Results(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"panicking"}, combined.Performance.FailedWith)
}

func TestRunAllFlatSeriesDoesNotSell(t *testing.T) {
	prices := make([]model.PricePoint, 60)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range prices {
		prices[i] = model.PricePoint{Date: start.AddDate(0, 0, i), Close: 1, High: 1, Low: 1, Volume: 5e6}
	}
	indicators, err := ind.NewOrchestrator().CalculateAll(context.Background(), "USDT", prices, 10)
	require.NoError(t, err)

	set := model.NewIndicatorSet(indicators)
	rsi, ok := lastOf(set, model.KindRSI, "rsi")
	require.True(t, ok)
	assert.Equal(t, 50.0, rsi)

	cfg := testConfig()
	cfg.Symbol = "USDT"
	cfg.Prices = prices

	mr, err := NewMeanReversionStrategy(DefaultMeanReversionConfig()).Execute(context.Background(), set, cfg)
	require.NoError(t, err)
	assert.Equal(t, model.Neutral, mr.Signal.Recommendation)
	assert.Equal(t, []string{noSignalReason}, mr.Signal.Reasons)

	combined, err := NewOrchestrator(All(), nil).RunAll(context.Background(), indicators, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, model.Sell, combined.Signal.Recommendation)
	for _, r := range combined.Strategies {
		for _, reason := range r.Signal.Reasons {
			assert.NotContains(t, reason, "overbought", r.Name)
		}
	}
}
