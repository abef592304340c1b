package analyzer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coincast/internal/errs"
	"coincast/internal/forecast"
	"coincast/internal/indicator"
	"coincast/internal/strategy"
	"coincast/pkg/model"
)

type fakeProvider struct {
	points   []model.PricePoint
	fetchErr error
	priceErr error
}

func (f *fakeProvider) Name() string      { return "fake" }
func (f *fakeProvider) IsAvailable() bool { return true }
func (f *fakeProvider) RateLimit() int    { return 60 }

func (f *fakeProvider) FetchHistoricalData(_ context.Context, symbol string, days int) (*model.HistoricalData, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data := f.points
	if len(data) > days {
		data = data[len(data)-days:]
	}
	return &model.HistoricalData{Symbol: symbol, Data: data, Source: "fake"}, nil
}

func (f *fakeProvider) GetCurrentPrice(context.Context, string) (float64, error) {
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	return f.points[len(f.points)-1].Close, nil
}

func series(n int) []model.PricePoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]model.PricePoint, n)
	for i := range points {
		c := 30000 + float64(i)*40 + 900*math.Sin(float64(i)/6)
		points[i] = model.PricePoint{Date: start.AddDate(0, 0, i), Close: c, High: c * 1.02, Low: c * 0.98, Volume: 1e6 + float64(i%5)*1e5}
	}
	return points
}

func newAnalyzer(p *fakeProvider) *Analyzer {
	merger := forecast.NewMerger()
	return New(p, indicator.NewOrchestrator(), merger,
		strategy.NewOrchestrator(strategy.All(), merger), strategy.DefaultConfig(), zerolog.Nop())
}

func TestRun(t *testing.T) {
	p := &fakeProvider{points: series(120)}
	res, err := newAnalyzer(p).Run(context.Background(), Request{Symbol: "BTC", ForecastDays: 20, Range: 90})
	require.NoError(t, err)

	assert.Equal(t, "BTC", res.Symbol)
	assert.Equal(t, 20, res.ForecastDays)
	assert.Equal(t, 20, res.Horizon())
	assert.Len(t, res.History.Data, 90)
	assert.Equal(t, p.points[119].Close, res.CurrentPrice)
	assert.Len(t, res.Indicators, 10)
	require.Len(t, res.Forecast, 20)
	assert.Equal(t, model.MergedSource, res.Forecast[0].Indicator)
	require.NotNil(t, res.Strategies)
	assert.Len(t, res.Strategies.Strategies, 6)
	assert.Len(t, res.Strategies.Forecast, 20)
}

func TestRunWithoutCurrentPrice(t *testing.T) {
	p := &fakeProvider{points: series(60), priceErr: errors.New("quote down")}
	res, err := newAnalyzer(p).Run(context.Background(), Request{Symbol: "ETH", ForecastDays: 10, Range: 60})
	require.NoError(t, err)
	assert.Zero(t, res.CurrentPrice)
	assert.NotEmpty(t, res.Forecast)
}

func TestRunFetchFailure(t *testing.T) {
	boom := errors.New("network")
	_, err := newAnalyzer(&fakeProvider{fetchErr: boom}).Run(context.Background(), Request{Symbol: "BTC", ForecastDays: 10, Range: 90})
	assert.ErrorIs(t, err, boom)
}

func TestRunTooLittleHistory(t *testing.T) {
	_, err := newAnalyzer(&fakeProvider{points: series(12)}).Run(context.Background(), Request{Symbol: "BTC", ForecastDays: 10, Range: 90})
	var verr *errs.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "prices", verr.Field)
}
