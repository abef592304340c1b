// Package backtest replays the forecasting pipeline over historical windows
// and scores each forecast against the prices that followed.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"coincast/internal/errs"
	"coincast/internal/forecast"
	"coincast/internal/indicator"
	"coincast/internal/metrics"
	"coincast/internal/numeric"
	"coincast/internal/provider"
	"coincast/internal/strategy"
	"coincast/pkg/model"
)

// fetchBuffer is extra history requested beyond what the windows need
const fetchBuffer = 10

// Config holds backtest parameters
type Config struct {
	Periods         int // number of non-overlapping test windows
	ForecastDays    int // validation window length
	HistoricalRange int // training window length
	MinDataPoints   int // shortest training window still tested
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Periods:         5,
		ForecastDays:    10,
		HistoricalRange: 90,
		MinDataPoints:   indicator.MinDataPoints,
	}
}

// FetchDays is the history needed to cover every window plus buffer. Past
// 365 days only the Binance provider can serve it.
func (c Config) FetchDays() int {
	return c.HistoricalRange + c.Periods*c.ForecastDays + fetchBuffer
}

func (c Config) validate() error {
	if c.Periods < 1 {
		return errs.Validation("periods", "must be at least 1, got %d", c.Periods)
	}
	if !indicator.IsValidHorizon(c.ForecastDays) {
		return errs.Validation("forecast_days", "must be one of %v, got %d", indicator.ValidHorizons, c.ForecastDays)
	}
	if c.MinDataPoints < indicator.MinDataPoints {
		return errs.Validation("min_data_points", "must be at least %d, got %d", indicator.MinDataPoints, c.MinDataPoints)
	}
	if c.HistoricalRange < c.MinDataPoints {
		return errs.Validation("historical_range", "must be at least min_data_points (%d), got %d", c.MinDataPoints, c.HistoricalRange)
	}
	return nil
}

// ProgressFunc is called after every period, tested or skipped
type ProgressFunc func(done, total int)

// Backtester runs backtests on historical data
type Backtester struct {
	provider    provider.Provider
	indicators  *indicator.Orchestrator
	merger      *forecast.Merger
	strategies  *strategy.Orchestrator
	strategyCfg strategy.Config
	progress    ProgressFunc
	log         zerolog.Logger
	sink        metrics.Sink
}

// Option configures a Backtester
type Option func(*Backtester)

// WithStrategies also scores every strategy forecast per period. base
// supplies lookback, risk tolerance and seed.
func WithStrategies(o *strategy.Orchestrator, base strategy.Config) Option {
	return func(b *Backtester) {
		b.strategies = o
		b.strategyCfg = base
	}
}

// WithProgress sets the per-period progress callback
func WithProgress(fn ProgressFunc) Option {
	return func(b *Backtester) {
		b.progress = fn
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(b *Backtester) {
		b.log = log
	}
}

// WithSink sets the metrics sink
func WithSink(s metrics.Sink) Option {
	return func(b *Backtester) {
		if s != nil {
			b.sink = s
		}
	}
}

// NewBacktester creates a new backtester
func NewBacktester(p provider.Provider, indicators *indicator.Orchestrator, merger *forecast.Merger, opts ...Option) *Backtester {
	b := &Backtester{
		provider:   p,
		indicators: indicators,
		merger:     merger,
		progress:   func(int, int) {},
		log:        zerolog.Nop(),
		sink:       metrics.Nop{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// window is one train/validate split of the fetched history
type window struct {
	index      int
	train      []model.PricePoint
	validation []model.PricePoint
}

// windows slides backward from the newest data. Window 0 validates on the
// last ForecastDays points.
func windows(data []model.PricePoint, cfg Config) ([]window, []error) {
	var out []window
	var failures []error
	for i := 0; i < cfg.Periods; i++ {
		end := len(data) - i*cfg.ForecastDays
		valStart := end - cfg.ForecastDays
		trainStart := max(0, valStart-cfg.HistoricalRange)
		if valStart-trainStart < cfg.MinDataPoints {
			failures = append(failures, fmt.Errorf("period %d: %w", i,
				&errs.InsufficientDataError{Indicator: "backtest", Have: max(0, valStart-trainStart), Need: cfg.MinDataPoints}))
			continue
		}
		out = append(out, window{
			index:      i,
			train:      data[trainStart:valStart],
			validation: data[valStart:end],
		})
	}
	return out, failures
}

// Run fetches one history window and backtests every period in it
func (b *Backtester) Run(ctx context.Context, symbol string, cfg Config) (*model.BacktestAnalysis, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	history, err := b.fetch(ctx, symbol, cfg.FetchDays())
	if err != nil {
		return nil, fmt.Errorf("fetching backtest history: %w", err)
	}

	wins, failures := windows(history.Data, cfg)
	for _, err := range failures {
		b.log.Warn().Err(err).Str("symbol", symbol).Msg("backtest period skipped")
	}

	analysis := &model.BacktestAnalysis{
		Symbol:           symbol,
		ForecastDays:     cfg.ForecastDays,
		HistoricalRange:  cfg.HistoricalRange,
		PeriodsRequested: cfg.Periods,
	}
	done := len(failures)
	b.progress(done, cfg.Periods)

	for _, w := range wins {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		period, err := b.runPeriod(ctx, symbol, w, cfg)
		done++
		b.progress(done, cfg.Periods)
		if err != nil {
			failures = append(failures, err)
			b.sink.Failure("backtest_period", symbol)
			b.log.Warn().Err(err).Str("symbol", symbol).Int("period", w.index).Msg("backtest period skipped")
			continue
		}
		analysis.Periods = append(analysis.Periods, *period)
	}

	analysis.PeriodsSkipped = cfg.Periods - len(analysis.Periods)
	if len(analysis.Periods) == 0 {
		return nil, &errs.ComputationError{
			Stage:    "backtest",
			Message:  "no backtest period completed",
			Failures: failures,
		}
	}

	summarize(analysis)
	analysis.Duration = time.Since(start)
	b.sink.ObserveStage("backtest", analysis.Duration)
	b.log.Info().
		Str("symbol", symbol).
		Int("periods", len(analysis.Periods)).
		Float64("accuracy", analysis.OverallAccuracy).
		Dur("elapsed", analysis.Duration).
		Msg("backtest complete")
	return analysis, nil
}

// fetch asks for the full history. When no provider reaches that far back
// the request is retried at the CoinGecko window and the oldest periods are
// skipped.
func (b *Backtester) fetch(ctx context.Context, symbol string, days int) (*model.HistoricalData, error) {
	history, err := b.provider.FetchHistoricalData(ctx, symbol, days)
	if err == nil || !errors.Is(err, provider.ErrHistoryWindow) || days <= provider.CoinGeckoMaxDays {
		return history, err
	}
	b.log.Warn().Err(err).Str("symbol", symbol).Int("days", days).Int("capped", provider.CoinGeckoMaxDays).
		Msg("history window exceeded, retrying with a shorter history")
	return b.provider.FetchHistoricalData(ctx, symbol, provider.CoinGeckoMaxDays)
}

// runPeriod forecasts from the training slice and scores against validation
func (b *Backtester) runPeriod(ctx context.Context, symbol string, w window, cfg Config) (*model.PeriodResult, error) {
	// period-qualified so equal-length windows never share cache entries
	key := fmt.Sprintf("%s#p%d", symbol, w.index)

	results, err := b.indicators.CalculateAll(ctx, key, w.train, cfg.ForecastDays)
	if err != nil {
		return nil, fmt.Errorf("period %d: %w", w.index, err)
	}
	merged := b.merger.MergeIndicators(key, results, cfg.ForecastDays)

	actual := closes(w.validation)
	acc, mae, ok := score(merged, actual)
	if !ok {
		return nil, fmt.Errorf("period %d: merged forecast has no comparable days", w.index)
	}

	period := &model.PeriodResult{
		Index:             w.index,
		TrainStart:        w.train[0].Date,
		TrainEnd:          w.train[len(w.train)-1].Date,
		ValidationEnd:     w.validation[len(w.validation)-1].Date,
		Accuracy:          acc,
		MeanAbsError:      mae,
		IndicatorAccuracy: make(map[string]float64),
		IndicatorError:    make(map[string]float64),
	}
	for _, r := range results {
		if a, e, ok := score(r.Forecast, actual); ok {
			period.IndicatorAccuracy[string(r.Kind)] = a
			period.IndicatorError[string(r.Kind)] = e
		}
	}

	if b.strategies != nil {
		scfg := b.strategyCfg
		scfg.Symbol = key
		scfg.ForecastDays = cfg.ForecastDays
		scfg.Prices = w.train
		combined, err := b.strategies.RunAll(ctx, results, scfg)
		if err != nil {
			b.log.Warn().Err(err).Str("symbol", symbol).Int("period", w.index).Msg("strategies failed for period")
		} else {
			period.StrategyAccuracy = make(map[string]float64)
			period.StrategyError = make(map[string]float64)
			for _, s := range combined.Strategies {
				if a, e, ok := score(s.Forecast, actual); ok {
					period.StrategyAccuracy[s.Name] = a
					period.StrategyError[s.Name] = e
				}
			}
		}
	}
	return period, nil
}

func closes(points []model.PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Close
	}
	return out
}

// score compares forecast averages to the realized closes by day.
// accuracy = max(0, 1 - MAE / mean actual price).
func score(points []model.ForecastPoint, actual []float64) (accuracy, mae float64, ok bool) {
	var errSum, actualSum float64
	n := 0
	for _, p := range points {
		if p.Day < 1 || p.Day > len(actual) {
			continue
		}
		a := actual[p.Day-1]
		errSum += math.Abs(p.Avg - a)
		actualSum += a
		n++
	}
	if n == 0 || actualSum <= 0 {
		return 0, 0, false
	}
	mae = errSum / float64(n)
	meanActual := actualSum / float64(n)
	accuracy = numeric.Sanitize(math.Max(0, 1-mae/meanActual), 0)
	return accuracy, mae, true
}
