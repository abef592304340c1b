// Package analyzer runs one forecast for a coin: it fetches history, computes
// indicators, merges their forecasts and runs the strategies over them.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"coincast/internal/forecast"
	"coincast/internal/indicator"
	"coincast/internal/provider"
	"coincast/internal/strategy"
	"coincast/pkg/model"
)

// Request describes one analysis run
type Request struct {
	Symbol       string
	ForecastDays int
	Range        int // days of history to fetch
}

// Result is everything a run produced, ready for display and export
type Result struct {
	Symbol       string
	ForecastDays int // requested horizon
	History      *model.HistoricalData
	CurrentPrice float64 // 0 when the quote could not be fetched
	Indicators   []model.IndicatorResult
	Forecast     []model.ForecastPoint // merged indicator forecast
	Strategies   *model.CombinedStrategyResult
	Elapsed      time.Duration
}

// Horizon returns the requested horizon, or the merged forecast length for
// results built without one
func (r *Result) Horizon() int {
	if r.ForecastDays > 0 {
		return r.ForecastDays
	}
	return len(r.Forecast)
}

// Analyzer wires the pipeline stages together
type Analyzer struct {
	provider    provider.Provider
	indicators  *indicator.Orchestrator
	merger      *forecast.Merger
	strategies  *strategy.Orchestrator
	strategyCfg strategy.Config
	log         zerolog.Logger
}

// New creates an analyzer. base supplies lookback, risk tolerance and seed
// for the strategies.
func New(p provider.Provider, indicators *indicator.Orchestrator, merger *forecast.Merger, strategies *strategy.Orchestrator, base strategy.Config, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		provider:    p,
		indicators:  indicators,
		merger:      merger,
		strategies:  strategies,
		strategyCfg: base,
		log:         log,
	}
}

// Run executes the full workflow. Only a failed fetch or a stage that
// produced nothing is an error; a missing current price is logged.
func (a *Analyzer) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	history, err := a.provider.FetchHistoricalData(ctx, req.Symbol, req.Range)
	if err != nil {
		return nil, fmt.Errorf("fetching %s history: %w", req.Symbol, err)
	}
	a.log.Info().
		Str("symbol", req.Symbol).
		Str("source", history.Source).
		Bool("cached", history.Cached).
		Int("points", len(history.Data)).
		Msg("history loaded")

	result := &Result{Symbol: req.Symbol, ForecastDays: req.ForecastDays, History: history}

	price, err := a.provider.GetCurrentPrice(ctx, req.Symbol)
	if err != nil {
		a.log.Warn().Err(err).Str("symbol", req.Symbol).Msg("current price unavailable")
	} else {
		result.CurrentPrice = price
	}

	result.Indicators, err = a.indicators.CalculateAll(ctx, req.Symbol, history.Data, req.ForecastDays)
	if err != nil {
		return nil, err
	}
	result.Forecast = a.merger.MergeIndicators(req.Symbol, result.Indicators, req.ForecastDays)

	cfg := a.strategyCfg
	cfg.Symbol = req.Symbol
	cfg.ForecastDays = req.ForecastDays
	cfg.Prices = history.Data
	result.Strategies, err = a.strategies.RunAll(ctx, result.Indicators, cfg)
	if err != nil {
		return nil, err
	}

	result.Elapsed = time.Since(start)
	a.log.Debug().
		Str("symbol", req.Symbol).
		Int("indicators", len(result.Indicators)).
		Int("strategies", len(result.Strategies.Strategies)).
		Dur("elapsed", result.Elapsed).
		Msg("analysis complete")
	return result, nil
}
