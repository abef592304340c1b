package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"coincast/internal/cache"
	"coincast/internal/config"
	"coincast/internal/display"
	"coincast/internal/forecast"
	"coincast/internal/indicator"
	"coincast/internal/logger"
	"coincast/internal/metrics"
	"coincast/internal/provider"
	"coincast/internal/strategy"
	"coincast/pkg/model"
)

// debugCacheEnv enables the cache and metrics dump after a run
const debugCacheEnv = "COINCAST_DEBUG_CACHE"

// app holds the components shared by every command of one process
type app struct {
	cfg        *config.Config
	log        zerolog.Logger
	recorder   *metrics.Recorder
	provider   *provider.CachingProvider
	indicators *indicator.Orchestrator
	merger     *forecast.Merger
	strategies *strategy.Orchestrator
	chart      *display.Chart
}

func newApp(cfgFile, logLevel string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.NewWithWriter(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}, logOut)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, recorder: metrics.New()}

	providers := []provider.Provider{provider.NewCoinGeckoProvider(cfg.Providers.CoinGecko)}
	if cfg.Providers.Binance.Enabled {
		providers = append(providers, provider.NewBinanceProvider(cfg.Providers.Binance))
	}
	fallback := provider.NewFallbackProvider(log, providers...)
	if !fallback.IsAvailable() {
		return nil, provider.ErrNoProviders
	}
	a.provider = provider.NewCachingProvider(fallback,
		cache.New[model.HistoricalData]("provider", a.cacheOptions(cfg.Cache.ProviderTTL)...), a.recorder)

	a.merger = forecast.NewMerger(
		forecast.WithCache(cache.New[[]model.ForecastPoint]("merge", a.cacheOptions(cfg.Cache.MergeTTL)...)),
		forecast.WithLogger(log),
		forecast.WithSink(a.recorder),
	)
	a.indicators = indicator.NewOrchestrator(
		indicator.WithCache(cache.New[model.IndicatorResult]("indicator", a.cacheOptions(cfg.Cache.IndicatorTTL)...)),
		indicator.WithLogger(log),
		indicator.WithSink(a.recorder),
	)
	a.strategies = strategy.NewOrchestrator(
		strategy.All(a.cacheOptions(cfg.Cache.StrategyTTL)...),
		a.merger,
		strategy.WithCache(cache.New[model.CombinedStrategyResult]("combined", a.cacheOptions(cfg.Cache.CombinedTTL)...)),
		strategy.WithLogger(log),
		strategy.WithSink(a.recorder),
	)
	a.chart = display.NewChart(display.DefaultChartConfig(),
		cache.New[string]("chart", a.cacheOptions(cfg.Cache.ChartTTL)...))
	return a, nil
}

func (a *app) cacheOptions(ttl time.Duration) []cache.Option {
	return []cache.Option{
		cache.WithTTL(ttl),
		cache.WithMaxEntries(a.cfg.Cache.MaxEntries),
		cache.WithObserver(a.recorder),
	}
}

// strategyConfig returns the strategy settings of the config file for one run
func (a *app) strategyConfig() strategy.Config {
	cfg := strategy.DefaultConfig()
	cfg.Lookback = a.cfg.Strategy.Lookback
	cfg.RiskTolerance = a.cfg.Strategy.RiskTolerance
	cfg.Seed = a.cfg.Strategy.Seed
	return cfg
}

func (a *app) cacheStats() []cache.Stats {
	stats := []cache.Stats{
		a.provider.Cache().Stats(),
		a.indicators.Cache().Stats(),
		a.merger.Cache().Stats(),
		a.strategies.Cache().Stats(),
		a.chart.Cache().Stats(),
	}
	for _, s := range a.strategies.Strategies() {
		if c, ok := s.(interface {
			Cache() *cache.Cache[model.StrategyResult]
		}); ok {
			stats = append(stats, c.Cache().Stats())
		}
	}
	return stats
}

// debugDump prints cache sizes and counters when the debug flag is set
func (a *app) debugDump(w io.Writer) {
	if os.Getenv(debugCacheEnv) != "1" {
		return
	}
	fmt.Fprintln(w)
	if err := display.CacheTable(w, a.cacheStats()); err != nil {
		a.log.Warn().Err(err).Msg("rendering cache stats")
	}
	if err := a.recorder.WriteText(w); err != nil {
		a.log.Warn().Err(err).Msg("dumping metrics")
	}
}
