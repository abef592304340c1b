package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"coincast/internal/analyzer"
	"coincast/internal/backtest"
	"coincast/internal/config"
	"coincast/internal/display"
	"coincast/internal/export"
	"coincast/internal/strategy"
)

type globalFlags struct {
	cfgFile  string
	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		global globalFlags
		run    config.RunConfig
	)

	rootCmd := &cobra.Command{
		Use:   "coincast",
		Short: "Cryptocurrency price forecasts from technical indicators",
		Long: `Coincast fetches daily price history for a coin, computes ten technical
indicators, merges their forecasts into a weighted consensus and runs six
signal strategies over them.

Examples:
  coincast --coin BTC
  coincast --coin ETH --forecast 30 --compare
  coincast --coin SOL --save sol.json
  coincast backtest --coin BTC --periods 8 --strategies`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForecast(cmd, global, run)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&global.cfgFile, "config", "config.yaml", "config file path")
	pf.StringVar(&global.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	f := rootCmd.Flags()
	f.StringVar(&run.Coin, "coin", "", "coin symbol, e.g. BTC")
	f.IntVar(&run.Forecast, "forecast", 10, "forecast horizon in days: 10, 20 or 30")
	f.IntVar(&run.Range, "range", 90, "days of history to analyze (30-365)")
	f.StringVar(&run.Save, "save", "", "export the forecast to a .json or .csv file")
	f.BoolVar(&run.Compare, "compare", false, "show every indicator's forecast")
	f.StringVar(&run.Format, "format", "table", "output format: table, json")
	f.BoolVar(&run.NoChart, "no-chart", false, "skip the ASCII chart")

	rootCmd.AddCommand(newBacktestCmd(&global), newStrategiesCmd())
	return rootCmd
}

func runForecast(cmd *cobra.Command, global globalFlags, run config.RunConfig) error {
	if err := run.Prepare(); err != nil {
		return err
	}
	a, err := newApp(global.cfgFile, global.logLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	an := analyzer.New(a.provider, a.indicators, a.merger, a.strategies, a.strategyConfig(), a.log)
	res, err := an.Run(cmd.Context(), analyzer.Request{Symbol: run.Coin, ForecastDays: run.Forecast, Range: run.Range})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if run.Format == "json" {
		err = export.WriteJSON(out, export.FromResult(res, time.Now()))
	} else {
		err = display.NewPrinter(out, a.chart).PrintAnalysis(res, display.ReportOptions{
			Compare: run.Compare,
			NoChart: run.NoChart,
		})
	}
	if err != nil {
		return fmt.Errorf("printing forecast: %w", err)
	}

	// export is optional, a failure does not fail the run
	if run.Save != "" {
		if err := export.Write(run.Save, export.FromResult(res, time.Now())); err != nil {
			a.log.Error().Err(err).Str("path", run.Save).Msg("export failed")
		} else {
			a.log.Info().Str("path", run.Save).Msg("forecast saved")
		}
	}

	a.debugDump(out)
	return nil
}

func newBacktestCmd(global *globalFlags) *cobra.Command {
	var run config.BacktestRunConfig

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Score the forecasts against past prices",
		Long: `Backtest replays the forecast over non-overlapping historical periods and
compares each forecast with the prices that followed. Periods default to the
backtest section of the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(global.cfgFile, global.logLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if !flags.Changed("periods") {
				run.Periods = a.cfg.Backtest.Periods
			}
			if !flags.Changed("range") {
				run.HistoricalRange = a.cfg.Backtest.HistoricalRange
			}
			if !flags.Changed("min-data") {
				run.MinDataPoints = a.cfg.Backtest.MinDataPoints
			}
			if err := run.Prepare(); err != nil {
				return err
			}
			return runBacktest(cmd, a, run)
		},
	}

	f := cmd.Flags()
	f.StringVar(&run.Coin, "coin", "", "coin symbol, e.g. BTC")
	f.IntVar(&run.Periods, "periods", 5, "number of test periods (1-20)")
	f.IntVar(&run.ForecastDays, "forecast", 10, "forecast horizon per period: 10, 20 or 30")
	f.IntVar(&run.HistoricalRange, "range", 90, "training window in days (30-365)")
	f.IntVar(&run.MinDataPoints, "min-data", 20, "shortest training window still tested")
	f.BoolVar(&run.Strategies, "strategies", false, "also score the strategy forecasts")
	return cmd
}

func runBacktest(cmd *cobra.Command, a *app, run config.BacktestRunConfig) error {
	cfg := backtest.Config{
		Periods:         run.Periods,
		ForecastDays:    run.ForecastDays,
		HistoricalRange: run.HistoricalRange,
		MinDataPoints:   run.MinDataPoints,
	}

	opts := []backtest.Option{
		backtest.WithLogger(a.log),
		backtest.WithSink(a.recorder),
		backtest.WithProgress(display.NewProgress(cmd.ErrOrStderr(), run.Periods, "Backtesting")),
	}
	if run.Strategies {
		opts = append(opts, backtest.WithStrategies(a.strategies, a.strategyConfig()))
	}

	bt := backtest.NewBacktester(a.provider, a.indicators, a.merger, opts...)
	analysis, err := bt.Run(cmd.Context(), run.Coin, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := display.NewPrinter(out, a.chart).PrintBacktest(analysis); err != nil {
		return fmt.Errorf("printing backtest: %w", err)
	}
	a.debugDump(out)
	return nil
}

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the signal strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return display.StrategyInfoTable(cmd.OutOrStdout(), strategy.AllInfo())
		},
	}
}
