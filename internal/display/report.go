package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/schollz/progressbar/v3"

	"coincast/internal/analyzer"
	"coincast/pkg/model"
)

// ReportOptions selects the optional report sections
type ReportOptions struct {
	Compare bool
	NoChart bool
}

// Printer writes reports to a terminal
type Printer struct {
	w     io.Writer
	chart *Chart
}

// NewPrinter creates a printer. A nil chart gets a default one.
func NewPrinter(w io.Writer, chart *Chart) *Printer {
	if chart == nil {
		chart = NewChart(DefaultChartConfig(), nil)
	}
	return &Printer{w: w, chart: chart}
}

func (p *Printer) heading(format string, args ...any) {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, headingColor.Sprintf(format, args...))
}

// PrintAnalysis prints the forecast report of one run
func (p *Printer) PrintAnalysis(res *analyzer.Result, opts ReportOptions) error {
	base := res.CurrentPrice
	var last model.PricePoint
	if n := len(res.History.Data); n > 0 {
		last = res.History.Data[n-1]
		if base == 0 {
			base = last.Close
		}
	}

	p.heading("%s %d-day forecast", res.Symbol, res.Horizon())
	source := res.History.Source
	if res.History.Cached {
		source += ", cached"
	}
	fmt.Fprintf(p.w, "Data: %d days from %s\n", len(res.History.Data), source)
	if res.CurrentPrice > 0 {
		fmt.Fprintf(p.w, "Current price: %s\n", Price(res.CurrentPrice))
	} else {
		fmt.Fprintf(p.w, "Last close: %s (live quote unavailable)\n", Price(last.Close))
	}
	fmt.Fprintf(p.w, "24h volume: %s\n", Volume(last.Volume))

	if !opts.NoChart {
		fmt.Fprintln(p.w)
		fmt.Fprint(p.w, p.chart.Render(res.History.Data, res.Forecast))
	}

	p.heading("Combined forecast")
	if err := ForecastTable(p.w, res.Forecast, base); err != nil {
		return err
	}

	if opts.Compare {
		p.heading("Indicators")
		if err := IndicatorTable(p.w, res.Indicators, base); err != nil {
			return err
		}
	}

	if res.Strategies != nil {
		p.printStrategies(res.Strategies, base)
	}

	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, dimColor.Sprintf("Completed in %s", res.Elapsed.Round(1e6)))
	return nil
}

func (p *Printer) printStrategies(c *model.CombinedStrategyResult, base float64) {
	p.heading("Strategies")
	if err := StrategyTable(p.w, c.Strategies); err != nil {
		fmt.Fprintf(p.w, "rendering strategies: %v\n", err)
	}
	if len(c.Performance.FailedWith) > 0 {
		fmt.Fprintf(p.w, "Skipped: %s\n", strings.Join(c.Performance.FailedWith, ", "))
	}

	p.heading("Consensus")
	fmt.Fprintf(p.w, "Signal: %s  confidence %s\n", Recommendation(c.Signal.Recommendation), Confidence(c.Signal.ConfidenceScore))
	fmt.Fprintf(p.w, "Votes: %d buy, %d sell, %d neutral (avg confidence %s)\n",
		c.Consensus.BuyVotes, c.Consensus.SellVotes, c.Consensus.NeutralVotes, Percent(c.Consensus.AverageConfidence))
	if s := c.Consensus.Strongest; s != nil {
		fmt.Fprintf(p.w, "Strongest: %s (%s %s)\n", s.Name, Recommendation(s.Signal.Recommendation), Percent(s.Signal.ConfidenceScore))
	}
	for _, r := range c.Signal.Reasons[min(1, len(c.Signal.Reasons)):] {
		fmt.Fprintf(p.w, "  - %s\n", r)
	}
	if n := len(c.Forecast); n > 0 {
		end := c.Forecast[n-1]
		fmt.Fprintf(p.w, "Strategy forecast day %d: %s (%s)\n", end.Day, Price(end.Avg), Change(base, end.Avg))
	}
}

// PrintBacktest prints a backtest analysis
func (p *Printer) PrintBacktest(a *model.BacktestAnalysis) error {
	p.heading("%s backtest: %d periods of %d days", a.Symbol, len(a.Periods), a.ForecastDays)
	fmt.Fprintf(p.w, "Overall accuracy: %s  mean abs error: %s\n", Percent(a.OverallAccuracy), Price(a.OverallError))
	if a.PeriodsSkipped > 0 {
		fmt.Fprintf(p.w, "Skipped periods: %d of %d\n", a.PeriodsSkipped, a.PeriodsRequested)
	}

	p.heading("Periods")
	if err := PeriodTable(p.w, a.Periods); err != nil {
		return err
	}
	p.heading("Indicator ranking")
	if err := PerformanceTable(p.w, a.IndicatorPerformance); err != nil {
		return err
	}
	if len(a.StrategyPerformance) > 0 {
		p.heading("Strategy ranking")
		if err := PerformanceTable(p.w, a.StrategyPerformance); err != nil {
			return err
		}
	}

	p.heading("Recommendations")
	for _, r := range a.Recommendations {
		fmt.Fprintf(p.w, "  - %s\n", r)
	}
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, dimColor.Sprintf("Completed in %s", a.Duration.Round(1e6)))
	return nil
}

// NewProgress returns a per-period callback drawing a progress bar on w
func NewProgress(w io.Writer, total int, description string) func(done, total int) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
	return func(done, _ int) {
		_ = bar.Set(done)
	}
}
