package display

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"coincast/internal/cache"
	"coincast/internal/strategy"
	"coincast/pkg/model"
)

// ForecastTable prints the merged forecast. Long horizons are sampled every
// five days plus the first and last day.
func ForecastTable(w io.Writer, points []model.ForecastPoint, base float64) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Day", "Low", "Avg", "High", "Change", "Confidence"}),
	)
	for i, p := range points {
		if len(points) > 10 && i != 0 && i != len(points)-1 && p.Day%5 != 0 {
			continue
		}
		if err := table.Append([]string{
			strconv.Itoa(p.Day),
			Price(p.Low),
			Price(p.Avg),
			Price(p.High),
			Change(base, p.Avg),
			Confidence(p.Confidence),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// IndicatorTable compares every indicator's final forecast (--compare)
func IndicatorTable(w io.Writer, results []model.IndicatorResult, base float64) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Indicator", "Final Avg", "Range", "Change", "Confidence", "Accuracy", "Weight"}),
	)
	for _, r := range results {
		if len(r.Forecast) == 0 {
			continue
		}
		last := r.Forecast[len(r.Forecast)-1]
		if err := table.Append([]string{
			r.Name,
			Price(last.Avg),
			Price(last.Low) + " - " + Price(last.High),
			Change(base, last.Avg),
			Confidence(last.Confidence),
			Percent(r.Accuracy),
			fmt.Sprintf("%.2f", r.Weight),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// StrategyTable prints each strategy's signal
func StrategyTable(w io.Writer, results []model.StrategyResult) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Strategy", "Signal", "Confidence", "Weight", "Accuracy", "Reason"}),
	)
	for _, r := range results {
		reason := ""
		if len(r.Signal.Reasons) > 0 {
			reason = r.Signal.Reasons[0]
		}
		if err := table.Append([]string{
			r.Name,
			Recommendation(r.Signal.Recommendation),
			Confidence(r.Signal.ConfidenceScore),
			fmt.Sprintf("%.2f", r.Weight),
			Percent(r.Accuracy),
			reason,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// PerformanceTable prints a ranked backtest performance list
func PerformanceTable(w io.Writer, perf []model.SourcePerformance) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Rank", "Name", "Accuracy", "Avg Error", "Reliability", "Periods"}),
	)
	for _, p := range perf {
		if err := table.Append([]string{
			strconv.Itoa(p.Rank),
			p.Name,
			Percent(p.Accuracy),
			Price(p.AvgError),
			Percent(p.Reliability),
			strconv.Itoa(p.Periods),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// PeriodTable prints every tested backtest window
func PeriodTable(w io.Writer, periods []model.PeriodResult) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Period", "Training", "Validated To", "Accuracy", "MAE"}),
	)
	for _, p := range periods {
		if err := table.Append([]string{
			strconv.Itoa(p.Index + 1),
			p.TrainStart.Format("2006-01-02") + " ~ " + p.TrainEnd.Format("2006-01-02"),
			p.ValidationEnd.Format("2006-01-02"),
			Percent(p.Accuracy),
			Price(p.MeanAbsError),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// StrategyInfoTable lists the registered strategies
func StrategyInfoTable(w io.Writer, infos []strategy.Info) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Name", "Description", "Requires"}),
	)
	for _, info := range infos {
		if err := table.Append([]string{info.Name, info.Description, info.Requires}); err != nil {
			return err
		}
	}
	return table.Render()
}

// CacheTable prints cache sizes for the debug dump
func CacheTable(w io.Writer, stats []cache.Stats) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Cache", "Entries", "Live", "Max", "TTL"}),
	)
	for _, s := range stats {
		if err := table.Append([]string{
			s.Name,
			strconv.Itoa(s.Entries),
			strconv.Itoa(s.Live),
			strconv.Itoa(s.MaxEntries),
			s.TTL.String(),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
