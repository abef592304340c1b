package backtest

import (
	"fmt"
	"sort"
	"strings"

	"coincast/internal/numeric"
	"coincast/pkg/model"
)

const (
	topCount      = 3
	recentPeriods = 3
	// trendMargin is the accuracy gap that counts as a trend
	trendMargin = 0.05
	lowAccuracy = 0.5
	// reliabilityFloor flags sources whose accuracy swings widely
	reliabilityFloor = 0.7
)

// summarize fills the overall figures, rankings and recommendations
func summarize(a *model.BacktestAnalysis) {
	accs := make([]float64, len(a.Periods))
	maes := make([]float64, len(a.Periods))
	indAcc := make(map[string][]float64)
	indErr := make(map[string][]float64)
	stratAcc := make(map[string][]float64)
	stratErr := make(map[string][]float64)

	for i, p := range a.Periods {
		accs[i] = p.Accuracy
		maes[i] = p.MeanAbsError
		for name, v := range p.IndicatorAccuracy {
			indAcc[name] = append(indAcc[name], v)
			indErr[name] = append(indErr[name], p.IndicatorError[name])
		}
		for name, v := range p.StrategyAccuracy {
			stratAcc[name] = append(stratAcc[name], v)
			stratErr[name] = append(stratErr[name], p.StrategyError[name])
		}
	}

	a.OverallAccuracy = numeric.Mean(accs)
	a.OverallError = numeric.Mean(maes)
	a.IndicatorPerformance = rank(indAcc, indErr)
	if len(stratAcc) > 0 {
		a.StrategyPerformance = rank(stratAcc, stratErr)
	}
	a.Recommendations = recommend(a)
}

// rank orders sources by mean accuracy. Reliability is 1 minus the
// coefficient of variation of per-period accuracy.
func rank(accuracy, errors map[string][]float64) []model.SourcePerformance {
	out := make([]model.SourcePerformance, 0, len(accuracy))
	for name, accs := range accuracy {
		out = append(out, model.SourcePerformance{
			Name:        name,
			Accuracy:    numeric.Mean(accs),
			AvgError:    numeric.Mean(errors[name]),
			Reliability: reliability(accs),
			Periods:     len(accs),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Accuracy != out[j].Accuracy {
			return out[i].Accuracy > out[j].Accuracy
		}
		return out[i].Name < out[j].Name
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func reliability(accs []float64) float64 {
	if numeric.Mean(accs) == 0 {
		return 0
	}
	return numeric.Clamp01(1 - numeric.CoefficientOfVariation(accs))
}

func recommend(a *model.BacktestAnalysis) []string {
	var recs []string

	if top := topNames(a.IndicatorPerformance); top != "" {
		recs = append(recs, "Most accurate indicators: "+top)
	}
	if top := topNames(a.StrategyPerformance); top != "" {
		recs = append(recs, "Most accurate strategies: "+top)
	}

	// Periods are ordered newest first
	if len(a.Periods) > recentPeriods {
		recent := make([]float64, recentPeriods)
		for i := range recent {
			recent[i] = a.Periods[i].Accuracy
		}
		r := numeric.Mean(recent)
		switch {
		case r > a.OverallAccuracy+trendMargin:
			recs = append(recs, fmt.Sprintf("Accuracy improving: last %d periods %.1f%% vs %.1f%% overall", recentPeriods, r*100, a.OverallAccuracy*100))
		case r < a.OverallAccuracy-trendMargin:
			recs = append(recs, fmt.Sprintf("Accuracy declining: last %d periods %.1f%% vs %.1f%% overall", recentPeriods, r*100, a.OverallAccuracy*100))
		default:
			recs = append(recs, fmt.Sprintf("Accuracy stable over the last %d periods", recentPeriods))
		}
	}

	var unreliable []string
	for _, p := range a.IndicatorPerformance {
		if p.Periods > 1 && p.Reliability < reliabilityFloor {
			unreliable = append(unreliable, p.Name)
		}
	}
	if len(unreliable) > 0 {
		recs = append(recs, "Inconsistent across periods: "+strings.Join(unreliable, ", "))
	}

	if a.OverallAccuracy < lowAccuracy {
		recs = append(recs, fmt.Sprintf("Overall accuracy %.1f%% is low; treat forecasts as indicative only", a.OverallAccuracy*100))
	}
	if a.PeriodsSkipped > 0 {
		recs = append(recs, fmt.Sprintf("%d of %d periods skipped; fetch a longer history for a fuller test", a.PeriodsSkipped, a.PeriodsRequested))
	}
	return recs
}

func topNames(perf []model.SourcePerformance) string {
	var parts []string
	for i, p := range perf {
		if i >= topCount {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%.1f%%)", p.Name, p.Accuracy*100))
	}
	return strings.Join(parts, ", ")
}
