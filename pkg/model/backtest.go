package model

import "time"

// PeriodResult scores one historical test window
type PeriodResult struct {
	Index             int                `json:"index"` // 0 is the most recent window
	TrainStart        time.Time          `json:"train_start"`
	TrainEnd          time.Time          `json:"train_end"`
	ValidationEnd     time.Time          `json:"validation_end"`
	Accuracy          float64            `json:"accuracy"`
	MeanAbsError      float64            `json:"mean_abs_error"`
	IndicatorAccuracy map[string]float64 `json:"indicator_accuracy"`
	IndicatorError    map[string]float64 `json:"indicator_error"`
	StrategyAccuracy  map[string]float64 `json:"strategy_accuracy,omitempty"`
	StrategyError     map[string]float64 `json:"strategy_error,omitempty"`
}

// SourcePerformance ranks an indicator or strategy by historical accuracy
type SourcePerformance struct {
	Name        string  `json:"name"`
	Accuracy    float64 `json:"accuracy"`
	AvgError    float64 `json:"avg_error"`
	Reliability float64 `json:"reliability"`
	Periods     int     `json:"periods"`
	Rank        int     `json:"rank"`
}

// BacktestAnalysis is the complete output of a backtest run
type BacktestAnalysis struct {
	Symbol               string              `json:"symbol"`
	ForecastDays         int                 `json:"forecast_days"`
	HistoricalRange      int                 `json:"historical_range"`
	PeriodsRequested     int                 `json:"periods_requested"`
	PeriodsSkipped       int                 `json:"periods_skipped"`
	Periods              []PeriodResult      `json:"periods"`
	OverallAccuracy      float64             `json:"overall_accuracy"`
	OverallError         float64             `json:"overall_error"`
	IndicatorPerformance []SourcePerformance `json:"indicator_performance"`
	StrategyPerformance  []SourcePerformance `json:"strategy_performance,omitempty"`
	Recommendations      []string            `json:"recommendations"`
	Duration             time.Duration       `json:"duration"`
}
