package model

import "time"

// PricePoint represents one daily observation of a coin's price
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open,omitempty"` // 0 when the provider has no open
	Close  float64   `json:"close"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Volume float64   `json:"volume"`
}

// HistoricalData is the result of a historical price fetch
type HistoricalData struct {
	Symbol    string       `json:"symbol"`
	Data      []PricePoint `json:"data"`
	Source    string       `json:"source"`
	Cached    bool         `json:"cached"`
	Timestamp time.Time    `json:"timestamp"`
}

// ForecastPoint is a single day-ahead projection
type ForecastPoint struct {
	Day        int     `json:"day"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Avg        float64 `json:"avg"`
	Confidence float64 `json:"confidence"`
	Indicator  string  `json:"indicator"`
}

// MergedSource tags points produced by the forecast merge
const MergedSource = "combined"

// IndicatorResult is the output of one indicator formula
type IndicatorResult struct {
	Name          string               `json:"name"`
	Kind          IndicatorKind        `json:"kind"`
	Forecast      []ForecastPoint      `json:"forecast"`
	Accuracy      float64              `json:"accuracy"`
	Weight        float64              `json:"weight"`
	ExecutionTime time.Duration        `json:"execution_time"`
	Lines         map[string][]float64 `json:"-"` // historical series, right-aligned to the prices
}

// Line returns the named historical series, or nil
func (r IndicatorResult) Line(name string) []float64 {
	if r.Lines == nil {
		return nil
	}
	return r.Lines[name]
}

// Recommendation is the direction of a trade signal
type Recommendation string

const (
	Buy     Recommendation = "buy"
	Sell    Recommendation = "sell"
	Neutral Recommendation = "neutral"
)

// TradeSignal is a directional recommendation from a strategy or the consensus
type TradeSignal struct {
	Recommendation  Recommendation `json:"recommendation"`
	Reasons         []string       `json:"reasons"`
	ConfidenceScore float64        `json:"confidence_score"`
	Timestamp       time.Time      `json:"timestamp"`
	Strategy        string         `json:"strategy"`
}

// StrategyResult is the output of one strategy execution
type StrategyResult struct {
	Name          string          `json:"name"`
	Signal        TradeSignal     `json:"signal"`
	Forecast      []ForecastPoint `json:"forecast"`
	Accuracy      float64         `json:"accuracy"`
	Weight        float64         `json:"weight"` // derived from the run's confidence
	ExecutionTime time.Duration   `json:"execution_time"`
}

// Consensus summarizes how the strategies voted
type Consensus struct {
	BuyVotes          int             `json:"buy_votes"`
	SellVotes         int             `json:"sell_votes"`
	NeutralVotes      int             `json:"neutral_votes"`
	AverageConfidence float64         `json:"average_confidence"`
	Strongest         *StrategyResult `json:"strongest,omitempty"`
}

// PerformanceStats records execution statistics for a strategy run
type PerformanceStats struct {
	TotalTime  time.Duration `json:"total_time"`
	Executed   int           `json:"executed"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	FailedWith []string      `json:"failed_with,omitempty"`
}

// CombinedStrategyResult aggregates all strategy results into one consensus
type CombinedStrategyResult struct {
	Strategies  []StrategyResult `json:"strategies"`
	Signal      TradeSignal      `json:"signal"`
	Forecast    []ForecastPoint  `json:"forecast"`
	Consensus   Consensus        `json:"consensus"`
	Performance PerformanceStats `json:"performance"`
}
