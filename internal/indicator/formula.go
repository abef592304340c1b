// Package indicator implements the ten technical indicator formulas and the
// orchestrator that runs them concurrently against one price series.
//
// Every formula is a pure function from a price series to a day-indexed
// forecast. Formulas never share state: each receives its own copy of the
// input arrays.
package indicator

import (
	"math"

	"coincast/internal/numeric"
	"coincast/pkg/model"
)

// Input holds independent copies of the price arrays, oldest first
type Input struct {
	Opens   []float64
	Closes  []float64
	Highs   []float64
	Lows    []float64
	Volumes []float64
}

// NewInput copies the price points into fresh arrays. Missing opens are
// replaced with the previous close.
func NewInput(prices []model.PricePoint) Input {
	in := Input{
		Opens:   make([]float64, len(prices)),
		Closes:  make([]float64, len(prices)),
		Highs:   make([]float64, len(prices)),
		Lows:    make([]float64, len(prices)),
		Volumes: make([]float64, len(prices)),
	}
	for i, p := range prices {
		open := p.Open
		if open == 0 {
			open = p.Close
			if i > 0 {
				open = prices[i-1].Close
			}
		}
		high := math.Max(p.High, math.Max(p.Close, open))
		low := p.Low
		if low == 0 || low > math.Min(p.Close, open) {
			low = math.Min(p.Close, open)
		}

		in.Opens[i] = open
		in.Closes[i] = p.Close
		in.Highs[i] = high
		in.Lows[i] = low
		in.Volumes[i] = p.Volume
	}
	return in
}

// Len returns the number of points
func (in Input) Len() int {
	return len(in.Closes)
}

// Output is what a formula computes
type Output struct {
	Forecast []model.ForecastPoint
	Lines    map[string][]float64
}

// Formula describes one indicator
type Formula struct {
	Kind     model.IndicatorKind
	Name     string
	MinData  int
	Accuracy float64 // static historical accuracy estimate
	Weight   float64 // static contribution weight
	Compute  func(in Input, days int) (Output, error)
}

// DefaultFormulas returns the ten indicators in dispatch order. Weights sum
// to 1.0.
func DefaultFormulas() []Formula {
	return []Formula{
		{Kind: model.KindRSI, Name: "RSI", MinData: 15, Accuracy: 0.65, Weight: 0.12, Compute: computeRSI},
		{Kind: model.KindEMA, Name: "EMA", MinData: 20, Accuracy: 0.68, Weight: 0.12, Compute: computeEMA},
		{Kind: model.KindMACD, Name: "MACD", MinData: 35, Accuracy: 0.70, Weight: 0.13, Compute: computeMACD},
		{Kind: model.KindSMA, Name: "SMA", MinData: 20, Accuracy: 0.62, Weight: 0.10, Compute: computeSMA},
		{Kind: model.KindBollinger, Name: "Bollinger", MinData: 20, Accuracy: 0.66, Weight: 0.11, Compute: computeBollinger},
		{Kind: model.KindStochastic, Name: "Stochastic", MinData: 17, Accuracy: 0.60, Weight: 0.09, Compute: computeStochastic},
		{Kind: model.KindVWAP, Name: "VWAP", MinData: 20, Accuracy: 0.63, Weight: 0.08, Compute: computeVWAP},
		{Kind: model.KindADX, Name: "ADX", MinData: 28, Accuracy: 0.64, Weight: 0.09, Compute: computeADX},
		{Kind: model.KindSAR, Name: "Parabolic SAR", MinData: 10, Accuracy: 0.61, Weight: 0.07, Compute: computeSAR},
		{Kind: model.KindIchimoku, Name: "Ichimoku", MinData: 52, Accuracy: 0.67, Weight: 0.09, Compute: computeIchimoku},
	}
}

const (
	maxDailyDrift = 0.02
	minDailyVol   = 0.005
	maxDailyVol   = 0.15
	volLookback   = 20
)

// projection turns a directional bias into a day-indexed forecast
type projection struct {
	source     string
	last       float64 // last close
	drift      float64 // expected daily return
	volatility float64 // daily return stddev
	confidence float64 // day-1 confidence
	decay      float64 // fractional confidence lost per day
}

func (p projection) forecast(days int) []model.ForecastPoint {
	drift := numeric.Clamp(numeric.Sanitize(p.drift, 0), -maxDailyDrift, maxDailyDrift)
	vol := numeric.Clamp(numeric.Sanitize(p.volatility, minDailyVol), minDailyVol, maxDailyVol)
	decay := numeric.Clamp(p.decay, 0, 0.5)

	points := make([]model.ForecastPoint, 0, days)
	for d := 1; d <= days; d++ {
		avg := p.last * math.Pow(1+drift, float64(d))
		band := math.Min(vol*math.Sqrt(float64(d)), 0.9)
		high := avg * (1 + band)
		low := math.Max(avg*(1-band), 0)

		points = append(points, model.ForecastPoint{
			Day:        d,
			High:       numeric.Sanitize(high, p.last),
			Low:        numeric.Sanitize(low, p.last),
			Avg:        numeric.Sanitize(avg, p.last),
			Confidence: numeric.Clamp01(p.confidence * math.Pow(1-decay, float64(d-1))),
			Indicator:  p.source,
		})
	}
	return points
}

// dailyVolatility is the stddev of the last volLookback daily returns,
// clamped to the projection's volatility range
func dailyVolatility(closes []float64) float64 {
	closes = numeric.Tail(closes, volLookback+1)
	if len(closes) < 2 {
		return minDailyVol
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	return numeric.Clamp(numeric.StdDev(returns), minDailyVol, maxDailyVol)
}

// slope returns the average per-step relative change over the last n steps
func slope(values []float64, n int) float64 {
	if len(values) < n+1 || n <= 0 {
		return 0
	}
	from := values[len(values)-1-n]
	to := values[len(values)-1]
	if from == 0 {
		return 0
	}
	return (to/from - 1) / float64(n)
}

// confidenceFrom maps a conviction in [0,1] to a day-1 confidence
func confidenceFrom(conviction float64) float64 {
	return numeric.Clamp01(0.45 + 0.4*numeric.Clamp01(conviction))
}
