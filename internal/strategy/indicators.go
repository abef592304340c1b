package strategy

import (
	"coincast/internal/numeric"
	"coincast/pkg/model"
)

// candles holds the price arrays strategies read directly, oldest first
type candles struct {
	opens   []float64
	closes  []float64
	highs   []float64
	lows    []float64
	volumes []float64
}

// candlesOf copies the price points. A missing open is the previous close.
func candlesOf(prices []model.PricePoint) candles {
	c := candles{
		opens:   make([]float64, len(prices)),
		closes:  make([]float64, len(prices)),
		highs:   make([]float64, len(prices)),
		lows:    make([]float64, len(prices)),
		volumes: make([]float64, len(prices)),
	}
	for i, p := range prices {
		open := p.Open
		if open == 0 {
			open = p.Close
			if i > 0 {
				open = prices[i-1].Close
			}
		}
		c.opens[i] = open
		c.closes[i] = p.Close
		c.highs[i] = max(p.High, p.Close, open)
		low := p.Low
		if low == 0 || low > min(p.Close, open) {
			low = min(p.Close, open)
		}
		c.lows[i] = low
		c.volumes[i] = p.Volume
	}
	return c
}

func (c candles) len() int {
	return len(c.closes)
}

func (c candles) lastClose() float64 {
	return numeric.Last(c.closes)
}

// volumeRatio compares the last volume with the average of the period before
// it. Zero when there is no volume data.
func volumeRatio(volumes []float64, period int) float64 {
	if len(volumes) < period+1 {
		return 0
	}
	avg := numeric.Mean(volumes[len(volumes)-1-period : len(volumes)-1])
	if avg <= 0 {
		return 0
	}
	return volumes[len(volumes)-1] / avg
}

// lineOf returns a named historical line of an indicator, or nil
func lineOf(set model.IndicatorSet, kind model.IndicatorKind, name string) []float64 {
	r, ok := set.Get(kind)
	if !ok {
		return nil
	}
	return r.Line(name)
}

// lastOf returns the final value of a named line
func lastOf(set model.IndicatorSet, kind model.IndicatorKind, name string) (float64, bool) {
	line := lineOf(set, kind, name)
	if len(line) == 0 {
		return 0, false
	}
	return line[len(line)-1], true
}

// alignTails trims two series to their common right-aligned length
func alignTails(a, b []float64) ([]float64, []float64) {
	n := min(len(a), len(b))
	return numeric.Tail(a, n), numeric.Tail(b, n)
}

// relativeSlope is the fractional change from a to b, scaled by |a|
func relativeSlope(a, b float64) float64 {
	if a == 0 {
		return numeric.Sanitize(b-a, 0)
	}
	return (b - a) / abs(a)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// CalculateBandwidth returns the Bollinger bandwidth of the last period
// closes, (upper-lower)/middle
func CalculateBandwidth(closes []float64, period int, stdDev float64) float64 {
	if len(closes) < period {
		return 0
	}
	window := closes[len(closes)-period:]
	ma := numeric.Mean(window)
	if ma == 0 {
		return 0
	}
	return 2 * stdDev * numeric.StdDev(window) / ma
}
