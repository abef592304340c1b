package indicator

import (
	"math"

	"github.com/sdcoffey/techan"

	"coincast/internal/numeric"
)

const (
	bollingerPeriod = 20
	bollingerSigma  = 2.0
	vwapPeriod      = 20
)

// computeBollinger reverts toward the middle band, with the band width
// setting the projected spread
func computeBollinger(in Input, days int) (Output, error) {
	series := newSeries(in)
	closes := techan.NewClosePriceIndicator(series)
	upper := techan.NewBollingerUpperBandIndicator(closes, bollingerPeriod, bollingerSigma)
	lower := techan.NewBollingerLowerBandIndicator(closes, bollingerPeriod, bollingerSigma)
	middle := techan.NewSimpleMovingAverage(closes, bollingerPeriod)

	from := bollingerPeriod - 1
	upperLine := collect(upper, from, in.Len())
	lowerLine := collect(lower, from, in.Len())
	middleLine := collect(middle, from, in.Len())
	bandwidth := make([]float64, len(middleLine))
	for i := range middleLine {
		if middleLine[i] > 0 {
			bandwidth[i] = (upperLine[i] - lowerLine[i]) / middleLine[i]
		}
	}

	last := numeric.Last(in.Closes)
	u, l := numeric.Last(upperLine), numeric.Last(lowerLine)
	percentB := 0.5
	if u > l {
		percentB = (last - l) / (u - l)
	}
	signal := numeric.Clamp((0.5-percentB)*2, -1, 1)

	// bandwidth spans four standard deviations of price
	vol := math.Max(dailyVolatility(in.Closes), numeric.Last(bandwidth)/4/math.Sqrt(bollingerPeriod))
	p := projection{
		source:     "Bollinger",
		last:       last,
		drift:      signal * vol * 0.4,
		volatility: vol,
		confidence: confidenceFrom(math.Abs(signal)),
		decay:      0.03,
	}
	return Output{
		Forecast: p.forecast(days),
		Lines: map[string][]float64{
			"upper":     upperLine,
			"middle":    middleLine,
			"lower":     lowerLine,
			"bandwidth": bandwidth,
		},
	}, nil
}

// computeVWAP follows price relative to the rolling volume-weighted average.
// Without volume the typical-price average is used.
func computeVWAP(in Input, days int) (Output, error) {
	n := in.Len()
	typical := make([]float64, n)
	for i := range typical {
		typical[i] = (in.Highs[i] + in.Lows[i] + in.Closes[i]) / 3
	}

	line := make([]float64, 0, n-vwapPeriod+1)
	for i := vwapPeriod; i <= n; i++ {
		var pv, v float64
		for j := i - vwapPeriod; j < i; j++ {
			pv += typical[j] * in.Volumes[j]
			v += in.Volumes[j]
		}
		if v > 0 {
			line = append(line, pv/v)
		} else {
			line = append(line, numeric.Mean(typical[i-vwapPeriod:i]))
		}
	}

	last := numeric.Last(in.Closes)
	vwap := numeric.Last(line)
	var signal float64
	if vwap > 0 {
		signal = numeric.Clamp((last-vwap)/vwap*10, -1, 1)
	}

	vol := dailyVolatility(in.Closes)
	p := projection{
		source:     "VWAP",
		last:       last,
		drift:      signal * vol * 0.4,
		volatility: vol,
		confidence: confidenceFrom(math.Abs(signal)),
		decay:      0.03,
	}
	return Output{
		Forecast: p.forecast(days),
		Lines:    map[string][]float64{"vwap": line},
	}, nil
}
