package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/sdcoffey/techan"

	"coincast/internal/errs"
	"coincast/internal/numeric"
)

const (
	emaPeriod = 12
	smaPeriod = 20
	adxPeriod = 14

	sarStep = 0.02
	sarMax  = 0.2

	tenkanPeriod = 9
	kijunPeriod  = 26
	spanBPeriod  = 52
)

// computeEMA extends the recent EMA slope
func computeEMA(in Input, days int) (Output, error) {
	series := newSeries(in)
	ema := techan.NewEMAIndicator(techan.NewClosePriceIndicator(series), emaPeriod)
	line := collect(ema, emaPeriod-1, in.Len())

	last := numeric.Last(in.Closes)
	trend := slope(line, 5)
	e := numeric.Last(line)
	// price on the same side as the slope confirms the trend
	agreement := 0.0
	if e > 0 && (last-e)*trend > 0 {
		agreement = math.Min(math.Abs(last-e)/e*20, 1)
	}

	vol := dailyVolatility(in.Closes)
	p := projection{
		source:     "EMA",
		last:       last,
		drift:      trend * 0.6,
		volatility: vol,
		confidence: confidenceFrom(0.3 + 0.7*agreement),
		decay:      0.02,
	}
	return Output{
		Forecast: p.forecast(days),
		Lines:    map[string][]float64{"ema": line},
	}, nil
}

// computeSMA blends the SMA slope with a pull back toward the average
func computeSMA(in Input, days int) (Output, error) {
	series := newSeries(in)
	sma := techan.NewSimpleMovingAverage(techan.NewClosePriceIndicator(series), smaPeriod)
	line := collect(sma, smaPeriod-1, in.Len())

	last := numeric.Last(in.Closes)
	s := numeric.Last(line)
	var pull float64
	if last > 0 {
		pull = (s - last) / last * 0.05
	}
	trend := slope(line, 5)

	vol := dailyVolatility(in.Closes)
	conviction := 0.0
	if vol > 0 {
		conviction = math.Abs(trend) / vol * 5
	}
	p := projection{
		source:     "SMA",
		last:       last,
		drift:      trend*0.5 + pull,
		volatility: vol,
		confidence: confidenceFrom(conviction),
		decay:      0.02,
	}
	return Output{
		Forecast: p.forecast(days),
		Lines:    map[string][]float64{"sma": line},
	}, nil
}

// computeADX scales a directional drift by trend strength
func computeADX(in Input, days int) (Output, error) {
	if in.Len() < 2*adxPeriod {
		return Output{}, &errs.InsufficientDataError{Indicator: "ADX", Have: in.Len(), Need: 2 * adxPeriod}
	}
	// talib pads the lookback with zeros; the DI lines start at adxPeriod,
	// the ADX line at 2*adxPeriod-1
	adx := talib.Adx(in.Highs, in.Lows, in.Closes, adxPeriod)[2*adxPeriod-1:]
	plusDI := talib.PlusDI(in.Highs, in.Lows, in.Closes, adxPeriod)[adxPeriod:]
	minusDI := talib.MinusDI(in.Highs, in.Lows, in.Closes, adxPeriod)[adxPeriod:]

	a := numeric.Sanitize(numeric.Last(adx), 0)
	direction := numeric.Last(plusDI) - numeric.Last(minusDI)

	strength := math.Min(a/50, 1)
	sign := 0.0
	if direction > 0 {
		sign = 1
	} else if direction < 0 {
		sign = -1
	}

	vol := dailyVolatility(in.Closes)
	p := projection{
		source:     "ADX",
		last:       numeric.Last(in.Closes),
		drift:      sign * strength * vol * 0.5,
		volatility: vol,
		confidence: confidenceFrom(strength),
		decay:      0.03,
	}
	return Output{
		Forecast: p.forecast(days),
		Lines: map[string][]float64{
			"adx":      adx,
			"plus_di":  plusDI,
			"minus_di": minusDI,
		},
	}, nil
}

// computeSAR follows the parabolic stop-and-reverse trend
func computeSAR(in Input, days int) (Output, error) {
	if in.Len() < 2 {
		return Output{}, &errs.InsufficientDataError{Indicator: "Parabolic SAR", Have: in.Len(), Need: 2}
	}
	sar := talib.Sar(in.Highs, in.Lows, sarStep, sarMax)[1:]

	last := numeric.Last(in.Closes)
	s := numeric.Last(sar)
	var distance float64
	if last > 0 {
		distance = math.Min(math.Abs(last-s)/last*10, 1)
	}
	// the stop sits below price in an uptrend
	sign := -1.0
	if sarUptrend(sar, in.Closes) {
		sign = 1
	}

	vol := dailyVolatility(in.Closes)
	p := projection{
		source:     "Parabolic SAR",
		last:       last,
		drift:      sign * distance * vol * 0.4,
		volatility: vol,
		confidence: confidenceFrom(distance),
		decay:      0.04,
	}
	return Output{
		Forecast: p.forecast(days),
		Lines:    map[string][]float64{"sar": sar},
	}, nil
}

func sarUptrend(sar, closes []float64) bool {
	return numeric.Last(sar) < numeric.Last(closes)
}

// computeIchimoku reads price position against the cloud and the
// tenkan/kijun relationship
func computeIchimoku(in Input, days int) (Output, error) {
	tenkan := midpoints(in.Highs, in.Lows, tenkanPeriod)
	kijun := midpoints(in.Highs, in.Lows, kijunPeriod)
	spanB := midpoints(in.Highs, in.Lows, spanBPeriod)

	tenkanAligned := numeric.Tail(tenkan, len(kijun))
	spanA := make([]float64, len(kijun))
	for i := range kijun {
		spanA[i] = (tenkanAligned[i] + kijun[i]) / 2
	}

	last := numeric.Last(in.Closes)
	a, b := numeric.Last(spanA), numeric.Last(spanB)
	top, bottom := math.Max(a, b), math.Min(a, b)

	var signal float64
	switch {
	case last > top:
		signal = 0.7
	case last < bottom:
		signal = -0.7
	}
	if numeric.Last(tenkan) > numeric.Last(kijun) {
		signal += 0.3
	} else if numeric.Last(tenkan) < numeric.Last(kijun) {
		signal -= 0.3
	}

	vol := dailyVolatility(in.Closes)
	p := projection{
		source:     "Ichimoku",
		last:       last,
		drift:      signal * vol * 0.5,
		volatility: vol,
		confidence: confidenceFrom(math.Abs(signal)),
		decay:      0.02,
	}
	return Output{
		Forecast: p.forecast(days),
		Lines: map[string][]float64{
			"tenkan": tenkan,
			"kijun":  kijun,
			"span_a": spanA,
			"span_b": spanB,
		},
	}, nil
}

// midpoints returns (highest high + lowest low) / 2 over a rolling window,
// right-aligned so the first value covers the first full window
func midpoints(highs, lows []float64, window int) []float64 {
	if window < 2 || len(highs) < window {
		return nil
	}
	hh := talib.Max(highs, window)[window-1:]
	ll := talib.Min(lows, window)[window-1:]
	out := make([]float64, len(hh))
	for i := range hh {
		out[i] = (hh[i] + ll[i]) / 2
	}
	return out
}
