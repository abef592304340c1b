package indicator

import (
	"math"

	"github.com/sdcoffey/techan"

	"coincast/internal/numeric"
)

const (
	rsiPeriod        = 14
	stochasticPeriod = 14
	stochasticSmooth = 3
	macdFast         = 12
	macdSlow         = 26
	macdSignal       = 9
)

// computeRSI projects mean reversion out of overbought and oversold zones
func computeRSI(in Input, days int) (Output, error) {
	line := rsiLine(newSeries(in), rsiPeriod, in.Len())
	r := numeric.Last(line)

	var signal float64
	switch {
	case r < 30:
		signal = (30 - r) / 30
	case r > 70:
		signal = -(r - 70) / 30
	default:
		signal = (50 - r) / 100
	}

	vol := dailyVolatility(in.Closes)
	p := projection{
		source:     "RSI",
		last:       numeric.Last(in.Closes),
		drift:      signal * vol * 0.5,
		volatility: vol,
		confidence: confidenceFrom(math.Abs(r-50) / 50),
		decay:      0.03,
	}
	return Output{
		Forecast: p.forecast(days),
		Lines:    map[string][]float64{"rsi": line},
	}, nil
}

// rsiLine evaluates RSI from index period on. A window with neither gains nor
// losses reads 50 where techan would report 100.
func rsiLine(series *techan.TimeSeries, period, count int) []float64 {
	closes := techan.NewClosePriceIndicator(series)
	rsi := techan.NewRelativeStrengthIndexIndicator(closes, period)
	gain := techan.NewMMAIndicator(techan.NewGainIndicator(closes), period)
	loss := techan.NewMMAIndicator(techan.NewLossIndicator(closes), period)

	if period >= count {
		return nil
	}
	out := make([]float64, 0, count-period)
	for i := period; i < count; i++ {
		g, l := gain.Calculate(i), loss.Calculate(i)
		switch {
		case g.IsZero() && l.IsZero():
			out = append(out, 50)
		case l.IsZero():
			out = append(out, 100)
		default:
			out = append(out, numeric.Sanitize(rsi.Calculate(i).Float(), 50))
		}
	}
	return out
}

// computeMACD follows the histogram: positive momentum projects upward drift
func computeMACD(in Input, days int) (Output, error) {
	series := newSeries(in)
	closes := techan.NewClosePriceIndicator(series)
	macd := techan.NewMACDIndicator(closes, macdFast, macdSlow)
	hist := techan.NewMACDHistogramIndicator(macd, macdSignal)

	from := macdSlow - 1
	macdLine := collect(macd, from, in.Len())
	histLine := collect(hist, from, in.Len())
	signalLine := make([]float64, len(macdLine))
	for i := range macdLine {
		signalLine[i] = macdLine[i] - histLine[i]
	}

	last := numeric.Last(in.Closes)
	h := numeric.Last(histLine)
	var strength float64
	if last > 0 {
		strength = math.Tanh(h / (last * 0.01))
	}
	// histogram growing in its own direction adds conviction
	if len(histLine) >= 2 {
		prev := histLine[len(histLine)-2]
		if math.Abs(h) > math.Abs(prev) && h*prev > 0 {
			strength *= 1.2
		}
	}
	strength = numeric.Clamp(strength, -1, 1)

	vol := dailyVolatility(in.Closes)
	p := projection{
		source:     "MACD",
		last:       last,
		drift:      strength * vol * 0.6,
		volatility: vol,
		confidence: confidenceFrom(math.Abs(strength)),
		decay:      0.025,
	}
	return Output{
		Forecast: p.forecast(days),
		Lines: map[string][]float64{
			"macd":      macdLine,
			"signal":    signalLine,
			"histogram": histLine,
		},
	}, nil
}

// computeStochastic reverts from the %K extremes and follows %K/%D crosses
func computeStochastic(in Input, days int) (Output, error) {
	series := newSeries(in)
	k := techan.NewFastStochasticIndicator(series, stochasticPeriod)
	d := techan.NewSlowStochasticIndicator(k, stochasticSmooth)

	from := stochasticPeriod + stochasticSmooth - 2
	kLine := clampLine(collect(k, from, in.Len()), 0, 100)
	dLine := clampLine(collect(d, from, in.Len()), 0, 100)
	kv, dv := numeric.Last(kLine), numeric.Last(dLine)

	var signal float64
	switch {
	case kv < 20:
		signal = (20 - kv) / 20
	case kv > 80:
		signal = -(kv - 80) / 20
	}
	if kv > dv {
		signal += 0.2
	} else if kv < dv {
		signal -= 0.2
	}
	signal = numeric.Clamp(signal, -1, 1)

	vol := dailyVolatility(in.Closes)
	p := projection{
		source:     "Stochastic",
		last:       numeric.Last(in.Closes),
		drift:      signal * vol * 0.4,
		volatility: vol,
		confidence: confidenceFrom(math.Abs(kv-50) / 50),
		decay:      0.04,
	}
	return Output{
		Forecast: p.forecast(days),
		Lines:    map[string][]float64{"k": kLine, "d": dLine},
	}, nil
}

// flat ranges make techan's %K infinite; pin them into range
func clampLine(values []float64, lo, hi float64) []float64 {
	for i, v := range values {
		if math.IsInf(v, 0) {
			v = (lo + hi) / 2
		}
		values[i] = numeric.Clamp(v, lo, hi)
	}
	return values
}
