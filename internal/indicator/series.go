package indicator

import (
	"math"
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"
)

var seriesEpoch = time.Unix(0, 0).UTC()

// newSeries builds a techan time series from the input. Periods are
// synthesised from the index so that duplicate provider dates can never make
// techan reject a candle.
func newSeries(in Input) *techan.TimeSeries {
	series := techan.NewTimeSeries()
	for i := range in.Closes {
		period := techan.NewTimePeriod(seriesEpoch.Add(time.Duration(i)*24*time.Hour), 24*time.Hour)
		candle := techan.NewCandle(period)
		candle.OpenPrice = big.NewDecimal(in.Opens[i])
		candle.ClosePrice = big.NewDecimal(in.Closes[i])
		candle.MaxPrice = big.NewDecimal(in.Highs[i])
		candle.MinPrice = big.NewDecimal(in.Lows[i])
		candle.Volume = big.NewDecimal(in.Volumes[i])
		series.AddCandle(candle)
	}
	return series
}

// collect evaluates a techan indicator from index `from` to the last candle.
// Infinities are kept for the caller to interpret.
func collect(ind techan.Indicator, from, count int) []float64 {
	if from < 0 {
		from = 0
	}
	if from >= count {
		return nil
	}
	out := make([]float64, 0, count-from)
	for i := from; i < count; i++ {
		v := ind.Calculate(i).Float()
		if math.IsNaN(v) {
			v = 0
		}
		out = append(out, v)
	}
	return out
}
