package display

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/guptarohit/asciigraph"

	"coincast/internal/cache"
	"coincast/pkg/model"
)

// ChartConfig holds chart dimensions
type ChartConfig struct {
	Height         int // rows of the plot area (default 15)
	HistoryColumns int // trailing history points drawn (default 45)
}

// DefaultChartConfig returns default configuration
func DefaultChartConfig() ChartConfig {
	return ChartConfig{Height: 15, HistoryColumns: 45}
}

// Chart plots price history followed by the forecast average and its
// high/low range with asciigraph. Rendered charts are memoized by content.
type Chart struct {
	config ChartConfig
	cache  *cache.Cache[string]
}

// NewChart creates a chart renderer. A nil cache gets a private one.
func NewChart(cfg ChartConfig, c *cache.Cache[string]) *Chart {
	if cfg.Height < 3 {
		cfg.Height = 3
	}
	if cfg.HistoryColumns < 1 {
		cfg.HistoryColumns = 1
	}
	if c == nil {
		c = cache.New[string]("chart")
	}
	return &Chart{config: cfg, cache: c}
}

// Cache exposes the chart cache for the debug dump
func (c *Chart) Cache() *cache.Cache[string] {
	return c.cache
}

// Render returns the chart, one column per history point then one per
// forecast day. Non-finite values leave gaps.
func (c *Chart) Render(history []model.PricePoint, forecast []model.ForecastPoint) string {
	if len(history) > c.config.HistoryColumns {
		history = history[len(history)-c.config.HistoryColumns:]
	}
	if len(history) == 0 && len(forecast) == 0 {
		return ""
	}

	key := strconv.FormatUint(signature(history, forecast, c.config), 16)
	out, _ := c.cache.GetOrCompute(key, func() (string, error) {
		return c.draw(history, forecast), nil
	})
	return out
}

func (c *Chart) draw(history []model.PricePoint, forecast []model.ForecastPoint) string {
	n := len(history) + len(forecast)
	var (
		series [][]float64
		colors []asciigraph.AnsiColor
	)

	if len(history) > 0 {
		closes := blank(n)
		for i, p := range history {
			closes[i] = plottable(p.Close)
		}
		series = append(series, closes)
		colors = append(colors, asciigraph.Default)
	}
	if len(forecast) > 0 {
		avg, high, low := blank(n), blank(n), blank(n)
		// the forecast lines fan out from the last close
		if k := len(history); k > 0 {
			last := plottable(history[k-1].Close)
			avg[k-1], high[k-1], low[k-1] = last, last, last
		}
		for i, p := range forecast {
			col := len(history) + i
			avg[col] = plottable(p.Avg)
			high[col] = plottable(math.Max(p.High, p.Low))
			low[col] = plottable(math.Min(p.High, p.Low))
		}
		series = append(series, avg, high, low)
		colors = append(colors, asciigraph.Green, asciigraph.Gray, asciigraph.Gray)
	}

	lo, hi, ok := bounds(series)
	if !ok {
		return ""
	}
	opts := []asciigraph.Option{
		asciigraph.Height(c.config.Height),
		asciigraph.Caption(legend(len(history), len(forecast))),
	}
	if hi == lo {
		pad := math.Max(math.Abs(lo)*0.01, 1e-9)
		opts = append(opts, asciigraph.LowerBound(lo-pad), asciigraph.UpperBound(hi+pad))
	}
	if !color.NoColor {
		opts = append(opts, asciigraph.SeriesColors(colors...))
	}
	return asciigraph.PlotMany(series, opts...) + "\n"
}

func legend(historyCols, forecastCols int) string {
	parts := []string{}
	if historyCols > 0 {
		parts = append(parts, "history ("+strconv.Itoa(historyCols)+"d)")
	}
	if forecastCols > 0 {
		parts = append(parts, "forecast ("+strconv.Itoa(forecastCols)+"d) avg with high/low range")
	}
	return strings.Join(parts, "  ")
}

func blank(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// plottable maps infinities to NaN, which asciigraph leaves as a gap
func plottable(v float64) float64 {
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// bounds returns the finite range of every series
func bounds(series [][]float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s {
			if math.IsNaN(v) {
				continue
			}
			lo, hi, ok = math.Min(lo, v), math.Max(hi, v), true
		}
	}
	return lo, hi, ok
}

// signature hashes everything the drawing depends on
func signature(history []model.PricePoint, forecast []model.ForecastPoint, cfg ChartConfig) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	write := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	write(float64(cfg.Height))
	if color.NoColor {
		write(0)
	} else {
		write(1)
	}
	write(float64(len(history)))
	for _, p := range history {
		write(p.Close)
	}
	for _, p := range forecast {
		write(p.Low)
		write(p.High)
		write(p.Avg)
	}
	return h.Sum64()
}
