package main

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coincast/internal/errs"
	"coincast/internal/export"
)

// fakeCoinGecko serves a daily sine wave ending today
func fakeCoinGecko(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coins/bitcoin/market_chart":
			days, _ := strconv.Atoi(r.URL.Query().Get("days"))
			today := time.Now().UTC().Truncate(24 * time.Hour)
			var prices, volumes []string
			for i := days - 1; i >= 0; i-- {
				ts := today.AddDate(0, 0, -i).UnixMilli()
				c := 40000 + float64(days-i)*25 + 1500*math.Sin(float64(days-i)/5)
				prices = append(prices, fmt.Sprintf("[%d,%g]", ts, c))
				volumes = append(volumes, fmt.Sprintf("[%d,%g]", ts, 2e9+float64(i%7)*1e8))
			}
			fmt.Fprintf(w, `{"prices":[%s],"total_volumes":[%s]}`, strings.Join(prices, ","), strings.Join(volumes, ","))
		case "/simple/price":
			fmt.Fprint(w, `{"bitcoin":{"usd":41234.5}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"coin not found"}`)
		}
	}))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := fmt.Sprintf(`providers:
  coingecko:
    base_url: %s
    rate_limit: 6000
  binance:
    enabled: false
logging:
  level: error
`, srv.URL)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func TestForecastCommand(t *testing.T) {
	cfg := fakeCoinGecko(t)
	save := filepath.Join(t.TempDir(), "btc.csv")

	out, err := execute(t, "--config", cfg, "--coin", "btc", "--compare", "--save", save)
	require.NoError(t, err)
	assert.Contains(t, out, "BTC 10-day forecast")
	assert.Contains(t, out, "Current price: $41,234.50")
	assert.Contains(t, out, "Consensus")

	doc, err := export.Read(save)
	require.NoError(t, err)
	assert.Equal(t, "BTC", doc.Metadata.Symbol)
	assert.Len(t, doc.CombinedForecast, 10)
}

func TestForecastCommandJSON(t *testing.T) {
	cfg := fakeCoinGecko(t)

	out, err := execute(t, "--config", cfg, "--coin", "BTC", "--forecast", "20", "--format", "json")
	require.NoError(t, err)

	doc, err := export.ReadJSON(strings.NewReader(out))
	require.NoError(t, err)
	assert.Len(t, doc.CombinedForecast, 20)
	assert.Equal(t, 90, doc.Metadata.DataPoints)
}

func TestForecastCommandValidation(t *testing.T) {
	cfg := fakeCoinGecko(t)

	_, err := execute(t, "--config", cfg, "--coin", "BTC", "--forecast", "15")
	var verr *errs.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "forecast", verr.Field)

	_, err = execute(t, "--config", cfg)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "coin", verr.Field)
}

func TestForecastCommandUnknownCoin(t *testing.T) {
	cfg := fakeCoinGecko(t)

	_, err := execute(t, "--config", cfg, "--coin", "NOPE")
	assert.ErrorContains(t, err, "coin not found")
}

func TestDebugCacheDump(t *testing.T) {
	cfg := fakeCoinGecko(t)
	t.Setenv(debugCacheEnv, "1")

	out, err := execute(t, "--config", cfg, "--coin", "BTC", "--no-chart")
	require.NoError(t, err)
	assert.Contains(t, out, "indicator")
	assert.Contains(t, out, `coincast_provider_fetches_total{outcome="ok",provider="coingecko"} 1`)
}

func TestBacktestCommand(t *testing.T) {
	cfg := fakeCoinGecko(t)

	out, err := execute(t, "backtest", "--config", cfg, "--coin", "BTC", "--periods", "3", "--strategies")
	require.NoError(t, err)
	assert.Contains(t, out, "BTC backtest: 3 periods of 10 days")
	assert.Contains(t, out, "Indicator ranking")
	assert.Contains(t, out, "Strategy ranking")
	assert.Contains(t, out, "Most accurate indicators")
}

func TestBacktestCommandValidation(t *testing.T) {
	cfg := fakeCoinGecko(t)

	_, err := execute(t, "backtest", "--config", cfg, "--coin", "BTC", "--periods", "50")
	var verr *errs.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "periods", verr.Field)
}

func TestStrategiesCommand(t *testing.T) {
	out, err := execute(t, "strategies")
	require.NoError(t, err)
	for _, name := range []string{"mean-reversion", "breakout", "golden-cross", "momentum-divergence", "candlestick-reversal", "volatility-breakout"} {
		assert.Contains(t, out, name)
	}
}
