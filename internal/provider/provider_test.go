package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coincast/internal/cache"
	"coincast/internal/config"
	"coincast/pkg/model"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func ms(t time.Time) int64 { return t.UnixMilli() }

func coinGecko(t *testing.T, handler http.HandlerFunc) *CoinGeckoProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCoinGeckoProvider(config.CoinGeckoConfig{BaseURL: srv.URL, RateLimit: 6000, Timeout: time.Second})
}

func TestCoinGeckoHistorical(t *testing.T) {
	p := coinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/bitcoin/market_chart", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "3", r.URL.Query().Get("days"))
		// out of order, with an intraday duplicate of day 2 and a bad point
		fmt.Fprintf(w, `{"prices":[[%d,110],[%d,100],[%d,105],[%d,120],[%d,0]],"total_volumes":[[%d,1000],[%d,2000],[%d,3000]]}`,
			ms(day0.AddDate(0, 0, 1)), ms(day0), ms(day0.AddDate(0, 0, 2)), ms(day0.AddDate(0, 0, 2).Add(6*time.Hour)), ms(day0.AddDate(0, 0, 3)),
			ms(day0), ms(day0.AddDate(0, 0, 1)), ms(day0.AddDate(0, 0, 2)))
	})

	data, err := p.FetchHistoricalData(context.Background(), "btc", 3)
	require.NoError(t, err)
	assert.Equal(t, "BTC", data.Symbol)
	assert.Equal(t, "coingecko", data.Source)
	require.Len(t, data.Data, 3)

	closes := []float64{data.Data[0].Close, data.Data[1].Close, data.Data[2].Close}
	assert.Equal(t, []float64{100, 110, 120}, closes, "sorted, last point of each day wins")
	assert.Equal(t, day0, data.Data[0].Date)
	assert.Equal(t, 3000.0, data.Data[2].Volume)

	assert.Zero(t, data.Data[0].Open)
	assert.Equal(t, 100.0, data.Data[1].Open)
	assert.Equal(t, 110.0, data.Data[1].High)
	assert.Equal(t, 100.0, data.Data[1].Low)
}

func TestCoinGeckoErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		contains  string
	}{
		{name: "unknown coin", status: 404, body: `{"error":"coin not found"}`, contains: "coin not found"},
		{name: "rate limited", status: 429, body: `{"status":{"error_message":"slow down"}}`, retryable: true, contains: "rate limited"},
		{name: "server error", status: 502, body: `bad gateway`, retryable: true, contains: "502"},
		{name: "bad request", status: 400, body: `{"status":{"error_message":"invalid days"}}`, contains: "invalid days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := coinGecko(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := p.FetchHistoricalData(context.Background(), "NOPE", 5)

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "coingecko", pe.Provider)
			assert.Equal(t, tt.retryable, pe.Retryable)
			assert.ErrorContains(t, err, tt.contains)
		})
	}
}

func TestCoinGeckoEmptyChart(t *testing.T) {
	p := coinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"prices":[]}`)
	})
	_, err := p.FetchHistoricalData(context.Background(), "BTC", 5)
	assert.ErrorContains(t, err, "no price data")
}

func TestCoinGeckoCurrentPrice(t *testing.T) {
	p := coinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "avalanche-2", r.URL.Query().Get("ids"))
		fmt.Fprint(w, `{"avalanche-2":{"usd":35.5}}`)
	})
	price, err := p.GetCurrentPrice(context.Background(), "avax")
	require.NoError(t, err)
	assert.Equal(t, 35.5, price)
}

func TestCoinGeckoSendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-cg-demo-api-key"))
		fmt.Fprint(w, `{"bitcoin":{"usd":1}}`)
	}))
	defer srv.Close()

	p := NewCoinGeckoProvider(config.CoinGeckoConfig{APIKey: "secret", BaseURL: srv.URL, RateLimit: 60})
	_, err := p.GetCurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)
}

func TestCoinGeckoHistoryWindow(t *testing.T) {
	p := coinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	})
	_, err := p.FetchHistoricalData(context.Background(), "BTC", CoinGeckoMaxDays+1)
	assert.ErrorIs(t, err, ErrHistoryWindow)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Retryable)
}

func TestFallbackReachesBinanceBeyondWindow(t *testing.T) {
	gecko := coinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "400", r.URL.Query().Get("limit"))
		fmt.Fprintf(w, "[%s]", kline(day0, "100", "112", "98", "110", "500"))
	}))
	defer srv.Close()

	f := NewFallbackProvider(zerolog.Nop(), gecko, NewBinanceProvider(config.BinanceConfig{Enabled: true, BaseURL: srv.URL}))
	data, err := f.FetchHistoricalData(context.Background(), "BTC", 400)
	require.NoError(t, err)
	assert.Equal(t, "binance", data.Source)
}

func TestCoinID(t *testing.T) {
	assert.Equal(t, "bitcoin", CoinID("btc"))
	assert.Equal(t, "ethereum", CoinID("ETH"))
	assert.Equal(t, "pepe", CoinID("PEPE"))
}

func kline(day time.Time, o, h, l, c, v string) string {
	return fmt.Sprintf(`[%d,"%s","%s","%s","%s","%s",%d,"0",10,"0","0","0"]`, ms(day), o, h, l, c, v, ms(day.Add(24*time.Hour-time.Millisecond)))
}

func TestBinanceHistorical(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		fmt.Fprintf(w, "[%s,%s]",
			kline(day0, "100", "112", "98", "110", "500.5"),
			kline(day0.AddDate(0, 0, 1), "110", "115", "101", "103", "700"))
	}))
	defer srv.Close()

	p := NewBinanceProvider(config.BinanceConfig{Enabled: true, BaseURL: srv.URL})
	data, err := p.FetchHistoricalData(context.Background(), "eth", 2)
	require.NoError(t, err)
	require.Len(t, data.Data, 2)
	assert.Equal(t, "binance", data.Source)
	assert.Equal(t, model.PricePoint{Date: day0, Open: 100, High: 112, Low: 98, Close: 110, Volume: 500.5}, data.Data[0])
	assert.Equal(t, 103.0, data.Data[1].Close)
}

func TestBinanceInvalidSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	}))
	defer srv.Close()

	p := NewBinanceProvider(config.BinanceConfig{Enabled: true, BaseURL: srv.URL})
	_, err := p.FetchHistoricalData(context.Background(), "NOPE", 5)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Retryable)
	assert.ErrorContains(t, err, "Invalid symbol")
}

func TestBinanceCurrentPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		fmt.Fprint(w, `[{"symbol":"BTCUSDT","price":"64000.25"}]`)
	}))
	defer srv.Close()

	p := NewBinanceProvider(config.BinanceConfig{Enabled: true, BaseURL: srv.URL})
	price, err := p.GetCurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 64000.25, price)
}

func TestBinanceRequestTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, NewBinanceProvider(config.BinanceConfig{Enabled: true}).client.HTTPClient.Timeout)

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewBinanceProvider(config.BinanceConfig{Enabled: true, BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := p.FetchHistoricalData(context.Background(), "BTC", 5)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "binance", pe.Provider)
	assert.True(t, pe.Retryable)
}

type stubProvider struct {
	name      string
	available bool
	data      *model.HistoricalData
	price     float64
	err       error
	calls     atomic.Int32
}

func (s *stubProvider) Name() string      { return s.name }
func (s *stubProvider) IsAvailable() bool { return s.available }
func (s *stubProvider) RateLimit() int    { return 60 }

func (s *stubProvider) FetchHistoricalData(_ context.Context, symbol string, days int) (*model.HistoricalData, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	d := *s.data
	d.Data = append([]model.PricePoint(nil), s.data.Data...)
	return &d, nil
}

func (s *stubProvider) GetCurrentPrice(context.Context, string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.price, nil
}

func sample(source string) *model.HistoricalData {
	return &model.HistoricalData{Symbol: "BTC", Source: source, Data: []model.PricePoint{{Date: day0, Close: 100}}}
}

func TestFallbackProvider(t *testing.T) {
	failing := &stubProvider{name: "a", available: true, err: &ProviderError{Provider: "a", Err: errors.New("down"), Retryable: true}}
	disabled := &stubProvider{name: "b", available: false, data: sample("b")}
	working := &stubProvider{name: "c", available: true, data: sample("c"), price: 42}

	f := NewFallbackProvider(zerolog.Nop(), failing, disabled, working)
	assert.Len(t, f.Providers(), 2)
	assert.True(t, f.IsAvailable())

	data, err := f.FetchHistoricalData(context.Background(), "BTC", 1)
	require.NoError(t, err)
	assert.Equal(t, "c", data.Source)
	assert.Zero(t, disabled.calls.Load())

	price, err := f.GetCurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 42.0, price)
}

func TestFallbackProviderAllFail(t *testing.T) {
	f := NewFallbackProvider(zerolog.Nop(),
		&stubProvider{name: "a", available: true, err: errors.New("first")},
		&stubProvider{name: "b", available: true, err: errors.New("last")},
	)
	_, err := f.FetchHistoricalData(context.Background(), "BTC", 1)
	assert.EqualError(t, err, "last")

	empty := NewFallbackProvider(zerolog.Nop())
	assert.False(t, empty.IsAvailable())
	_, err = empty.FetchHistoricalData(context.Background(), "BTC", 1)
	assert.ErrorIs(t, err, ErrNoProviders)
}

type fetchCounter map[string]int

func (f fetchCounter) Fetch(provider, outcome string) { f[provider+":"+outcome]++ }

func TestCachingProvider(t *testing.T) {
	inner := &stubProvider{name: "c", available: true, data: sample("c")}
	clock := cache.NewManualClock(day0)
	observed := fetchCounter{}
	p := NewCachingProvider(inner, cache.New[model.HistoricalData]("provider", cache.WithTTL(time.Minute), cache.WithClock(clock.Now)), observed)

	first, err := p.FetchHistoricalData(context.Background(), "btc", 30)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := p.FetchHistoricalData(context.Background(), "BTC", 30)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, int32(1), inner.calls.Load())

	// callers may mutate their copy without touching the cache
	second.Data[0].Close = -1
	third, _ := p.FetchHistoricalData(context.Background(), "BTC", 30)
	assert.Equal(t, 100.0, third.Data[0].Close)

	clock.Advance(2 * time.Minute)
	_, err = p.FetchHistoricalData(context.Background(), "BTC", 30)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())

	assert.Equal(t, 2, observed["c:ok"])
	assert.Equal(t, 2, observed["c:cached"])
}

func TestNormalize(t *testing.T) {
	points := []model.PricePoint{
		{Date: day0.AddDate(0, 0, 2), Close: 3},
		{Date: day0.Add(3 * time.Hour), Close: 1},
		{Date: day0.AddDate(0, 0, 1), Close: 2},
		{Date: day0.Add(20 * time.Hour), Close: 1.5},
	}
	out := normalize(points, 2)
	require.Len(t, out, 2)
	assert.Equal(t, 2.0, out[0].Close)
	assert.Equal(t, 3.0, out[1].Close)

	all := normalize([]model.PricePoint{{Date: day0.Add(3 * time.Hour), Close: 1}, {Date: day0.Add(20 * time.Hour), Close: 1.5}}, 0)
	require.Len(t, all, 1)
	assert.Equal(t, 1.5, all[0].Close)
	assert.Equal(t, day0, all[0].Date)
}
