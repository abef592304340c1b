package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"coincast/internal/config"
	"coincast/internal/ratelimit"
	"coincast/pkg/model"
)

const (
	binanceQuote     = "USDT"
	binanceMaxKlines = 1000
	// weight budget of the public spot API, well under the 6000/min cap
	binanceRateLimit = 600
	// Binance error codes for "Invalid symbol." and "Too many requests."
	binanceInvalidSymbol = -1121
	binanceTooMany       = -1003
)

// BinanceProvider implements the Provider interface with Binance spot daily
// klines, which carry real OHLC
type BinanceProvider struct {
	client  *binance.Client
	limiter *ratelimit.Limiter
	enabled bool
}

// NewBinanceProvider creates a new Binance provider
func NewBinanceProvider(cfg config.BinanceConfig) *BinanceProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := binance.NewClient("", "")
	// the library default is http.DefaultClient, which never times out
	client.HTTPClient = &http.Client{Timeout: timeout}
	if cfg.BaseURL != "" {
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &BinanceProvider{
		client:  client,
		limiter: ratelimit.NewLimiter("binance", binanceRateLimit),
		enabled: cfg.Enabled,
	}
}

// Name returns the provider name
func (p *BinanceProvider) Name() string {
	return "binance"
}

// IsAvailable reports whether the provider is enabled in config
func (p *BinanceProvider) IsAvailable() bool {
	return p.enabled
}

// RateLimit returns the rate limit per minute
func (p *BinanceProvider) RateLimit() int {
	return binanceRateLimit
}

// Pair returns the Binance spot pair of a coin
func Pair(symbol string) string {
	return strings.ToUpper(symbol) + binanceQuote
}

// FetchHistoricalData fetches daily klines for the coin's USDT pair
func (p *BinanceProvider) FetchHistoricalData(ctx context.Context, symbol string, days int) (*model.HistoricalData, error) {
	if err := validateRequest(p.Name(), symbol, days); err != nil {
		return nil, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	klines, err := p.client.NewKlinesService().
		Symbol(Pair(symbol)).
		Interval("1d").
		Limit(min(days, binanceMaxKlines)).
		Do(ctx)
	if err != nil {
		return nil, p.wrap(err)
	}
	p.limiter.ResetBackoff()

	points := make([]model.PricePoint, 0, len(klines))
	for _, k := range klines {
		point, err := klinePoint(k)
		if err != nil {
			return nil, &ProviderError{Provider: p.Name(), Err: err}
		}
		points = append(points, point)
	}
	if len(points) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("no klines for %s", Pair(symbol))}
	}

	return &model.HistoricalData{
		Symbol:    strings.ToUpper(symbol),
		Data:      normalize(points, days),
		Source:    p.Name(),
		Timestamp: time.Now(),
	}, nil
}

// GetCurrentPrice returns the last traded price of the USDT pair
func (p *BinanceProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	prices, err := p.client.NewListPricesService().Symbol(Pair(symbol)).Do(ctx)
	if err != nil {
		return 0, p.wrap(err)
	}
	if len(prices) == 0 {
		return 0, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("no price for %s", Pair(symbol))}
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("parsing price %q: %w", prices[0].Price, err)}
	}
	return price, nil
}

func (p *BinanceProvider) wrap(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == binanceInvalidSymbol {
			return &ProviderError{Provider: p.Name(), Err: fmt.Errorf("unknown coin: %s", apiErr.Message)}
		}
		if apiErr.Code == binanceTooMany {
			p.limiter.SignalRateLimited()
		}
		return &ProviderError{Provider: p.Name(), Err: apiErr, Retryable: true}
	}
	return &ProviderError{Provider: p.Name(), Err: err, Retryable: true}
}

func klinePoint(k *binance.Kline) (model.PricePoint, error) {
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return model.PricePoint{}, fmt.Errorf("parsing kline value %q: %w", f, err)
		}
		values[i] = v
	}
	return model.PricePoint{
		Date:   time.UnixMilli(k.OpenTime),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}
