package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"coincast/internal/config"
	"coincast/internal/ratelimit"
	"coincast/pkg/model"
)

// CoinGeckoMaxDays is how far back the public and demo plans serve daily
// market charts
const CoinGeckoMaxDays = 365

// coinIDs maps common tickers to CoinGecko coin ids. Anything else is
// passed through lower-cased.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"ADA":   "cardano",
	"XRP":   "ripple",
	"DOGE":  "dogecoin",
	"DOT":   "polkadot",
	"BNB":   "binancecoin",
	"LTC":   "litecoin",
	"AVAX":  "avalanche-2",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
	"TRX":   "tron",
	"XLM":   "stellar",
	"ATOM":  "cosmos",
	"UNI":   "uniswap",
	"SHIB":  "shiba-inu",
}

// CoinID returns the CoinGecko id of a ticker
func CoinID(symbol string) string {
	if id, ok := coinIDs[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

// CoinGeckoProvider implements the Provider interface for the CoinGecko
// public API
type CoinGeckoProvider struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	limiter   *ratelimit.Limiter
	rateLimit int
}

// NewCoinGeckoProvider creates a new CoinGecko provider
func NewCoinGeckoProvider(cfg config.CoinGeckoConfig) *CoinGeckoProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CoinGeckoProvider{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		limiter:   ratelimit.NewLimiter("coingecko", cfg.RateLimit),
		rateLimit: cfg.RateLimit,
	}
}

// Name returns the provider name
func (p *CoinGeckoProvider) Name() string {
	return "coingecko"
}

// IsAvailable reports whether a base URL is configured; the public tier
// needs no key
func (p *CoinGeckoProvider) IsAvailable() bool {
	return p.baseURL != ""
}

// RateLimit returns the rate limit per minute
func (p *CoinGeckoProvider) RateLimit() int {
	return p.rateLimit
}

// FetchHistoricalData fetches daily closes and volumes from market_chart.
// The chart carries no OHLC, so high and low are approximated from
// consecutive closes and open is the previous close.
func (p *CoinGeckoProvider) FetchHistoricalData(ctx context.Context, symbol string, days int) (*model.HistoricalData, error) {
	if err := validateRequest(p.Name(), symbol, days); err != nil {
		return nil, err
	}
	if days > CoinGeckoMaxDays {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%w: %d days requested, %d served", ErrHistoryWindow, days, CoinGeckoMaxDays)}
	}

	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", strconv.Itoa(days))
	q.Set("interval", "daily")
	body, err := p.get(ctx, "/coins/"+url.PathEscape(CoinID(symbol))+"/market_chart", q)
	if err != nil {
		return nil, err
	}

	prices := gjson.GetBytes(body, "prices")
	if !prices.IsArray() || len(prices.Array()) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("no price data for %s", symbol)}
	}

	volumes := make(map[int64]float64)
	gjson.GetBytes(body, "total_volumes").ForEach(func(_, v gjson.Result) bool {
		pair := v.Array()
		if len(pair) == 2 {
			volumes[dayOf(time.UnixMilli(pair[0].Int())).Unix()] = pair[1].Float()
		}
		return true
	})

	points := make([]model.PricePoint, 0, len(prices.Array()))
	prices.ForEach(func(_, v gjson.Result) bool {
		pair := v.Array()
		if len(pair) != 2 || pair[1].Float() <= 0 {
			return true
		}
		date := time.UnixMilli(pair[0].Int())
		points = append(points, model.PricePoint{
			Date:   date,
			Close:  pair[1].Float(),
			Volume: volumes[dayOf(date).Unix()],
		})
		return true
	})

	points = normalize(points, days)
	for i := range points {
		c := points[i].Close
		points[i].High, points[i].Low = c, c
		if i > 0 {
			prev := points[i-1].Close
			points[i].Open = prev
			points[i].High = max(prev, c)
			points[i].Low = min(prev, c)
		}
	}

	return &model.HistoricalData{
		Symbol:    strings.ToUpper(symbol),
		Data:      points,
		Source:    p.Name(),
		Timestamp: time.Now(),
	}, nil
}

// GetCurrentPrice returns the simple/price USD quote
func (p *CoinGeckoProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	id := CoinID(symbol)
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")
	body, err := p.get(ctx, "/simple/price", q)
	if err != nil {
		return 0, err
	}

	price := gjson.GetBytes(body, id+".usd")
	if !price.Exists() || price.Float() <= 0 {
		return 0, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("no price for %s", symbol)}
	}
	return price.Float(), nil
}

func (p *CoinGeckoProvider) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("reading response: %w", err), Retryable: true}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		p.limiter.SignalRateLimited()
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("rate limited"), Retryable: true}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("unknown coin: %s", errorMessage(body, resp.Status))}
	case resp.StatusCode != http.StatusOK:
		return nil, &ProviderError{
			Provider:  p.Name(),
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, errorMessage(body, resp.Status)),
			Retryable: resp.StatusCode >= 500,
		}
	}

	p.limiter.ResetBackoff()
	if !gjson.ValidBytes(body) {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("malformed response")}
	}
	return body, nil
}

// errorMessage extracts CoinGecko's error text from either error shape
func errorMessage(body []byte, fallback string) string {
	for _, path := range []string{"error", "status.error_message"} {
		if msg := gjson.GetBytes(body, path); msg.Exists() && msg.String() != "" {
			return msg.String()
		}
	}
	return fallback
}
