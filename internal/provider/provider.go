package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"coincast/pkg/model"
)

// Provider defines the interface for market data providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// FetchHistoricalData fetches daily prices for the last days, oldest first
	FetchHistoricalData(ctx context.Context, symbol string, days int) (*model.HistoricalData, error)

	// GetCurrentPrice returns the latest USD price
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)

	// IsAvailable checks if the provider can be used
	IsAvailable() bool

	// RateLimit returns the rate limit per minute
	RateLimit() int
}

// FetchObserver receives one outcome per provider request
type FetchObserver interface {
	Fetch(provider, outcome string)
}

type nopObserver struct{}

func (nopObserver) Fetch(string, string) {}

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ErrNoProviders is returned by a FallbackProvider with nothing available
var ErrNoProviders = errors.New("no market data provider available")

// ErrHistoryWindow is returned when a request reaches further back than the
// provider serves
var ErrHistoryWindow = errors.New("requested history exceeds the provider window")

// FallbackProvider tries multiple providers in order
type FallbackProvider struct {
	providers []Provider
	log       zerolog.Logger
}

// NewFallbackProvider creates a new fallback provider
func NewFallbackProvider(log zerolog.Logger, providers ...Provider) *FallbackProvider {
	// Filter to only available providers
	available := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.IsAvailable() {
			available = append(available, p)
		}
	}
	return &FallbackProvider{providers: available, log: log}
}

// Name returns the combined provider name
func (f *FallbackProvider) Name() string {
	return "fallback"
}

// FetchHistoricalData tries each provider in order until one succeeds
func (f *FallbackProvider) FetchHistoricalData(ctx context.Context, symbol string, days int) (*model.HistoricalData, error) {
	lastErr := ErrNoProviders
	for _, p := range f.providers {
		data, err := p.FetchHistoricalData(ctx, symbol, days)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		f.log.Warn().Err(err).Str("provider", p.Name()).Str("symbol", symbol).Bool("retryable", retryable(err)).Msg("historical fetch failed, trying next provider")
	}
	return nil, lastErr
}

// GetCurrentPrice tries each provider in order
func (f *FallbackProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	lastErr := ErrNoProviders
	for _, p := range f.providers {
		price, err := p.GetCurrentPrice(ctx, symbol)
		if err == nil {
			return price, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		lastErr = err
		f.log.Warn().Err(err).Str("provider", p.Name()).Str("symbol", symbol).Msg("price fetch failed, trying next provider")
	}
	return 0, lastErr
}

// IsAvailable returns true if any provider is available
func (f *FallbackProvider) IsAvailable() bool {
	return len(f.providers) > 0
}

// RateLimit returns the highest rate limit among providers
func (f *FallbackProvider) RateLimit() int {
	maxRate := 0
	for _, p := range f.providers {
		maxRate = max(maxRate, p.RateLimit())
	}
	return maxRate
}

// Providers returns the list of underlying providers
func (f *FallbackProvider) Providers() []Provider {
	return f.providers
}

func retryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// normalize sorts points oldest first, keeps the last point of each UTC
// calendar day and trims to the newest days points
func normalize(points []model.PricePoint, days int) []model.PricePoint {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	out := make([]model.PricePoint, 0, len(points))
	for _, p := range points {
		p.Date = dayOf(p.Date)
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}

	if days > 0 && len(out) > days {
		out = out[len(out)-days:]
	}
	return out
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func validateRequest(name, symbol string, days int) error {
	if symbol == "" {
		return &ProviderError{Provider: name, Err: fmt.Errorf("empty symbol")}
	}
	if days < 1 {
		return &ProviderError{Provider: name, Err: fmt.Errorf("invalid day count %d", days)}
	}
	return nil
}
