package provider

import (
	"context"
	"strconv"
	"strings"

	"coincast/internal/cache"
	"coincast/pkg/model"
)

// CachingProvider wraps a Provider with a TTL cache for historical fetches.
// Analysis and backtest runs over the same coin share one download.
type CachingProvider struct {
	inner    Provider
	cache    *cache.Cache[model.HistoricalData]
	observer FetchObserver
}

// NewCachingProvider creates a caching wrapper. A nil observer records nothing.
func NewCachingProvider(inner Provider, c *cache.Cache[model.HistoricalData], observer FetchObserver) *CachingProvider {
	if c == nil {
		c = cache.New[model.HistoricalData]("provider")
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &CachingProvider{inner: inner, cache: c, observer: observer}
}

func (p *CachingProvider) Name() string      { return p.inner.Name() }
func (p *CachingProvider) IsAvailable() bool { return p.inner.IsAvailable() }
func (p *CachingProvider) RateLimit() int    { return p.inner.RateLimit() }

// Cache exposes the fetch cache for the debug dump
func (p *CachingProvider) Cache() *cache.Cache[model.HistoricalData] {
	return p.cache
}

// GetCurrentPrice is never cached
func (p *CachingProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return p.inner.GetCurrentPrice(ctx, symbol)
}

// FetchHistoricalData serves repeated fetches from the cache and marks them
// Cached
func (p *CachingProvider) FetchHistoricalData(ctx context.Context, symbol string, days int) (*model.HistoricalData, error) {
	key := strings.ToUpper(symbol) + ":" + strconv.Itoa(days)
	if cached, ok := p.cache.Get(key); ok {
		p.observer.Fetch(p.inner.Name(), "cached")
		cached.Cached = true
		cached.Data = append([]model.PricePoint(nil), cached.Data...)
		return &cached, nil
	}

	data, err := p.inner.FetchHistoricalData(ctx, symbol, days)
	if err != nil {
		p.observer.Fetch(p.inner.Name(), "error")
		return nil, err
	}
	p.observer.Fetch(data.Source, "ok")

	stored := *data
	stored.Data = append([]model.PricePoint(nil), data.Data...)
	p.cache.Put(key, stored)
	return data, nil
}
