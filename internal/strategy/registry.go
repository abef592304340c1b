package strategy

import (
	"fmt"
	"sort"
	"sync"

	"coincast/internal/cache"
)

// Factory creates a strategy with the given cache options
type Factory func(opts ...cache.Option) Strategy

var (
	registry     = make(map[string]Factory)
	order        []string
	registryLock sync.RWMutex
)

// Register adds a strategy factory. Registration order is the default
// execution order.
func Register(name string, factory Factory) {
	registryLock.Lock()
	defer registryLock.Unlock()
	if _, exists := registry[name]; !exists {
		order = append(order, name)
	}
	registry[name] = factory
}

// Get creates a registered strategy
func Get(name string, opts ...cache.Option) (Strategy, error) {
	registryLock.RLock()
	factory, ok := registry[name]
	registryLock.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown strategy: %s (available: %v)", name, List())
	}
	return factory(opts...), nil
}

// MustGet is Get that panics on unknown names
func MustGet(name string, opts ...cache.Option) Strategy {
	s, err := Get(name, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// List returns the registered names, sorted
func List() []string {
	registryLock.RLock()
	defer registryLock.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All creates every registered strategy in registration order
func All(opts ...cache.Option) []Strategy {
	registryLock.RLock()
	names := append([]string(nil), order...)
	registryLock.RUnlock()

	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		out = append(out, MustGet(name, opts...))
	}
	return out
}

func init() {
	Register("mean-reversion", func(opts ...cache.Option) Strategy {
		return NewMeanReversionStrategy(DefaultMeanReversionConfig(), opts...)
	})
	Register("breakout", func(opts ...cache.Option) Strategy {
		return NewBreakoutStrategy(DefaultBreakoutConfig(), opts...)
	})
	Register("golden-cross", func(opts ...cache.Option) Strategy {
		return NewGoldenCrossStrategy(DefaultGoldenCrossConfig(), opts...)
	})
	Register("momentum-divergence", func(opts ...cache.Option) Strategy {
		return NewMomentumDivergenceStrategy(DefaultDivergenceConfig(), opts...)
	})
	Register("candlestick-reversal", func(opts ...cache.Option) Strategy {
		return NewCandlestickReversalStrategy(DefaultCandlestickConfig(), opts...)
	})
	Register("volatility-breakout", func(opts ...cache.Option) Strategy {
		return NewVolatilityBreakoutStrategy(DefaultVolatilityConfig(), opts...)
	})
}

// Info describes a strategy for listings
type Info struct {
	Name        string
	Description string
	Requires    string
}

// AllInfo returns the info of every registered strategy in execution order
func AllInfo() []Info {
	strategies := All()
	infos := make([]Info, 0, len(strategies))
	for _, s := range strategies {
		infos = append(infos, Info{
			Name:        s.Name(),
			Description: s.Description(),
			Requires:    s.Requires().String(),
		})
	}
	return infos
}
