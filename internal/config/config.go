package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Providers ProvidersConfig `yaml:"providers"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Backtest  BacktestConfig  `yaml:"backtest"`
}

// ProvidersConfig holds market data provider configurations
type ProvidersConfig struct {
	CoinGecko CoinGeckoConfig `yaml:"coingecko"`
	Binance   BinanceConfig   `yaml:"binance"`
}

// CoinGeckoConfig holds CoinGecko settings
type CoinGeckoConfig struct {
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url" validate:"required,url"`
	RateLimit int           `yaml:"rate_limit" validate:"min=1"` // requests per minute
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
}

// BinanceConfig holds Binance settings. Only public market data endpoints
// are used, so no key is needed.
type BinanceConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// CacheConfig holds the lifetime of every cache in the pipeline
type CacheConfig struct {
	IndicatorTTL time.Duration `yaml:"indicator_ttl" validate:"gt=0"`
	StrategyTTL  time.Duration `yaml:"strategy_ttl" validate:"gt=0"`
	MergeTTL     time.Duration `yaml:"merge_ttl" validate:"gt=0"`
	CombinedTTL  time.Duration `yaml:"combined_ttl" validate:"gt=0"`
	ChartTTL     time.Duration `yaml:"chart_ttl" validate:"gt=0"`
	ProviderTTL  time.Duration `yaml:"provider_ttl" validate:"gt=0"`
	MaxEntries   int           `yaml:"max_entries" validate:"min=1"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// StrategyConfig holds strategy defaults
type StrategyConfig struct {
	Lookback      int    `yaml:"lookback" validate:"min=3,max=60"`
	RiskTolerance string `yaml:"risk_tolerance" validate:"oneof=low medium high"`
	Seed          uint64 `yaml:"seed"`
}

// BacktestConfig holds backtest defaults
type BacktestConfig struct {
	Periods         int `yaml:"periods" validate:"min=1,max=20"`
	HistoricalRange int `yaml:"historical_range" validate:"min=30,max=365"`
	MinDataPoints   int `yaml:"min_data_points" validate:"min=20"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Providers: ProvidersConfig{
			CoinGecko: CoinGeckoConfig{
				APIKey:    os.Getenv("COINGECKO_API_KEY"),
				BaseURL:   "https://api.coingecko.com/api/v3",
				RateLimit: 30,
				Timeout:   10 * time.Second,
			},
			Binance: BinanceConfig{
				Enabled: true,
				Timeout: 10 * time.Second,
			},
		},
		Cache: CacheConfig{
			IndicatorTTL: 5 * time.Minute,
			StrategyTTL:  2 * time.Minute,
			MergeTTL:     5 * time.Minute,
			CombinedTTL:  2 * time.Minute,
			ChartTTL:     10 * time.Minute,
			ProviderTTL:  5 * time.Minute,
			MaxEntries:   100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Strategy: StrategyConfig{
			Lookback:      10,
			RiskTolerance: "medium",
			Seed:          42,
		},
		Backtest: BacktestConfig{
			Periods:         5,
			HistoricalRange: 90,
			MinDataPoints:   20,
		},
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if file doesn't exist
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Override with environment variables if set
	if key := os.Getenv("COINGECKO_API_KEY"); key != "" {
		cfg.Providers.CoinGecko.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return toValidationError(err)
	}
	return nil
}
