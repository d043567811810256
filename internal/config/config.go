// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/quote"
)

// Config is the environment-driven server configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"` // empty → in-memory store
	RedisURL    string `env:"REDIS_URL"`    // empty → quotes are not cached

	InitialCash decimal.Decimal `env:"INITIAL_CASH" envDefault:"10000"`
	TradeFee    decimal.Decimal `env:"TRADE_FEE" envDefault:"7"`

	QuoteURL      string        `env:"QUOTE_URL"`
	QuoteTimeout  time.Duration `env:"QUOTE_TIMEOUT" envDefault:"5s"`
	QuoteCacheTTL time.Duration `env:"QUOTE_CACHE_TTL" envDefault:"10s"`

	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := new(Config)
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.QuoteURL == "" {
		cfg.QuoteURL = quote.DefaultURL
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.InitialCash.IsPositive() {
		return fmt.Errorf("INITIAL_CASH must be positive, got %s", c.InitialCash)
	}
	if c.TradeFee.IsNegative() {
		return fmt.Errorf("TRADE_FEE must not be negative, got %s", c.TradeFee)
	}
	if c.QuoteTimeout <= 0 {
		return fmt.Errorf("QUOTE_TIMEOUT must be positive, got %s", c.QuoteTimeout)
	}
	if c.QuoteCacheTTL < 0 {
		return fmt.Errorf("QUOTE_CACHE_TTL must not be negative, got %s", c.QuoteCacheTTL)
	}
	return nil
}
