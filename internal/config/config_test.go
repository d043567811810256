package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/ledger-engine/internal/config"
	"github.com/atmx/ledger-engine/internal/quote"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, "10000", cfg.InitialCash.String())
	assert.Equal(t, "7", cfg.TradeFee.String())
	assert.Equal(t, quote.DefaultURL, cfg.QuoteURL)
	assert.Equal(t, 5*time.Second, cfg.QuoteTimeout)
	assert.Equal(t, 10*time.Second, cfg.QuoteCacheTTL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"PORT":            "9090",
		"DATABASE_URL":    "postgres://localhost/ledger",
		"INITIAL_CASH":    "2500.50",
		"TRADE_FEE":       "0",
		"QUOTE_URL":       "http://quotes.local/json",
		"QUOTE_TIMEOUT":   "750ms",
		"QUOTE_CACHE_TTL": "0s",
		"LOG_LEVEL":       "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres://localhost/ledger", cfg.DatabaseURL)
	assert.Equal(t, "2500.5", cfg.InitialCash.String())
	assert.True(t, cfg.TradeFee.IsZero())
	assert.Equal(t, "http://quotes.local/json", cfg.QuoteURL)
	assert.Equal(t, 750*time.Millisecond, cfg.QuoteTimeout)
	assert.Zero(t, cfg.QuoteCacheTTL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad cash":      {"INITIAL_CASH": "lots"},
		"zero cash":     {"INITIAL_CASH": "0"},
		"negative fee":  {"TRADE_FEE": "-1"},
		"bad timeout":   {"QUOTE_TIMEOUT": "soon"},
		"zero timeout":  {"QUOTE_TIMEOUT": "0s"},
		"bad log level": {"LOG_LEVEL": "loud"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.LoadFrom(vars)
			assert.Error(t, err)
		})
	}
}
