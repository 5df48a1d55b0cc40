package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/papertrade/internal/config"
	"github.com/papertrade/papertrade/internal/portfolio"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "HOST", "DATABASE_URL", "SQLITE_PATH", "REDIS_URL", "CACHE_TTL",
		"QUOTE_API_URL", "API_KEY", "QUOTE_STATIC", "QUOTE_TIMEOUT", "JWT_SECRET",
		"TOKEN_TTL", "STARTING_CASH", "COST_BASIS", "CORS_ORIGINS", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "key")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "https://cloud.iexapis.com/stable", cfg.Quotes.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Quotes.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Store.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Trading.StartingCash.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, portfolio.CostBasisNetted, cfg.Trading.CostBasis)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost"}, cfg.CORS.AllowedOrigins)
	assert.Error(t, cfg.RequireSecret())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("QUOTE_STATIC", "AAPL=150")
	t.Setenv("STARTING_CASH", "2500.50")
	t.Setenv("COST_BASIS", "average")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("TOKEN_TTL", "1h")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.True(t, cfg.Trading.StartingCash.Equal(decimal.RequireFromString("2500.50")))
	assert.Equal(t, portfolio.CostBasisAverage, cfg.Trading.CostBasis)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.NoError(t, cfg.RequireSecret())
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("STARTING_CASH", "-1")
	t.Setenv("COST_BASIS", "fifo")
	t.Setenv("QUOTE_TIMEOUT", "soon")

	_, err := config.Load()
	require.Error(t, err)
	for _, want := range []string{"STARTING_CASH", "COST_BASIS", "QUOTE_TIMEOUT", "API_KEY"} {
		assert.Contains(t, err.Error(), want)
	}
}
