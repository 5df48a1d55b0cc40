// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/portfolio"
	"github.com/papertrade/papertrade/internal/quote"
	"github.com/papertrade/papertrade/internal/store"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig
	Store   store.Options
	Quotes  quote.Options
	Auth    AuthConfig
	Trading TradingConfig
	CORS    CORSConfig
	Log     LogConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	JWTSecret []byte
	TokenTTL  time.Duration
}

// TradingConfig holds ledger policy.
type TradingConfig struct {
	StartingCash decimal.Decimal
	CostBasis    portfolio.CostBasis
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level slog.Level
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", ""),
		},
		Store: store.Options{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			SQLitePath:  os.Getenv("SQLITE_PATH"),
			RedisURL:    os.Getenv("REDIS_URL"),
			CacheTTL:    getDuration("CACHE_TTL", 30*time.Second, &errs),
		},
		Quotes: quote.Options{
			Static:  os.Getenv("QUOTE_STATIC"),
			BaseURL: getEnv("QUOTE_API_URL", "https://cloud.iexapis.com/stable"),
			APIKey:  os.Getenv("API_KEY"),
			Timeout: getDuration("QUOTE_TIMEOUT", 5*time.Second, &errs),
		},
		Auth: AuthConfig{
			JWTSecret: []byte(os.Getenv("JWT_SECRET")),
			TokenTTL:  getDuration("TOKEN_TTL", 24*time.Hour, &errs),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost")),
		},
	}
	cfg.Server.Addr = fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	cash, err := decimal.NewFromString(getEnv("STARTING_CASH", "10000"))
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("STARTING_CASH: %w", err))
	case cash.IsNegative():
		errs = append(errs, errors.New("STARTING_CASH must not be negative"))
	}
	cfg.Trading.StartingCash = cash

	method, err := portfolio.ParseCostBasis(os.Getenv("COST_BASIS"))
	if err != nil {
		errs = append(errs, fmt.Errorf("COST_BASIS: %w", err))
	}
	cfg.Trading.CostBasis = method

	if err := cfg.Log.Level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	if cfg.Quotes.Static == "" && cfg.Quotes.APIKey == "" {
		errs = append(errs, errors.New("API_KEY is required unless QUOTE_STATIC is set"))
	}

	return cfg, errors.Join(errs...)
}

// RequireSecret reports an error when no JWT secret is configured. Only
// the HTTP server issues tokens.
func (c *Config) RequireSecret() error {
	if len(c.Auth.JWTSecret) == 0 {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, value))
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
