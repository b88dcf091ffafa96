// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DateLayout is the layout used for every date in configuration and requests
const DateLayout = "2006-01-02"

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for the price cache database (always absolute)
	CategoriesFile string // Optional TOML file overriding the built-in category registry
	LogLevel       string
	LogPretty      bool
	Port           int
	DevMode        bool
	RequestTimeout time.Duration
	MarketData     MarketDataConfig
	Optimizer      OptimizerConfig
	PriceCache     PriceCacheConfig
}

// MarketDataConfig holds Yahoo Finance client settings
type MarketDataConfig struct {
	BaseURL        string
	RateLimit      int // requests per second
	MaxConcurrency int // concurrent symbol downloads per request
	FetchTimeout   time.Duration
	HistoryStart   time.Time
	HistoryEnd     time.Time // exclusive
}

// OptimizerConfig holds return estimation and allocation settings
type OptimizerConfig struct {
	ReturnsKind    string // "simple" or "log"
	RiskFreeRate   float64
	TradingDays    int
	Linkage        string // "single", "complete" or "average"
	WeightCutoff   float64
	WeightRounding int
}

// PriceCacheConfig holds settings for the optional SQLite price cache
type PriceCacheConfig struct {
	Enabled         bool
	TTL             time.Duration
	RefreshSchedule string // cron spec with seconds field, empty disables refresh
	CheckSchedule   string // integrity and WAL check, empty disables it
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	start, err := getEnvAsDate("HISTORY_START", "2024-01-01")
	if err != nil {
		return nil, err
	}
	end, err := getEnvAsDate("HISTORY_END", "2024-12-31")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:        getEnv("DATA_DIR", "./data"),
		CategoriesFile: getEnv("CATEGORIES_FILE", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogPretty:      getEnvAsBool("LOG_PRETTY", false),
		Port:           getEnvAsInt("PORT", 8000),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
		MarketData: MarketDataConfig{
			BaseURL:        getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			RateLimit:      getEnvAsInt("YAHOO_RATE_LIMIT", 5),
			MaxConcurrency: getEnvAsInt("YAHOO_MAX_CONCURRENCY", 4),
			FetchTimeout:   getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second),
			HistoryStart:   start,
			HistoryEnd:     end,
		},
		Optimizer: OptimizerConfig{
			ReturnsKind:    getEnv("RETURNS_KIND", "simple"),
			RiskFreeRate:   getEnvAsFloat("RISK_FREE_RATE", 0.02),
			TradingDays:    getEnvAsInt("TRADING_DAYS", 252),
			Linkage:        getEnv("HRP_LINKAGE", "single"),
			WeightCutoff:   getEnvAsFloat("WEIGHT_CUTOFF", 1e-4),
			WeightRounding: getEnvAsInt("WEIGHT_ROUNDING", 5),
		},
		PriceCache: PriceCacheConfig{
			Enabled:         getEnvAsBool("PRICE_CACHE_ENABLED", false),
			TTL:             getEnvAsDuration("PRICE_CACHE_TTL", 24*time.Hour),
			RefreshSchedule: getEnv("PRICE_REFRESH_SCHEDULE", "0 0 6 * * *"),
			CheckSchedule:   getEnv("PRICE_CACHE_CHECK_SCHEDULE", "0 0 * * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// The data directory is only needed by the price cache
	if cfg.PriceCache.Enabled {
		absDataDir, err := filepath.Abs(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
		}
		if err := os.MkdirAll(absDataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		cfg.DataDir = absDataDir
	}

	return cfg, nil
}

// Validate checks the loaded values for consistency
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if !c.MarketData.HistoryStart.Before(c.MarketData.HistoryEnd) {
		return fmt.Errorf("HISTORY_START %s must be before HISTORY_END %s",
			c.MarketData.HistoryStart.Format(DateLayout), c.MarketData.HistoryEnd.Format(DateLayout))
	}
	if c.MarketData.RateLimit <= 0 {
		return fmt.Errorf("YAHOO_RATE_LIMIT must be positive, got %d", c.MarketData.RateLimit)
	}
	if c.MarketData.MaxConcurrency <= 0 {
		return fmt.Errorf("YAHOO_MAX_CONCURRENCY must be positive, got %d", c.MarketData.MaxConcurrency)
	}
	if c.MarketData.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	switch c.Optimizer.ReturnsKind {
	case "simple", "log":
	default:
		return fmt.Errorf("RETURNS_KIND must be 'simple' or 'log', got %q", c.Optimizer.ReturnsKind)
	}
	switch c.Optimizer.Linkage {
	case "single", "complete", "average":
	default:
		return fmt.Errorf("HRP_LINKAGE must be 'single', 'complete' or 'average', got %q", c.Optimizer.Linkage)
	}
	if c.Optimizer.TradingDays <= 0 {
		return fmt.Errorf("TRADING_DAYS must be positive, got %d", c.Optimizer.TradingDays)
	}
	if c.Optimizer.WeightRounding < 0 {
		return fmt.Errorf("WEIGHT_ROUNDING must not be negative")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsDate(key, defaultValue string) (time.Time, error) {
	value := getEnv(key, defaultValue)
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: expected YYYY-MM-DD", key, value)
	}
	return t, nil
}
