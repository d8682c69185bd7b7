// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Database
	DatabaseURL     string        // PostgreSQL connection string (optional, uses in-memory if not set)
	ReportRetention time.Duration // Delete stored reports older than this (0 disables pruning)

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint (optional, tracing disabled if not set)

	// Transaction indexer
	IndexerURL    string
	IndexerAPIKey string

	// Threat intel providers
	IntelAPIURL      string        // Professional intel API base URL (optional)
	IntelAPIKey      string        // Credential for the intel API
	IntelAPIName     string        // Source label used in merged verdicts
	IntelCacheTTL    time.Duration // How long verdicts stay cached
	IntelCacheSize   int           // Max cached verdicts
	ProviderTimeout  time.Duration // Per-provider lookup deadline
	StaticFallback   bool          // Run address-shape heuristics when every provider fails
	CommunityListURL string        // Community blocklist JSON (optional)

	// Risk scoring
	ListsFile         string // JSON file with mixer/scam/blacklist sets (optional)
	CounterpartyLimit int    // Max counterparties scanned per analysis
}

// Defaults for local development
const (
	DefaultIndexerURL        = "https://api.covalenthq.com"
	DefaultIntelAPIName      = "ChainIntel"
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultIntelCacheTTL     = time.Hour
	DefaultIntelCacheSize    = 10000
	DefaultProviderTimeout   = 5 * time.Second
	DefaultCounterpartyLimit = 25
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:         getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ReportRetention:   getEnvDuration("REPORT_RETENTION", 0),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		IndexerURL:        getEnv("INDEXER_URL", DefaultIndexerURL),
		IndexerAPIKey:     os.Getenv("INDEXER_API_KEY"),
		IntelAPIURL:       os.Getenv("INTEL_API_URL"),
		IntelAPIKey:       os.Getenv("INTEL_API_KEY"),
		IntelAPIName:      getEnv("INTEL_API_NAME", DefaultIntelAPIName),
		IntelCacheTTL:     getEnvDuration("INTEL_CACHE_TTL", DefaultIntelCacheTTL),
		IntelCacheSize:    int(getEnvInt64("INTEL_CACHE_SIZE", DefaultIntelCacheSize)),
		ProviderTimeout:   getEnvDuration("INTEL_PROVIDER_TIMEOUT", DefaultProviderTimeout),
		StaticFallback:    getEnvBool("INTEL_STATIC_FALLBACK", true),
		CommunityListURL:  os.Getenv("COMMUNITY_LIST_URL"),
		ListsFile:         os.Getenv("RISK_LISTS_FILE"),
		CounterpartyLimit: int(getEnvInt64("COUNTERPARTY_LIMIT", DefaultCounterpartyLimit)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is coherent
func (c *Config) Validate() error {
	if c.IndexerURL == "" {
		return fmt.Errorf("INDEXER_URL is required")
	}
	if !strings.HasPrefix(c.IndexerURL, "http://") && !strings.HasPrefix(c.IndexerURL, "https://") {
		return fmt.Errorf("INDEXER_URL must be an http(s) URL")
	}

	if c.IntelAPIURL != "" && c.IntelAPIKey == "" {
		return fmt.Errorf("INTEL_API_KEY is required when INTEL_API_URL is set")
	}

	if c.IntelCacheTTL <= 0 {
		return fmt.Errorf("INTEL_CACHE_TTL must be positive")
	}
	if c.IntelCacheSize <= 0 {
		return fmt.Errorf("INTEL_CACHE_SIZE must be positive")
	}
	if c.CounterpartyLimit < 0 {
		return fmt.Errorf("COUNTERPARTY_LIMIT must not be negative")
	}
	if c.ReportRetention < 0 {
		return fmt.Errorf("REPORT_RETENTION must not be negative")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
