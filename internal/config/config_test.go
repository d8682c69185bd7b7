package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "INTEL_CACHE_TTL", "30m")
	setEnv(t, "COUNTERPARTY_LIMIT", "10")
	setEnv(t, "INTEL_STATIC_FALLBACK", "false")
	setEnv(t, "REPORT_RETENTION", "720h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultIndexerURL, cfg.IndexerURL)
	assert.Equal(t, 30*time.Minute, cfg.IntelCacheTTL)
	assert.Equal(t, 10, cfg.CounterpartyLimit)
	assert.Equal(t, DefaultIntelCacheSize, cfg.IntelCacheSize)
	assert.False(t, cfg.StaticFallback)
	assert.Equal(t, 720*time.Hour, cfg.ReportRetention)
}

func TestLoad_IntelKeyRequiredWithURL(t *testing.T) {
	setEnv(t, "INTEL_API_URL", "https://intel.example.com")
	setEnv(t, "INTEL_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "INTEL_API_KEY is required")
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		IndexerURL:        "https://api.covalenthq.com",
		IntelCacheTTL:     time.Hour,
		IntelCacheSize:    1000,
		CounterpartyLimit: 25,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing indexer URL",
			mutate:  func(c *Config) { c.IndexerURL = "" },
			wantErr: "INDEXER_URL is required",
		},
		{
			name:    "indexer URL without scheme",
			mutate:  func(c *Config) { c.IndexerURL = "api.covalenthq.com" },
			wantErr: "http(s) URL",
		},
		{
			name:    "intel URL without key",
			mutate:  func(c *Config) { c.IntelAPIURL = "https://intel.example.com" },
			wantErr: "INTEL_API_KEY is required",
		},
		{
			name:    "non-positive cache TTL",
			mutate:  func(c *Config) { c.IntelCacheTTL = 0 },
			wantErr: "INTEL_CACHE_TTL must be positive",
		},
		{
			name:    "non-positive cache size",
			mutate:  func(c *Config) { c.IntelCacheSize = 0 },
			wantErr: "INTEL_CACHE_SIZE must be positive",
		},
		{
			name:    "negative report retention",
			mutate:  func(c *Config) { c.ReportRetention = -time.Hour },
			wantErr: "REPORT_RETENTION must not be negative",
		},
		{
			name:    "negative counterparty limit",
			mutate:  func(c *Config) { c.CounterpartyLimit = -1 },
			wantErr: "COUNTERPARTY_LIMIT must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DUR", "90s")
	setEnv(t, "TEST_DUR_INVALID", "ninety")

	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("NONEXISTENT_VAR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DUR_INVALID", time.Minute))
}
