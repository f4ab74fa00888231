package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:         defaultAddr,
		Storage:      StoragePostgres,
		DatabaseURL:  "postgres://localhost/pickup",
		APIKeyPepper: "pepper",
		TaxRate:      "0.085",
		RateLimit:    RateLimitConfig{Max: 100, Window: time.Minute},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "memory needs no database", mutate: func(c *Config) {
			c.Storage = StorageMemory
			c.DatabaseURL = ""
			c.APIKeyPepper = ""
		}},
		{name: "missing database url", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "database URL is required"},
		{name: "missing pepper", mutate: func(c *Config) { c.APIKeyPepper = "" }, wantErr: "API key pepper is required"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage = "redis" }, wantErr: `unknown storage "redis"`},
		{name: "tax rate not a number", mutate: func(c *Config) { c.TaxRate = "eight" }, wantErr: "parse tax rate"},
		{name: "tax rate too high", mutate: func(c *Config) { c.TaxRate = "1" }, wantErr: "out of range"},
		{name: "negative tax rate", mutate: func(c *Config) { c.TaxRate = "-0.01" }, wantErr: "out of range"},
		{name: "zero rate limit", mutate: func(c *Config) { c.RateLimit.Max = 0 }, wantErr: "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ParsedTaxRate(t *testing.T) {
	cfg := validConfig()
	rate, err := cfg.ParsedTaxRate()
	require.NoError(t, err)
	assert.Equal(t, "0.085", rate.String())

	cfg.TaxRate = "0"
	rate, err = cfg.ParsedTaxRate()
	require.NoError(t, err)
	assert.True(t, rate.IsZero())
}

func TestConfig_ApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg := validConfig()
	cfg.DatabaseURL = ""
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)

	cfg = validConfig()
	cfg.Addr = "127.0.0.1:7000"
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://localhost/pickup", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}
