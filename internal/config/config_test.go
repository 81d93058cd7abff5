package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg := NewConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 10*time.Minute, cfg.PriceTTL)
	assert.Equal(t, "0 0 1 * *", cfg.Schedule)
	assert.Zero(t, cfg.OrgMaxAge)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TVL_DATABASE_URL", "postgres://localhost/tvl")
	t.Setenv("TVL_RPC_URL", "http://rpc.local")
	t.Setenv("TVL_CALL_INTERVAL", "750ms")
	t.Setenv("TVL_ORG_INTERVAL", "3000")
	t.Setenv("TVL_BATCH_SIZE", "10")
	t.Setenv("TVL_MAX_RETRIES", "not-a-number")
	t.Setenv("TVL_RETRY_JITTER", "0.25")
	t.Setenv("TVL_ORG_MAX_AGE", "24h")
	t.Setenv("TVL_ORG_SCHEDULE", "0 0 * * *")

	cfg := NewConfig()
	cfg.LoadFromEnvironment()

	assert.Equal(t, "postgres://localhost/tvl", cfg.DatabaseURL)
	assert.Equal(t, "http://rpc.local", cfg.RPCURL)
	assert.Equal(t, 750*time.Millisecond, cfg.CallInterval)
	assert.Equal(t, 3*time.Second, cfg.OrgInterval)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.InDelta(t, 0.25, cfg.RetryJitter, 1e-9)
	assert.Equal(t, 24*time.Hour, cfg.OrgMaxAge)
	assert.Equal(t, "0 0 * * *", cfg.OrgSchedule)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty rpc url", func(c *Config) { c.RPCURL = "" }},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"zero retry delay", func(c *Config) { c.RetryDelay = 0 }},
		{"jitter out of range", func(c *Config) { c.RetryJitter = 1 }},
		{"zero price ttl", func(c *Config) { c.PriceTTL = 0 }},
		{"negative max age", func(c *Config) { c.OrgMaxAge = -time.Second }},
		{"bad schedule", func(c *Config) { c.Schedule = "monthly" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
