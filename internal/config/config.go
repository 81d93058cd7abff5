package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	// Storage settings
	DatabaseURL string
	RedisURL    string

	// Upstream settings
	RPCURL   string
	PriceURL string

	// Server settings
	HTTPAddr          string
	Schedule          string
	OrgSchedule       string
	OrganizationsFile string

	// Pacing settings
	CallInterval time.Duration
	OrgInterval  time.Duration
	BatchSize    int

	// Retry settings
	MaxRetries  int
	RetryDelay  time.Duration
	RetryJitter float64

	// Cache settings
	PriceTTL  time.Duration
	OrgMaxAge time.Duration
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		RPCURL:       "https://api.mainnet-beta.solana.com",
		PriceURL:     "https://api.jup.ag/price/v2",
		HTTPAddr:     ":3000",
		Schedule:     "0 0 1 * *",
		CallInterval: 500 * time.Millisecond,
		OrgInterval:  2 * time.Second,
		BatchSize:    25,
		MaxRetries:   5,
		RetryDelay:   500 * time.Millisecond,
		RetryJitter:  0.1,
		PriceTTL:     10 * time.Minute,
	}
}

// LoadFromEnvironment loads configuration from environment variables
func (c *Config) LoadFromEnvironment() {
	if v := os.Getenv("TVL_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}

	if v := os.Getenv("TVL_REDIS_URL"); v != "" {
		c.RedisURL = v
	}

	if v := os.Getenv("TVL_RPC_URL"); v != "" {
		c.RPCURL = v
	}

	if v := os.Getenv("TVL_PRICE_URL"); v != "" {
		c.PriceURL = v
	}

	if v := os.Getenv("TVL_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}

	if v := os.Getenv("TVL_SCHEDULE"); v != "" {
		c.Schedule = v
	}

	if v := os.Getenv("TVL_ORG_SCHEDULE"); v != "" {
		c.OrgSchedule = v
	}

	if v := os.Getenv("TVL_ORGANIZATIONS_FILE"); v != "" {
		c.OrganizationsFile = v
	}

	loadDuration("TVL_CALL_INTERVAL", &c.CallInterval)
	loadDuration("TVL_ORG_INTERVAL", &c.OrgInterval)
	loadDuration("TVL_RETRY_DELAY", &c.RetryDelay)
	loadDuration("TVL_PRICE_TTL", &c.PriceTTL)
	loadDuration("TVL_ORG_MAX_AGE", &c.OrgMaxAge)

	if v := os.Getenv("TVL_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchSize = n
		}
	}

	if v := os.Getenv("TVL_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}

	if v := os.Getenv("TVL_RETRY_JITTER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RetryJitter = f
		}
	}
}

// loadDuration accepts Go duration strings ("750ms") or plain milliseconds.
func loadDuration(key string, target *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*target = d
		return
	}
	if ms, err := strconv.Atoi(v); err == nil {
		*target = time.Duration(ms) * time.Millisecond
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url cannot be empty")
	}

	if c.PriceURL == "" {
		return fmt.Errorf("price url cannot be empty")
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got: %d", c.BatchSize)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got: %d", c.MaxRetries)
	}

	if c.CallInterval < 0 || c.OrgInterval < 0 || c.RetryDelay <= 0 {
		return fmt.Errorf("intervals must be non-negative and retry delay positive")
	}

	if c.RetryJitter < 0 || c.RetryJitter >= 1 {
		return fmt.Errorf("retry jitter must be in [0, 1), got: %v", c.RetryJitter)
	}

	if c.PriceTTL <= 0 {
		return fmt.Errorf("price ttl must be positive, got: %s", c.PriceTTL)
	}

	if c.OrgMaxAge < 0 {
		return fmt.Errorf("organization max age must be non-negative, got: %s", c.OrgMaxAge)
	}

	for _, spec := range []string{c.Schedule, c.OrgSchedule} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", spec, err)
		}
	}

	return nil
}
