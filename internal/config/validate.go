package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the settings a running service depends on. It reports
// the first problem found, naming the config key.
func (c *Config) Validate() error {
	// Database config
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.Primary.DSN == "" {
			return errors.New("database.primary.dsn is required when database.driver is postgres")
		}
	case "bolt":
		if c.Database.Bolt.Path == "" {
			return errors.New("database.bolt.path is required when database.driver is bolt")
		}
	default:
		return fmt.Errorf("database.driver must be memory, postgres or bolt, got %q", c.Database.Driver)
	}

	// Embedding config
	switch c.Embedding.Provider {
	case "none":
	case "openai":
		if c.Embedding.OpenaiApiKey == "" {
			return errors.New("embedding.openai_api_key is required when embedding.provider is openai")
		}
	case "gemini":
		if c.Embedding.GoogleApiKey == "" {
			return errors.New("embedding.google_api_key is required when embedding.provider is gemini")
		}
	default:
		return fmt.Errorf("embedding.provider must be openai, gemini or none, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Timeout <= 0 {
		return errors.New("embedding.timeout must be positive")
	}
	if c.Embedding.MaxRetries < 0 || c.Embedding.MaxRetries > 1 {
		return errors.New("embedding.max_retries must be 0 or 1")
	}
	if c.Embedding.RetryBaseDelayMs < 0 {
		return errors.New("embedding.retry_base_delay_ms must not be negative")
	}

	// Ledger config
	amounts, err := c.LedgerAmounts()
	if err != nil {
		return err
	}
	if amounts.DefaultCreditLimit < 0 {
		return errors.New("ledger.default_credit_limit_usd must not be negative")
	}
	if amounts.EmbeddingRatePer1K <= 0 {
		return errors.New("ledger.embedding_rate_per_1k_usd must be positive")
	}
	if amounts.BulkItemFee <= 0 {
		return errors.New("ledger.bulk_item_fee_usd must be positive")
	}
	if c.Ledger.TokenBufferFactor < 1 {
		return errors.New("ledger.token_buffer_factor must be at least 1")
	}
	if c.Ledger.BillingPeriodDays <= 0 {
		return errors.New("ledger.billing_period_days must be positive")
	}
	if c.Ledger.LockTTL <= 0 {
		return errors.New("ledger.lock_ttl must be positive")
	}

	// Search and import config
	if c.Search.MaxCount < 1 || c.Search.MaxCount > 15 {
		return errors.New("search.max_count must be between 1 and 15")
	}
	if c.Search.DefaultCount < 1 || c.Search.DefaultCount > c.Search.MaxCount {
		return fmt.Errorf("search.default_count must be between 1 and search.max_count (%d)", c.Search.MaxCount)
	}
	if c.Import.MaxItems <= 0 {
		return errors.New("import.max_items must be positive")
	}

	// Worker config
	if c.Worker.Concurrency <= 0 {
		return errors.New("worker.concurrency must be a positive integer")
	}
	for name, priority := range c.Worker.Queues {
		if name == "" {
			return errors.New("worker.queues contains an empty queue name")
		}
		if priority <= 0 {
			return fmt.Errorf("worker.queues priority for queue '%s' must be positive", name)
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// RequireRedis is checked by the commands that cannot run without redis.
func (c *Config) RequireRedis() error {
	if c.Redis.Address == "" {
		return errors.New("redis.addr is required (set SKALD_REDIS_ADDR or REDIS_ADDR)")
	}
	return nil
}
