package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"skald/internal/money"
)

type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`

	Database struct {
		Driver  string `mapstructure:"driver"` // memory, postgres or bolt
		Primary struct {
			DSN string `mapstructure:"dsn"`
		} `mapstructure:"primary"`
		Bolt struct {
			Path string `mapstructure:"path"`
		} `mapstructure:"bolt"`
	} `mapstructure:"database"`

	Embedding struct {
		Provider         string        `mapstructure:"provider"` // openai, gemini or none
		Model            string        `mapstructure:"model"`
		OpenaiApiKey     string        `mapstructure:"openai_api_key"`
		OpenaiBaseURL    string        `mapstructure:"openai_base_url"`
		GoogleApiKey     string        `mapstructure:"google_api_key"`
		Timeout          time.Duration `mapstructure:"timeout"`
		MaxRetries       int           `mapstructure:"max_retries"`
		RetryBaseDelayMs int64         `mapstructure:"retry_base_delay_ms"`
	} `mapstructure:"embedding"`

	Ledger struct {
		DefaultCreditLimitUSD string        `mapstructure:"default_credit_limit_usd"`
		EmbeddingRatePer1KUSD string        `mapstructure:"embedding_rate_per_1k_usd"`
		TokenBufferFactor     float64       `mapstructure:"token_buffer_factor"`
		BulkItemFeeUSD        string        `mapstructure:"bulk_item_fee_usd"`
		ChargeSearch          bool          `mapstructure:"charge_search"`
		BillingPeriodDays     int           `mapstructure:"billing_period_days"`
		LockTTL               time.Duration `mapstructure:"lock_ttl"`
	} `mapstructure:"ledger"`

	Search struct {
		DefaultCount int `mapstructure:"default_count"`
		MaxCount     int `mapstructure:"max_count"`
	} `mapstructure:"search"`

	Import struct {
		MaxItems int `mapstructure:"max_items"`
	} `mapstructure:"import"`

	Redis struct {
		Address  string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Worker struct {
		Concurrency int            `mapstructure:"concurrency"`
		Queues      map[string]int `mapstructure:"queues"`
	} `mapstructure:"worker"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // text or json
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "localhost")
	v.SetDefault("server.port", "8080")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.primary.dsn", "")
	v.SetDefault("database.bolt.path", "skald.db")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-ada-002")
	v.SetDefault("embedding.openai_api_key", "")
	v.SetDefault("embedding.openai_base_url", "")
	v.SetDefault("embedding.google_api_key", "")
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.max_retries", 1)
	v.SetDefault("embedding.retry_base_delay_ms", 200)

	v.SetDefault("ledger.default_credit_limit_usd", "10.00")
	v.SetDefault("ledger.embedding_rate_per_1k_usd", "0.0001")
	v.SetDefault("ledger.token_buffer_factor", 1.0)
	v.SetDefault("ledger.bulk_item_fee_usd", "0.001")
	v.SetDefault("ledger.charge_search", true)
	v.SetDefault("ledger.billing_period_days", 30)
	v.SetDefault("ledger.lock_ttl", 2*time.Minute)

	v.SetDefault("search.default_count", 5)
	v.SetDefault("search.max_count", 15)

	v.SetDefault("import.max_items", 500)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queues", map[string]int{"imports": 1})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads config.yaml from the working directory or ~/.skald,
// then applies SKALD_* environment overrides. A missing file is fine.
func LoadConfig() (*Config, error) {
	return LoadConfigFile("")
}

// LoadConfigFile is LoadConfig with an explicit file path.
func LoadConfigFile(path string) (*Config, error) {
	// A missing .env is the common case.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".skald"))
		}
	}

	v.SetEnvPrefix("SKALD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names win over nothing but lose to SKALD_* ones.
	_ = v.BindEnv("embedding.openai_api_key", "SKALD_EMBEDDING_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("embedding.google_api_key", "SKALD_EMBEDDING_GOOGLE_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("database.primary.dsn", "SKALD_DATABASE_PRIMARY_DSN", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "SKALD_REDIS_ADDR", "REDIS_ADDR")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	return &config, nil
}

// LedgerAmounts are the money settings parsed from their decimal strings.
type LedgerAmounts struct {
	DefaultCreditLimit money.Amount
	EmbeddingRatePer1K money.Amount
	BulkItemFee        money.Amount
}

func (c *Config) LedgerAmounts() (LedgerAmounts, error) {
	var (
		out LedgerAmounts
		err error
	)
	if out.DefaultCreditLimit, err = money.ParseUSD(c.Ledger.DefaultCreditLimitUSD); err != nil {
		return out, fmt.Errorf("ledger.default_credit_limit_usd: %w", err)
	}
	if out.EmbeddingRatePer1K, err = money.ParseUSD(c.Ledger.EmbeddingRatePer1KUSD); err != nil {
		return out, fmt.Errorf("ledger.embedding_rate_per_1k_usd: %w", err)
	}
	if out.BulkItemFee, err = money.ParseUSD(c.Ledger.BulkItemFeeUSD); err != nil {
		return out, fmt.Errorf("ledger.bulk_item_fee_usd: %w", err)
	}
	return out, nil
}

// holdSlack covers locking and persistence around the embedding calls.
const holdSlack = 30 * time.Second

// HoldTTL is how long a credit hold may stay unsettled: every embedding
// attempt timing out plus the backoff between them.
func (c *Config) HoldTTL() time.Duration {
	attempts := c.Embedding.MaxRetries + 1
	ttl := time.Duration(attempts)*c.Embedding.Timeout + holdSlack
	for i := 0; i < c.Embedding.MaxRetries; i++ {
		backoff := time.Duration(c.Embedding.RetryBaseDelayMs<<i) * time.Millisecond
		ttl += min(backoff, 30*time.Second)
	}
	return ttl
}

// BillingPeriod converts billing_period_days.
func (c *Config) BillingPeriod() time.Duration {
	return time.Duration(c.Ledger.BillingPeriodDays) * 24 * time.Hour
}
