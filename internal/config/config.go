// Package config defines the configuration for the oracle settlement worker
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ORACLE_* environment variables.
// Everything is read once at process start.
type Config struct {
	Oracle    OracleConfig    `toml:"oracle"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Prices    PricesConfig    `toml:"prices"`
	Contract  ContractConfig  `toml:"contract"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	LogLevel  string          `toml:"log_level"`
}

// OracleConfig holds the attestation signing key material.
type OracleConfig struct {
	// SigningSeed is the hex-encoded 32-byte Ed25519 seed.
	SigningSeed string `toml:"signing_seed"`

	// EncryptedKeyPath points to an encrypted seed file; KeyPassword
	// decrypts it. Used when SigningSeed is empty.
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// SchedulerConfig holds the due-call scan and retry parameters.
type SchedulerConfig struct {
	// PollInterval is the wall-clock period between due-call scans.
	PollInterval duration `toml:"poll_interval"`

	// MaxAttempts is the total number of settlement attempts per call.
	MaxAttempts int `toml:"max_attempts"`

	// BackoffBase is the delay before the first retry; each further retry
	// doubles it.
	BackoffBase duration `toml:"backoff_base"`
}

// PricesConfig holds the price source endpoints and cache policy.
type PricesConfig struct {
	// DexScreenerURL is the primary source API root.
	DexScreenerURL string `toml:"dexscreener_url"`

	// Chain is the DexScreener chain slug the pairs live on.
	Chain string `toml:"chain"`

	// HorizonURL is the fallback on-chain order-book source. Empty disables
	// the fallback.
	HorizonURL string `toml:"horizon_url"`

	// CacheTTL bounds how long a fetched price may be reused by retries.
	// Zero disables caching.
	CacheTTL duration `toml:"cache_ttl"`
}

// ContractConfig holds the settlement contract gateway parameters.
type ContractConfig struct {
	// Endpoint is the OutcomeManager gateway URL. Empty runs the submitter
	// in dry-run mode.
	Endpoint string `toml:"endpoint"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// disabled the worker runs without the price cache and cross-replica locks.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds the attestation archive parameters. Optional.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Scheduler: SchedulerConfig{
			PollInterval: duration{30 * time.Second},
			MaxAttempts:  3,
			BackoffBase:  duration{10 * time.Second},
		},
		Prices: PricesConfig{
			DexScreenerURL: "https://api.dexscreener.com",
			Chain:          "stellar",
			HorizonURL:     "https://horizon.stellar.org",
			CacheTTL:       duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "backit",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled: false,
			Region:  "us-east-1",
			Bucket:  "backit-attestations",
		},
		Notify: NotifyConfig{
			Events: []string{"settlement_processed", "settlement_failed"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Scheduler
	if c.Scheduler.PollInterval.Duration <= 0 {
		errs = append(errs, "scheduler: poll_interval must be positive")
	}
	if c.Scheduler.MaxAttempts < 1 {
		errs = append(errs, "scheduler: max_attempts must be >= 1")
	}
	if c.Scheduler.BackoffBase.Duration < 0 {
		errs = append(errs, "scheduler: backoff_base must not be negative")
	}

	// Oracle key material: both sources may be empty (a development key is
	// generated), but a key file needs its password.
	if c.Oracle.EncryptedKeyPath != "" && c.Oracle.KeyPassword == "" {
		errs = append(errs, "oracle: key_password is required when encrypted_key_path is set")
	}

	// Prices
	if c.Prices.DexScreenerURL == "" {
		errs = append(errs, "prices: dexscreener_url must not be empty")
	}
	if c.Prices.Chain == "" {
		errs = append(errs, "prices: chain must not be empty")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	// Notify: Telegram needs both the token and the chat ID.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
