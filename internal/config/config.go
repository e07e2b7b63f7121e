// Package config defines the top-level configuration for riskdesk and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by RISKDESK_* environment variables.
type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Redis    RedisConfig    `toml:"redis"`
	Feed     FeedConfig     `toml:"feed"`
	Risk     RiskConfig     `toml:"risk"`
	Accounts AccountsConfig `toml:"accounts"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// StorageConfig selects the ledger driver.
type StorageConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `toml:"driver"`
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

// SQLiteConfig holds the embedded ledger location. ":memory:" keeps
// everything in process.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// ChannelPrefix namespaces pub/sub channels.
	ChannelPrefix string `toml:"channel_prefix"`
}

// FeedConfig configures the live price source.
type FeedConfig struct {
	// Source is "simulated" (in-process random walk), "redis" (poll
	// price:{SYMBOL} keys written by an external engine) or "bus" (consume
	// price_update events published by a separate feed process).
	Source   string   `toml:"source"`
	Interval duration `toml:"interval"`
	// Symbols and InitialPrices are parallel lists used by the simulated feed.
	Symbols       []string  `toml:"symbols"`
	InitialPrices []float64 `toml:"initial_prices"`
	MaxStep       float64   `toml:"max_step"`
	Floor         float64   `toml:"floor"`
	// MirrorToRedis writes simulated ticks to Redis so external readers see them.
	MirrorToRedis bool `toml:"mirror_to_redis"`
}

// RiskConfig holds risk engine runtime parameters.
type RiskConfig struct {
	SnapshotTTL        duration `toml:"snapshot_ttl"`
	MonitorInterval    duration `toml:"monitor_interval"`
	MonitorConcurrency int      `toml:"monitor_concurrency"`
}

// AccountsConfig controls account creation.
type AccountsConfig struct {
	AutoCreate     bool    `toml:"auto_create"`
	DefaultBalance float64 `toml:"default_balance"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the periodic order archive to object storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
	Prefix        string   `toml:"prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey gates /api routes when non-empty.
	APIKey string `toml:"api_key"`
	// RateLimit is the request budget per client IP and RateWindow. Zero
	// disables limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	KafkaBrokers      []string `toml:"kafka_brokers"`
	KafkaTopic        string   `toml:"kafka_topic"`
	// Levels filters which alert levels reach external senders.
	Levels     []string `toml:"levels"`
	BufferSize int      `toml:"buffer_size"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{Driver: "sqlite"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "riskdesk",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{Path: "riskdesk.db"},
		Redis: RedisConfig{
			Enabled:       false,
			Addr:          "localhost:6379",
			PoolSize:      20,
			MaxRetries:    3,
			ChannelPrefix: "riskdesk:",
		},
		Feed: FeedConfig{
			Source:        "simulated",
			Interval:      duration{time.Second},
			Symbols:       []string{"AAPL", "GOOGL", "MSFT", "TSLA", "TCS", "INFY", "RELIANCE", "HDFCBANK"},
			InitialPrices: []float64{150, 140, 320, 180, 3500, 1600, 2800, 1500},
			MaxStep:       5,
			Floor:         50,
		},
		Risk: RiskConfig{
			SnapshotTTL:        duration{time.Second},
			MonitorInterval:    duration{5 * time.Second},
			MonitorConcurrency: 8,
		},
		Accounts: AccountsConfig{
			AutoCreate:     true,
			DefaultBalance: 100000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "riskdesk-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
			Prefix:        "orders",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   600,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			KafkaTopic: "riskdesk.alerts",
			Levels:     []string{"MEDIUM", "HIGH"},
			BufferSize: 256,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"serve":   true,
	"feed":    true,
	"archive": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validRiskLevels = map[string]bool{
	"LOW":    true,
	"MEDIUM": true,
	"HIGH":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, feed, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Storage
	switch c.Storage.Driver {
	case "postgres":
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			errs = append(errs, "sqlite: path must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: postgres, sqlite)", c.Storage.Driver))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Feed
	switch c.Feed.Source {
	case "simulated":
		if len(c.Feed.Symbols) == 0 {
			errs = append(errs, "feed: symbols must not be empty")
		}
		if len(c.Feed.InitialPrices) != len(c.Feed.Symbols) {
			errs = append(errs, "feed: initial_prices must have one entry per symbol")
		}
		if c.Feed.MirrorToRedis && !c.Redis.Enabled {
			errs = append(errs, "feed: mirror_to_redis requires redis.enabled")
		}
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, "feed: source redis requires redis.enabled")
		}
		if len(c.Feed.Symbols) == 0 {
			errs = append(errs, "feed: symbols must not be empty")
		}
	case "bus":
		if !c.Redis.Enabled {
			errs = append(errs, "feed: source bus requires redis.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("feed: unknown source %q (valid: simulated, redis, bus)", c.Feed.Source))
	}
	if c.Feed.Interval.Duration <= 0 {
		errs = append(errs, "feed: interval must be > 0")
	}
	if mode == "feed" && c.Feed.Source != "simulated" {
		errs = append(errs, "feed: mode feed requires source simulated")
	}

	// Risk
	if c.Risk.SnapshotTTL.Duration < 0 {
		errs = append(errs, "risk: snapshot_ttl must be >= 0")
	}
	if c.Risk.MonitorConcurrency < 1 {
		errs = append(errs, "risk: monitor_concurrency must be >= 1")
	}

	// Accounts
	if c.Accounts.DefaultBalance < 0 {
		errs = append(errs, "accounts: default_balance must be >= 0")
	}

	// Archive
	if c.Archive.Enabled || mode == "archive" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	for _, lvl := range c.Notify.Levels {
		if !validRiskLevels[strings.ToUpper(lvl)] {
			errs = append(errs, fmt.Sprintf("notify: unknown level %q", lvl))
		}
	}
	if len(c.Notify.KafkaBrokers) > 0 && c.Notify.KafkaTopic == "" {
		errs = append(errs, "notify: kafka_topic is required when kafka_brokers is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
