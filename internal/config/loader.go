package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RISKDESK_* environment variable overrides, and
// returns the final Config. A missing file is not an error; defaults and the
// environment are used instead. The returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads RISKDESK_* environment variables and overwrites the
// corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Storage ──
	setStr(&cfg.Storage.Driver, "RISKDESK_STORAGE_DRIVER")
	setStr(&cfg.SQLite.Path, "RISKDESK_SQLITE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "RISKDESK_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "RISKDESK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RISKDESK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "RISKDESK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "RISKDESK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "RISKDESK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "RISKDESK_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "RISKDESK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "RISKDESK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "RISKDESK_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "RISKDESK_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "RISKDESK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RISKDESK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RISKDESK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RISKDESK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RISKDESK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RISKDESK_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.ChannelPrefix, "RISKDESK_REDIS_CHANNEL_PREFIX")

	// ── Feed ──
	setStr(&cfg.Feed.Source, "RISKDESK_FEED_SOURCE")
	setDuration(&cfg.Feed.Interval, "RISKDESK_FEED_INTERVAL")
	setStringSlice(&cfg.Feed.Symbols, "RISKDESK_FEED_SYMBOLS")
	setBool(&cfg.Feed.MirrorToRedis, "RISKDESK_FEED_MIRROR_TO_REDIS")

	// ── Risk ──
	setDuration(&cfg.Risk.SnapshotTTL, "RISKDESK_RISK_SNAPSHOT_TTL")
	setDuration(&cfg.Risk.MonitorInterval, "RISKDESK_RISK_MONITOR_INTERVAL")
	setInt(&cfg.Risk.MonitorConcurrency, "RISKDESK_RISK_MONITOR_CONCURRENCY")

	// ── Accounts ──
	setBool(&cfg.Accounts.AutoCreate, "RISKDESK_ACCOUNTS_AUTO_CREATE")
	setFloat64(&cfg.Accounts.DefaultBalance, "RISKDESK_ACCOUNTS_DEFAULT_BALANCE")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "RISKDESK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RISKDESK_S3_REGION")
	setStr(&cfg.S3.Bucket, "RISKDESK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RISKDESK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RISKDESK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RISKDESK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RISKDESK_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "RISKDESK_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "RISKDESK_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "RISKDESK_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Prefix, "RISKDESK_ARCHIVE_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "RISKDESK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "RISKDESK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "RISKDESK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "RISKDESK_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "RISKDESK_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "RISKDESK_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RISKDESK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RISKDESK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RISKDESK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.KafkaBrokers, "RISKDESK_NOTIFY_KAFKA_BROKERS")
	setStr(&cfg.Notify.KafkaTopic, "RISKDESK_NOTIFY_KAFKA_TOPIC")
	setStringSlice(&cfg.Notify.Levels, "RISKDESK_NOTIFY_LEVELS")
	setInt(&cfg.Notify.BufferSize, "RISKDESK_NOTIFY_BUFFER_SIZE")

	// ── Top-level ──
	setStr(&cfg.Mode, "RISKDESK_MODE")
	setStr(&cfg.LogLevel, "RISKDESK_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present and parses cleanly.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
