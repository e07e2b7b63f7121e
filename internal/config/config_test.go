package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Feed.InitialPrices, len(cfg.Feed.Symbols))
	assert.Equal(t, 100000.0, cfg.Accounts.DefaultBalance)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"mode", func(c *Config) { c.Mode = "yolo" }, `unknown mode "yolo"`},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, `unknown log_level "loud"`},
		{"driver", func(c *Config) { c.Storage.Driver = "mysql" }, `unknown driver "mysql"`},
		{"sqlite path", func(c *Config) { c.SQLite.Path = "" }, "sqlite: path must not be empty"},
		{"postgres db", func(c *Config) { c.Storage.Driver = "postgres"; c.Postgres.Database = "" }, "postgres: database must not be empty"},
		{"feed prices", func(c *Config) { c.Feed.InitialPrices = c.Feed.InitialPrices[:1] }, "one entry per symbol"},
		{"redis feed", func(c *Config) { c.Feed.Source = "redis" }, "source redis requires redis.enabled"},
		{"bus feed", func(c *Config) { c.Feed.Source = "bus" }, "source bus requires redis.enabled"},
		{"unknown feed", func(c *Config) { c.Feed.Source = "ws" }, `unknown source "ws"`},
		{"mirror", func(c *Config) { c.Feed.MirrorToRedis = true }, "mirror_to_redis requires redis.enabled"},
		{"feed mode", func(c *Config) { c.Mode = "feed"; c.Redis.Enabled = true; c.Feed.Source = "redis" }, "mode feed requires source simulated"},
		{"balance", func(c *Config) { c.Accounts.DefaultBalance = -1 }, "default_balance must be >= 0"},
		{"archive bucket", func(c *Config) { c.Mode = "archive"; c.S3.Bucket = "" }, "s3: bucket must not be empty"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "port must be 1-65535"},
		{"rate window", func(c *Config) { c.Server.RateWindow = duration{} }, "rate_window must be > 0"},
		{"notify level", func(c *Config) { c.Notify.Levels = []string{"CRITICAL"} }, `unknown level "CRITICAL"`},
		{"kafka topic", func(c *Config) { c.Notify.KafkaBrokers = []string{"k:9092"}; c.Notify.KafkaTopic = "" }, "kafka_topic is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "nope"
	cfg.Server.Port = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "server: port")
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "riskdesk.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "serve"

[storage]
driver = "postgres"

[postgres]
dsn = "postgres://u:p@db:5432/riskdesk"

[feed]
interval = "250ms"
symbols = ["AAPL", "MSFT"]
initial_prices = [150.0, 320.0]

[risk]
snapshot_ttl = "2s"
`), 0o600))

	t.Setenv("RISKDESK_FEED_SYMBOLS", "AAPL, MSFT ,TSLA")
	t.Setenv("RISKDESK_RISK_MONITOR_CONCURRENCY", "3")
	t.Setenv("RISKDESK_SERVER_RATE_WINDOW", "30s")
	t.Setenv("RISKDESK_ACCOUNTS_AUTO_CREATE", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://u:p@db:5432/riskdesk", cfg.Postgres.DSN)
	assert.Equal(t, 250*time.Millisecond, cfg.Feed.Interval.Duration)
	assert.Equal(t, 2*time.Second, cfg.Risk.SnapshotTTL.Duration)
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, cfg.Feed.Symbols)
	assert.Equal(t, 3, cfg.Risk.MonitorConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Server.RateWindow.Duration)
	assert.False(t, cfg.Accounts.AutoCreate)
	// Untouched sections keep their defaults.
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "serve", cfg.Mode)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "k"
	cfg.Notify.TelegramToken = "t"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Empty(t, red.S3.SecretKey)

	red.Feed.Symbols[0] = "ZZZ"
	assert.Equal(t, "AAPL", cfg.Feed.Symbols[0])
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
