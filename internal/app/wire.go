package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	s3blob "github.com/alanyoungcy/riskdesk/internal/blob/s3"
	"github.com/alanyoungcy/riskdesk/internal/cache/memory"
	"github.com/alanyoungcy/riskdesk/internal/cache/redis"
	"github.com/alanyoungcy/riskdesk/internal/config"
	"github.com/alanyoungcy/riskdesk/internal/domain"
	"github.com/alanyoungcy/riskdesk/internal/metrics"
	"github.com/alanyoungcy/riskdesk/internal/notify"
	"github.com/alanyoungcy/riskdesk/internal/server/handler"
	"github.com/alanyoungcy/riskdesk/internal/store/postgres"
	"github.com/alanyoungcy/riskdesk/internal/store/sqlite"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	Ledger     domain.Ledger
	AuditStore domain.AuditStore

	// Caches and messaging
	PriceCache  *memory.PriceCache
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	// PriceStore is the Redis price:{SYMBOL} table; nil without Redis.
	PriceStore *redis.PriceStore

	// Blob storage; nil unless archiving is configured.
	Blobs *s3blob.Store

	// Notifications
	Notifier *notify.Notifier

	Metrics *metrics.Metrics
	// Health probes reported by GET /api/health.
	Health map[string]handler.Pinger
}

// pinger adapts a probe function to handler.Pinger.
type pinger func(ctx context.Context) error

func (p pinger) Ping(ctx context.Context) error { return p(ctx) }

// needsLedger returns true for modes that read or write accounts and orders.
func needsLedger(mode string) bool {
	switch mode {
	case "serve", "archive":
		return true
	default:
		return false
	}
}

// needsS3 returns true when object storage must be reachable.
func needsS3(cfg *config.Config, mode string) bool {
	return mode == "archive" || (mode == "serve" && cfg.Archive.Enabled)
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	mode := strings.ToLower(cfg.Mode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := &Dependencies{
		PriceCache: memory.NewPriceCache(),
		Metrics:    metrics.New(reg),
		Health:     make(map[string]handler.Pinger),
	}

	// --- Ledger (sqlite or postgres) ---
	if needsLedger(mode) {
		switch cfg.Storage.Driver {
		case "postgres":
			pgClient, err := postgres.New(ctx, postgres.ClientConfig{
				DSN:      cfg.Postgres.DSN,
				Host:     cfg.Postgres.Host,
				Port:     cfg.Postgres.Port,
				Database: cfg.Postgres.Database,
				User:     cfg.Postgres.User,
				Password: cfg.Postgres.Password,
				SSLMode:  cfg.Postgres.SSLMode,
				MaxConns: cfg.Postgres.PoolMaxConns,
				MinConns: cfg.Postgres.PoolMinConns,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres: %w", err)
			}
			closers = append(closers, pgClient.Close)

			if cfg.Postgres.RunMigrations {
				if err := pgClient.RunMigrations(ctx); err != nil {
					cleanup()
					return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
				}
			}

			pool := pgClient.Pool()
			deps.Ledger = postgres.NewLedger(pool)
			deps.AuditStore = postgres.NewAuditStore(pool)
			deps.Health["postgres"] = pgClient

		default:
			store, err := sqlite.Open(cfg.SQLite.Path)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
			}
			closers = append(closers, func() { _ = store.Close() })

			deps.Ledger = store.Ledger()
			deps.AuditStore = store.AuditStore()
			deps.Health["sqlite"] = store
		}
	}

	// --- Redis (optional; in-process bus and limiter otherwise) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.ChannelPrefix)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.PriceStore = redis.NewPriceStore(redisClient, 0)
		deps.Health["redis"] = redisClient
	} else {
		deps.SignalBus = memory.NewSignalBus()
		deps.RateLimiter = memory.NewRateLimiter()
	}

	// --- S3 blob storage ---
	if needsS3(cfg, mode) {
		s3Client, err := s3blob.NewClient(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Blobs = s3blob.NewStore(s3Client, cfg.S3.Bucket)
		deps.Health["s3"] = pinger(deps.Blobs.Health)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(cfg.Notify.KafkaBrokers) > 0 {
		kafkaSender := notify.NewKafkaSender(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		closers = append(closers, func() {
			if err := kafkaSender.Close(); err != nil {
				logger.Warn("wire: close kafka writer", slog.String("error", err.Error()))
			}
		})
		senders = append(senders, kafkaSender)
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Levels, logger)

	return deps, cleanup, nil
}
