package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/riskdesk/internal/blob/s3"
	"github.com/alanyoungcy/riskdesk/internal/feed"
	"github.com/alanyoungcy/riskdesk/internal/notify"
	"github.com/alanyoungcy/riskdesk/internal/server"
	"github.com/alanyoungcy/riskdesk/internal/server/handler"
	"github.com/alanyoungcy/riskdesk/internal/server/ws"
	"github.com/alanyoungcy/riskdesk/internal/service"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// ServeMode runs the price feed, alert dispatcher, risk monitor, optional
// order archiver and the HTTP + WebSocket API until ctx is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode",
		slog.String("feed", a.cfg.Feed.Source),
		slog.String("storage", a.cfg.Storage.Driver),
	)

	g, ctx := errgroup.WithContext(ctx)

	dispatcher := notify.NewAlertDispatcher(deps.SignalBus, deps.Notifier, a.cfg.Notify.BufferSize, deps.Metrics, a.root)
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	positions := service.NewPositionService(deps.Ledger, service.PositionConfig{
		AutoCreate:     a.cfg.Accounts.AutoCreate,
		DefaultBalance: decimal.NewFromFloat(a.cfg.Accounts.DefaultBalance),
	}, deps.Metrics, a.root.With(slog.String("component", "positions")))

	n, err := positions.Preload(ctx)
	if err != nil {
		return fmt.Errorf("app: preload accounts: %w", err)
	}
	a.logger.InfoContext(ctx, "accounts loaded", slog.Int("count", n))

	riskSvc := service.NewRiskService(positions, deps.PriceCache, dispatcher, service.RiskConfig{
		SnapshotTTL:        a.cfg.Risk.SnapshotTTL.Duration,
		MonitorInterval:    a.cfg.Risk.MonitorInterval.Duration,
		MonitorConcurrency: a.cfg.Risk.MonitorConcurrency,
	}, deps.Metrics, a.root.With(slog.String("component", "risk")))
	tradeSvc := service.NewTradeService(positions, deps.PriceCache, riskSvc, deps.SignalBus, deps.AuditStore,
		deps.Metrics, a.root.With(slog.String("component", "trade")))
	activitySvc := service.NewActivityService(deps.Ledger, a.root.With(slog.String("component", "activity")))
	portfolioSvc := service.NewPortfolioService(positions, deps.PriceCache)
	priceSvc := service.NewPriceService(deps.PriceCache, deps.SignalBus, deps.Metrics,
		a.root.With(slog.String("component", "prices")))

	if err := a.startFeed(ctx, g, deps, priceSvc); err != nil {
		return err
	}

	if a.cfg.Risk.MonitorInterval.Duration > 0 {
		g.Go(func() error {
			return riskSvc.Monitor(ctx)
		})
	}

	if a.cfg.Archive.Enabled && deps.Blobs != nil {
		archiver := s3blob.NewOrderArchiver(deps.Ledger, deps.Blobs, deps.AuditStore, a.cfg.Archive.Prefix, deps.Metrics, a.root)
		g.Go(func() error {
			return archiver.Run(ctx, a.cfg.Archive.Interval.Duration, a.retention())
		})
	}

	if a.cfg.Server.Enabled {
		hub := ws.NewHub(deps.SignalBus, a.cfg.Server.CORSOrigins, deps.Metrics, a.root.With(slog.String("component", "ws")))
		g.Go(func() error {
			return hub.Run(ctx)
		})

		httpLogger := a.root.With(slog.String("component", "http"))
		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		}, server.Handlers{
			Health:   handler.NewHealthHandler(deps.Health, httpLogger),
			Trade:    handler.NewTradeHandler(tradeSvc, deps.Ledger, httpLogger),
			Activity: handler.NewActivityHandler(activitySvc, httpLogger),
			Risk:     handler.NewRiskHandler(riskSvc, httpLogger),
			Accounts: handler.NewAccountHandler(positions, portfolioSvc, httpLogger),
			Prices:   handler.NewPriceHandler(priceSvc, httpLogger),
		}, hub, deps.RateLimiter, deps.Metrics, httpLogger)

		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	return g.Wait()
}

// FeedMode runs only the simulated market and publishes its ticks on the
// signal bus (and to Redis price keys when mirroring) for other processes.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting feed mode",
		slog.Int("symbols", len(a.cfg.Feed.Symbols)),
		slog.Bool("mirror_to_redis", a.cfg.Feed.MirrorToRedis),
	)

	g, ctx := errgroup.WithContext(ctx)
	priceSvc := service.NewPriceService(deps.PriceCache, deps.SignalBus, deps.Metrics,
		a.root.With(slog.String("component", "prices")))
	if err := a.startFeed(ctx, g, deps, priceSvc); err != nil {
		return err
	}
	return g.Wait()
}

// ArchiveMode uploads every order older than the retention window once and
// exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	archiver := s3blob.NewOrderArchiver(deps.Ledger, deps.Blobs, deps.AuditStore, a.cfg.Archive.Prefix, deps.Metrics, a.root)
	cutoff := time.Now().UTC().Add(-a.retention()).Truncate(24 * time.Hour)

	a.logger.InfoContext(ctx, "starting archive run", slog.Time("before", cutoff))
	n, err := archiver.ArchiveOrders(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive orders: %w", err)
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("orders", n))
	return nil
}

// startFeed launches the configured price source.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies, prices *service.PriceService) error {
	interval := a.cfg.Feed.Interval.Duration

	switch a.cfg.Feed.Source {
	case "redis":
		f := feed.NewRedisFeed(deps.PriceStore, a.cfg.Feed.Symbols, interval, prices.HandleTick, a.root)
		g.Go(func() error {
			return f.Run(ctx)
		})

	case "bus":
		// Ticks arrive already published; only the local cache is updated.
		f := feed.NewBusFeed(deps.SignalBus, prices.Store, a.root)
		g.Go(func() error {
			return f.Run(ctx)
		})

	default:
		initial := make([]decimal.Decimal, len(a.cfg.Feed.InitialPrices))
		for i, p := range a.cfg.Feed.InitialPrices {
			initial[i] = decimal.NewFromFloat(p)
		}
		var mirror feed.PriceMirror
		if a.cfg.Feed.MirrorToRedis && deps.PriceStore != nil {
			mirror = deps.PriceStore
		}
		f, err := feed.NewSimulatedFeed(feed.SimulatedConfig{
			Symbols:       a.cfg.Feed.Symbols,
			InitialPrices: initial,
			Interval:      interval,
			MaxStep:       decimal.NewFromFloat(a.cfg.Feed.MaxStep),
			Floor:         decimal.NewFromFloat(a.cfg.Feed.Floor),
		}, prices.HandleTick, mirror, a.root)
		if err != nil {
			return fmt.Errorf("app: simulated feed: %w", err)
		}
		g.Go(func() error {
			return f.Run(ctx)
		})
	}
	return nil
}

func (a *App) retention() time.Duration {
	return time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
}
