package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

const maxPollBackoff = 30 * time.Second

// RedisFeed polls the latest prices written by an external market engine.
type RedisFeed struct {
	fetcher  PriceFetcher
	symbols  []string
	interval time.Duration
	onTick   TickHandler
	logger   *slog.Logger
}

// NewRedisFeed creates a feed polling symbols through fetcher.
func NewRedisFeed(fetcher PriceFetcher, symbols []string, interval time.Duration, onTick TickHandler, logger *slog.Logger) *RedisFeed {
	return &RedisFeed{
		fetcher:  fetcher,
		symbols:  symbols,
		interval: interval,
		onTick:   onTick,
		logger:   logger.With(slog.String("component", "redis_feed")),
	}
}

// Run polls every interval until ctx is cancelled. Fetch errors back off
// exponentially up to maxPollBackoff.
func (f *RedisFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to poll, exiting")
		return nil
	}
	f.logger.Info("redis feed started", slog.Int("symbols", len(f.symbols)))
	defer f.logger.Info("redis feed stopped")

	wait := time.Duration(0)
	backoff := f.interval
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		if err := f.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.logger.Warn("poll failed, backing off",
				slog.String("error", err.Error()),
				slog.Duration("backoff", backoff),
			)
			wait = backoff
			backoff = min(backoff*2, maxPollBackoff)
			continue
		}
		wait = f.interval
		backoff = f.interval
	}
}

func (f *RedisFeed) poll(ctx context.Context) error {
	prices, err := f.fetcher.FetchMany(ctx, f.symbols)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, sym := range f.symbols {
		v, ok := prices[sym]
		if !ok {
			continue
		}
		f.onTick(ctx, domain.PriceTick{Symbol: sym, Value: v, ObservedAt: now})
	}
	return nil
}
