package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/riskdesk/internal/domain"
	"github.com/alanyoungcy/riskdesk/internal/metrics"
)

// PriceService writes feed ticks into the price cache and fans them out on
// the signal bus.
type PriceService struct {
	cache   domain.PriceCache
	bus     domain.SignalBus
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPriceService creates a PriceService with all required dependencies.
func NewPriceService(
	cache domain.PriceCache,
	bus domain.SignalBus,
	m *metrics.Metrics,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		cache:   cache,
		bus:     bus,
		metrics: m,
		logger:  logger,
	}
}

// Store writes tick to the cache without publishing it. Non-positive prices
// are dropped.
func (s *PriceService) Store(ctx context.Context, tick domain.PriceTick) {
	s.store(ctx, tick)
}

// HandleTick stores tick and publishes a price_update event.
func (s *PriceService) HandleTick(ctx context.Context, tick domain.PriceTick) {
	tick, ok := s.store(ctx, tick)
	if !ok {
		return
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     "price_update",
		"symbol":    tick.Symbol,
		"price":     tick.Value.InexactFloat64(),
		"timestamp": tick.ObservedAt.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, domain.ChannelPrices, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "price_service: publish price update failed",
			slog.String("symbol", tick.Symbol),
			slog.String("error", pubErr.Error()),
		)
	}
}

func (s *PriceService) store(ctx context.Context, tick domain.PriceTick) (domain.PriceTick, bool) {
	if tick.Symbol == "" || !tick.Value.IsPositive() {
		s.logger.WarnContext(ctx, "price_service: dropping invalid tick",
			slog.String("symbol", tick.Symbol),
			slog.String("price", tick.Value.String()),
		)
		return tick, false
	}
	if tick.ObservedAt.IsZero() {
		tick.ObservedAt = time.Now().UTC()
	}
	s.cache.Set(tick.Symbol, tick.Value, tick.ObservedAt)
	s.metrics.PriceTick()
	return tick, true
}

// Prices returns the cached prices sorted by symbol.
func (s *PriceService) Prices() []domain.Price {
	snap := s.cache.Snapshot()
	out := make([]domain.Price, 0, len(snap))
	for _, p := range snap {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
