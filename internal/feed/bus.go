package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// priceEvent is the JSON shape published on the "prices" channel by
// PriceService.
type priceEvent struct {
	Event     string  `json:"event"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// BusFeed consumes price_update events published by another process, usually
// a riskdesk instance running in feed mode.
type BusFeed struct {
	bus    domain.SignalBus
	onTick TickHandler
	logger *slog.Logger
}

// NewBusFeed creates a BusFeed. onTick must not publish back onto bus.
func NewBusFeed(bus domain.SignalBus, onTick TickHandler, logger *slog.Logger) *BusFeed {
	return &BusFeed{
		bus:    bus,
		onTick: onTick,
		logger: logger.With(slog.String("component", "bus_feed")),
	}
}

// Run subscribes to "prices" and forwards each event until ctx is cancelled.
func (f *BusFeed) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, domain.ChannelPrices)
	if err != nil {
		return err
	}
	f.logger.Info("bus feed started")
	defer f.logger.Info("bus feed stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			tick, ok, err := decodeTick(data)
			if err != nil {
				f.logger.Debug("bus feed decode failed",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
				continue
			}
			if ok {
				f.onTick(ctx, tick)
			}
		}
	}
}

func decodeTick(data []byte) (domain.PriceTick, bool, error) {
	var ev priceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.PriceTick{}, false, err
	}
	sym := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if ev.Event != "price_update" || sym == "" || ev.Price <= 0 {
		return domain.PriceTick{}, false, nil
	}
	ts := time.Now().UTC()
	if ev.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, ev.Timestamp); err == nil {
			ts = t
		}
	}
	return domain.PriceTick{
		Symbol:     sym,
		Value:      decimal.NewFromFloat(ev.Price),
		ObservedAt: ts,
	}, true, nil
}
