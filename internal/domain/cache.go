package domain

import (
	"context"
	"time"
)

// Signal bus channels.
const (
	ChannelPrices = "prices"
	ChannelOrders = "orders"
	ChannelAlerts = "alerts"
)

// SignalBus provides fire-and-forget pub/sub between components.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter counts requests per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
