package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

const subscriberBuffer = 128

// SignalBus is an in-process domain.SignalBus. Publish never blocks: a
// subscriber whose buffer is full misses the message.
type SignalBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan []byte
}

// NewSignalBus returns an empty bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[string]map[int]chan []byte)}
}

// Publish fans payload out to the current subscribers of channel.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber on channel until ctx is cancelled, at which
// point the returned channel is closed.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]chan []byte)
	}
	b.subs[channel][id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], id)
		if len(b.subs[channel]) == 0 {
			delete(b.subs, channel)
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
