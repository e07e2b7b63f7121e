package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// RateLimiter is a per-process token-bucket limiter used when Redis is not
// configured. Each key refills limit tokens per window with a burst of limit.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*keyLimiter
	lastSweep time.Time
	now       func() time.Time
}

type keyLimiter struct {
	limiter    *rate.Limiter
	limit      int
	window     time.Duration
	lastAccess time.Time
}

// NewRateLimiter returns an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*keyLimiter), now: time.Now}
}

// Allow reports whether a request for key fits under limit requests per
// window and takes a token if so.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= window {
		rl.sweep(now, window)
		rl.lastSweep = now
	}

	kl, ok := rl.limiters[key]
	if !ok || kl.limit != limit || kl.window != window {
		kl = &keyLimiter{
			limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
			limit:   limit,
			window:  window,
		}
		rl.limiters[key] = kl
	}
	kl.lastAccess = now
	return kl.limiter.AllowN(now, 1), nil
}

// sweep drops limiters idle for a full window. Their buckets have refilled,
// so a fresh limiter behaves identically.
func (rl *RateLimiter) sweep(now time.Time, window time.Duration) {
	for key, kl := range rl.limiters {
		idle := kl.window
		if idle < window {
			idle = window
		}
		if now.Sub(kl.lastAccess) >= idle {
			delete(rl.limiters, key)
		}
	}
}

// Len returns the number of keys currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
