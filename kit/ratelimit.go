package kit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a tool exhausts its request window.
var ErrRateLimited = errors.New("kit: rate limited")

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter enforces a fixed-window request budget per tool. Buckets
// are keyed by tool name, so the map stays as small as the tool set and
// needs no background GC.
type RateLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter allows max requests per tool per window. A max of zero
// or less disables limiting.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		max:     max,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether one more request for tool fits in the current
// window.
func (rl *RateLimiter) Allow(tool string) bool {
	if rl.max <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[tool]
	if !ok || now.After(b.resetAt) {
		rl.buckets[tool] = &bucket{count: 1, resetAt: now.Add(rl.window)}
		return true
	}
	b.count++
	return b.count <= rl.max
}

// Middleware rejects requests over budget with ErrRateLimited, keyed by
// the tool name in the context.
func (rl *RateLimiter) Middleware() Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			if !rl.Allow(GetTool(ctx)) {
				return nil, ErrRateLimited
			}
			return next(ctx, req)
		}
	}
}
