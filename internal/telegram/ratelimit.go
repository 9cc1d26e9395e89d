package telegram

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces API calls of one account and holds them back while a
// flood wait is in force.
type RateLimiter struct {
	limiter *rate.Limiter

	mu             sync.Mutex
	floodWaitUntil time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// DefaultRateLimiter returns the conservative per-account limiter.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(2.0, 1)
}

// Wait blocks until the next request is allowed.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if remaining := r.FloodWaitRemaining(); remaining > 0 {
		t := time.NewTimer(remaining)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.limiter.Wait(ctx)
}

// SetFloodWait holds back every request for the given number of seconds.
// A shorter wait never cuts an existing one short.
func (r *RateLimiter) SetFloodWait(seconds int) {
	until := time.Now().Add(time.Duration(seconds) * time.Second)
	r.mu.Lock()
	defer r.mu.Unlock()
	if until.After(r.floodWaitUntil) {
		r.floodWaitUntil = until
	}
}

// FloodWaitRemaining returns how long requests are still held back.
func (r *RateLimiter) FloodWaitRemaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := time.Until(r.floodWaitUntil); d > 0 {
		return d
	}
	return 0
}
