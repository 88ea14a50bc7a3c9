package reporting

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - token bucket
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter is a token bucket shared by every report request.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64 // tokens per second
	tokens      float64
	lastRefill  time.Time
	waitTimeout time.Duration

	now func() time.Time
}

// RateLimiterConfig configures the bucket.
type RateLimiterConfig struct {
	RequestsPerMinute int
	Burst             int
	// WaitTimeout caps how long Allow blocks for a token.
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig allows 30 requests per minute with a burst of 5.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerMinute: 30,
		Burst:             5,
		WaitTimeout:       10 * time.Second,
	}
}

// NewRateLimiter starts with a full bucket.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRateLimiterConfig().RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &RateLimiter{
		maxTokens:   float64(cfg.Burst),
		refillRate:  float64(cfg.RequestsPerMinute) / 60,
		tokens:      float64(cfg.Burst),
		lastRefill:  time.Now(),
		waitTimeout: cfg.WaitTimeout,
		now:         time.Now,
	}
}

// RateLimitError is returned when no token became available in time.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("report rate limit exceeded, retry after %s", e.RetryAfter)
}

// Allow blocks until a token is available, the wait timeout passes, or ctx
// is done.
func (rl *RateLimiter) Allow(ctx context.Context) error {
	deadline := rl.now().Add(rl.waitTimeout)

	for {
		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}
		if rl.now().Add(wait).After(deadline) {
			return &RateLimitError{RetryAfter: wait}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAllow takes a token without blocking.
func (rl *RateLimiter) TryAllow() bool {
	_, ok := rl.tryAcquire()
	return ok
}

func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked()
	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}
	missing := 1 - rl.tokens
	return time.Duration(missing / rl.refillRate * float64(time.Second)), false
}

func (rl *RateLimiter) refillLocked() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now
}

// RecordRateLimitHit empties the bucket after the backend answered 429.
func (rl *RateLimiter) RecordRateLimitHit() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = 0
	rl.lastRefill = rl.now()
}

// Available returns the current token count.
func (rl *RateLimiter) Available() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked()
	return rl.tokens
}
