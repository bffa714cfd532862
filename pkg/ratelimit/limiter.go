package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter paces backend calls so timeline pagination and thread expansion
// stay under the upstream's tolerance.
type Limiter interface {
	// Allow reports whether a call may proceed right now
	Allow() bool
	// Wait blocks until a call may proceed or the context is cancelled
	Wait(ctx context.Context) error
	// Reset restores the limiter to its initial state
	Reset()
}

// TokenBucket implements a token bucket limiter with continuous refill
type TokenBucket struct {
	capacity   int
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a limiter that allows capacity calls per period,
// refilled continuously.
func NewTokenBucket(capacity int, period time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: float64(capacity) / period.Seconds(),
		lastRefill: time.Now(),
	}
}

// NewTokenBucketWithBurst creates a limiter refilled at rate calls per
// period, with a burst capacity independent of the sustained rate.
func NewTokenBucketWithBurst(rate int, period time.Duration, burst int) *TokenBucket {
	if burst <= 0 {
		burst = rate
	}
	return &TokenBucket{
		capacity:   burst,
		tokens:     float64(burst),
		refillRate: float64(rate) / period.Seconds(),
		lastRefill: time.Now(),
	}
}

// Allow consumes a token if one is available
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		tb.mu.Lock()
		// Time until the next whole token accrues.
		deficit := 1 - tb.tokens
		delay := time.Duration(deficit / tb.refillRate * float64(time.Second))
		tb.mu.Unlock()

		if delay < 10*time.Millisecond {
			delay = 10 * time.Millisecond
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Reset restores the bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = float64(tb.capacity)
	tb.lastRefill = time.Now()
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > float64(tb.capacity) {
		tb.tokens = float64(tb.capacity)
	}
	tb.lastRefill = now
}

// Unlimited returns a limiter that never blocks. Used in tests.
func Unlimited() Limiter {
	return unlimited{}
}

type unlimited struct{}

func (unlimited) Allow() bool                    { return true }
func (unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (unlimited) Reset()                         {}
