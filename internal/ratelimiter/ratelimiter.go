// Package ratelimiter throttles requests with token buckets from
// golang.org/x/time/rate, either globally (RateLimiter) or per key (Keyed).
package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// unlimited stands in for a zero rate.
const unlimited = 1_000_000_000

// RateLimiter is a single token bucket.
//
// Tokens are added at requestsPerSecond; burst is the bucket capacity.
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a bucket refilled at requestsPerSecond holding at most burst
// tokens. A zero rate disables limiting.
//
// Example:
//
//	// 50 req/s sustained, bursts of 100
//	limiter := New(50, 100)
func New(requestsPerSecond, burst uint) *RateLimiter {
	return &RateLimiter{limiter: newLimiter(requestsPerSecond, burst)}
}

func newLimiter(requestsPerSecond, burst uint) *rate.Limiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
		burst = unlimited
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst))
}

// Allow consumes a token if one is available and reports whether it did.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the tokens currently in the bucket.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

// Keyed keeps one token bucket per key, e.g. per owner id, so a single
// caller exhausting its budget does not throttle the others.
//
// Buckets idle for longer than the idle TTL are dropped by Sweep; a dropped
// key starts again with a full bucket.
//
// Thread safety:
// All methods are safe for concurrent use.
type Keyed struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rps      uint
	burst    uint
	idleTTL  time.Duration
	now      func() time.Time
	disabled bool
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyed creates a per-key limiter. A zero requestsPerSecond disables
// limiting entirely and no buckets are kept.
func NewKeyed(requestsPerSecond, burst uint, idleTTL time.Duration) *Keyed {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Keyed{
		buckets:  make(map[string]*bucket),
		rps:      requestsPerSecond,
		burst:    burst,
		idleTTL:  idleTTL,
		now:      time.Now,
		disabled: requestsPerSecond == 0,
	}
}

// Allow consumes a token from key's bucket and reports whether one was
// available.
func (k *Keyed) Allow(key string) bool {
	if k.disabled {
		return true
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{limiter: newLimiter(k.rps, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle longer than the idle TTL and returns how many
// were removed.
func (k *Keyed) Sweep() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	cutoff := k.now().Add(-k.idleTTL)
	removed := 0
	for key, b := range k.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(k.buckets, key)
			removed++
		}
	}
	return removed
}

// Run sweeps idle buckets every interval until ctx is done.
func (k *Keyed) Run(ctx context.Context, interval time.Duration) {
	if k.disabled {
		return
	}
	if interval <= 0 {
		interval = k.idleTTL
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.Sweep()
		}
	}
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}
