package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// TokenBucket implements an in-memory token bucket rate limiter.
// Tokens refill continuously at Capacity per RefillRate.
type TokenBucket struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int
	refillRate time.Duration
	now        func() time.Time

	cleanup   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// bucket represents a single token bucket for a key
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// TokenBucketConfig holds configuration for the token bucket rate limiter
type TokenBucketConfig struct {
	// Capacity is the maximum number of tokens in the bucket
	Capacity int
	// RefillRate is the time it takes to refill an empty bucket
	RefillRate time.Duration
	// CleanupInterval is how often to drop idle buckets; zero disables cleanup
	CleanupInterval time.Duration
	// Clock overrides time.Now
	Clock func() time.Time
}

// NewTokenBucketWithConfig creates a new token bucket rate limiter
func NewTokenBucketWithConfig(config TokenBucketConfig) *TokenBucket {
	if config.Capacity <= 0 {
		config.Capacity = 1
	}
	if config.RefillRate <= 0 {
		config.RefillRate = time.Minute
	}
	tb := &TokenBucket{
		buckets:    make(map[string]*bucket),
		capacity:   config.Capacity,
		refillRate: config.RefillRate,
		now:        config.Clock,
		done:       make(chan struct{}),
	}
	if tb.now == nil {
		tb.now = time.Now
	}

	if config.CleanupInterval > 0 {
		tb.cleanup = time.NewTicker(config.CleanupInterval)
		go tb.cleanupLoop()
	}

	return tb
}

// perToken is the time needed to refill one token
func (tb *TokenBucket) perToken() time.Duration {
	return tb.refillRate / time.Duration(tb.capacity)
}

// Allow takes one token for key if one is available
func (tb *TokenBucket) Allow(_ context.Context, key string) (*RateLimitInfo, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(tb.capacity), lastRefill: now}
		tb.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens = math.Min(float64(tb.capacity), b.tokens+elapsed.Seconds()/tb.perToken().Seconds())
		b.lastRefill = now
	}

	info := &RateLimitInfo{Limit: tb.capacity}
	if b.tokens >= 1 {
		b.tokens--
		info.Allowed = true
	}
	info.Remaining = int(math.Floor(b.tokens))
	if b.tokens >= 1 {
		info.ResetAt = now
	} else {
		missing := 1 - b.tokens
		info.ResetAt = now.Add(time.Duration(missing * float64(tb.perToken())))
	}
	return info, nil
}

// cleanupLoop removes buckets that have been idle long enough to be full again
func (tb *TokenBucket) cleanupLoop() {
	for {
		select {
		case <-tb.cleanup.C:
			tb.cleanupIdle()
		case <-tb.done:
			return
		}
	}
}

func (tb *TokenBucket) cleanupIdle() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	for key, b := range tb.buckets {
		if now.Sub(b.lastRefill) > tb.refillRate {
			delete(tb.buckets, key)
		}
	}
}

// Len returns the number of tracked keys
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

// Close stops the cleanup goroutine
func (tb *TokenBucket) Close() error {
	tb.closeOnce.Do(func() {
		close(tb.done)
		if tb.cleanup != nil {
			tb.cleanup.Stop()
		}
	})
	return nil
}
