package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTokenBucket_Allow_FirstRequest(t *testing.T) {
	tb := NewTokenBucketWithConfig(TokenBucketConfig{Capacity: 10, RefillRate: time.Minute})
	defer tb.Close()

	info, err := tb.Allow(context.Background(), "test-key")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
	assert.Equal(t, 10, info.Limit)
	assert.Equal(t, 9, info.Remaining)
}

func TestTokenBucket_Allow_ExceedLimit(t *testing.T) {
	clock := newManualClock()
	tb := NewTokenBucketWithConfig(TokenBucketConfig{Capacity: 3, RefillRate: time.Minute, Clock: clock.Now})
	defer tb.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info, err := tb.Allow(ctx, "test-key")
		require.NoError(t, err)
		assert.True(t, info.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 3-i-1, info.Remaining)
	}

	info, err := tb.Allow(ctx, "test-key")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	assert.Equal(t, 0, info.Remaining)
	// one token every 20s
	assert.Equal(t, clock.Now().Add(20*time.Second), info.ResetAt)
}

func TestTokenBucket_Refill(t *testing.T) {
	clock := newManualClock()
	tb := NewTokenBucketWithConfig(TokenBucketConfig{Capacity: 2, RefillRate: time.Minute, Clock: clock.Now})
	defer tb.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := tb.Allow(ctx, "k")
		require.NoError(t, err)
	}
	info, _ := tb.Allow(ctx, "k")
	assert.False(t, info.Allowed)

	clock.Advance(29 * time.Second)
	info, _ = tb.Allow(ctx, "k")
	assert.False(t, info.Allowed, "half a minute refills less than one token")

	clock.Advance(2 * time.Second)
	info, _ = tb.Allow(ctx, "k")
	assert.True(t, info.Allowed)

	clock.Advance(10 * time.Minute)
	info, _ = tb.Allow(ctx, "k")
	assert.True(t, info.Allowed)
	assert.Equal(t, 1, info.Remaining, "refill is capped at capacity")
}

func TestTokenBucket_DifferentKeys(t *testing.T) {
	tb := NewTokenBucketWithConfig(TokenBucketConfig{Capacity: 1, RefillRate: time.Hour})
	defer tb.Close()
	ctx := context.Background()

	info, _ := tb.Allow(ctx, "a")
	assert.True(t, info.Allowed)
	info, _ = tb.Allow(ctx, "a")
	assert.False(t, info.Allowed)
	info, _ = tb.Allow(ctx, "b")
	assert.True(t, info.Allowed)
	assert.Equal(t, 2, tb.Len())
}

func TestTokenBucket_CleanupIdle(t *testing.T) {
	clock := newManualClock()
	tb := NewTokenBucketWithConfig(TokenBucketConfig{Capacity: 5, RefillRate: time.Minute, Clock: clock.Now})
	defer tb.Close()

	_, _ = tb.Allow(context.Background(), "idle")
	clock.Advance(2 * time.Minute)
	tb.cleanupIdle()
	assert.Equal(t, 0, tb.Len())
}

func TestTokenBucket_Concurrent(t *testing.T) {
	tb := NewTokenBucketWithConfig(TokenBucketConfig{Capacity: 50, RefillRate: time.Hour})
	defer tb.Close()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, err := tb.Allow(context.Background(), "shared")
			assert.NoError(t, err)
			if info.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestTokenBucket_CloseTwice(t *testing.T) {
	tb := NewTokenBucketWithConfig(TokenBucketConfig{Capacity: 1, RefillRate: time.Minute, CleanupInterval: time.Hour})
	assert.NoError(t, tb.Close())
	assert.NoError(t, tb.Close())
}

func TestNew_SelectsBackend(t *testing.T) {
	limiter, err := New(context.Background(), Config{Capacity: 5, Window: time.Minute})
	require.NoError(t, err)
	defer limiter.Close()
	assert.IsType(t, &TokenBucket{}, limiter)

	_, err = New(context.Background(), Config{Capacity: 0, Window: time.Minute})
	assert.Error(t, err)
	_, err = New(context.Background(), Config{Capacity: 1})
	assert.Error(t, err)
}
