// Package ratelimit limits request rates per client key, in memory or through Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter defines the interface for rate limiting implementations
type RateLimiter interface {
	// Allow checks if a request should be allowed for the given key
	Allow(ctx context.Context, key string) (*RateLimitInfo, error)
	// Close releases background resources
	Close() error
}

// RateLimitInfo contains information about the current rate limit state
type RateLimitInfo struct {
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Remaining is the number of requests remaining in the current window
	Remaining int
	// ResetAt is when the next request will be allowed again
	ResetAt time.Time
	// Allowed indicates whether the request should be allowed
	Allowed bool
}

// Config selects and sizes a limiter
type Config struct {
	Enabled bool `mapstructure:"enabled"`
	// Capacity is the number of requests allowed per window
	Capacity int `mapstructure:"capacity"`
	// Window is the period over which Capacity applies
	Window time.Duration `mapstructure:"window"`
	// RedisAddr switches to the shared Redis limiter when set
	RedisAddr string `mapstructure:"redis_addr"`
	// Prefix namespaces Redis keys
	Prefix string `mapstructure:"prefix"`
}

// DefaultConfig returns a disabled limiter allowing 60 requests per minute per client
func DefaultConfig() Config {
	return Config{
		Capacity: 60,
		Window:   time.Minute,
		Prefix:   "docrender:ratelimit:",
	}
}

// New builds the limiter described by cfg. With a Redis address the
// limiter is shared across instances; otherwise it is per process.
func New(ctx context.Context, cfg Config) (RateLimiter, error) {
	if cfg.Capacity <= 0 {
		return nil, errors.New("capacity must be greater than 0")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}

	if cfg.RedisAddr == "" {
		return NewTokenBucketWithConfig(TokenBucketConfig{
			Capacity:        cfg.Capacity,
			RefillRate:      cfg.Window,
			CleanupInterval: 5 * cfg.Window,
		}), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return NewRedisRateLimiter(RedisRateLimiterConfig{
		Client:     client,
		Limit:      cfg.Capacity,
		Window:     cfg.Window,
		Prefix:     cfg.Prefix,
		OwnsClient: true,
	})
}
