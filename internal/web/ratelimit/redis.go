package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, then admits the request if there is room.
// Scores are unix milliseconds; members are unique so requests in the same millisecond all count.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local current = redis.call('ZCARD', key)
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local oldest_score = now
	if #oldest == 2 then
		oldest_score = tonumber(oldest[2])
	end

	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window_ms)
		return {1, current + 1, tostring(oldest_score)}
	end
	return {0, current, tostring(oldest_score)}
`)

// RedisRateLimiter implements a Redis-backed sliding window rate limiter
// shared by every instance pointing at the same server
type RedisRateLimiter struct {
	client     *redis.Client
	limit      int
	window     time.Duration
	prefix     string
	ownsClient bool
	now        func() time.Time
}

// RedisRateLimiterConfig holds configuration for the Redis rate limiter
type RedisRateLimiterConfig struct {
	// Client is the Redis client to use
	Client *redis.Client
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Window is the time window for rate limiting
	Window time.Duration
	// Prefix is the key prefix for Redis keys
	Prefix string
	// OwnsClient closes Client on Close
	OwnsClient bool
	// Clock overrides time.Now
	Clock func() time.Time
}

// NewRedisRateLimiter creates a new Redis rate limiter
func NewRedisRateLimiter(config RedisRateLimiterConfig) (*RedisRateLimiter, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	if config.Window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}
	now := config.Clock
	if now == nil {
		now = time.Now
	}

	return &RedisRateLimiter{
		client:     config.Client,
		limit:      config.Limit,
		window:     config.Window,
		prefix:     config.Prefix,
		ownsClient: config.OwnsClient,
		now:        now,
	}, nil
}

// Allow records the request for key if the window has room
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (*RateLimitInfo, error) {
	now := r.now()
	windowStart := now.Add(-r.window)

	result, err := slidingWindow.Run(ctx, r.client, []string{r.prefix + key},
		now.UnixMilli(),
		windowStart.UnixMilli(),
		r.limit,
		r.window.Milliseconds(),
		uuid.New().String(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	if len(result) != 3 {
		return nil, errors.New("unexpected redis script result")
	}

	allowed, ok := result[0].(int64)
	if !ok {
		return nil, errors.New("invalid allowed value from redis")
	}
	count, ok := result[1].(int64)
	if !ok {
		return nil, errors.New("invalid count value from redis")
	}
	oldest := now
	if s, ok := result[2].(string); ok {
		var ms int64
		if _, err := fmt.Sscan(s, &ms); err == nil {
			oldest = time.UnixMilli(ms).In(now.Location())
		}
	}

	remaining := r.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	info := &RateLimitInfo{
		Limit:     r.limit,
		Remaining: remaining,
		Allowed:   allowed == 1,
		ResetAt:   now,
	}
	if remaining == 0 {
		// a slot frees up once the oldest request leaves the window
		info.ResetAt = oldest.Add(r.window)
	}
	return info, nil
}

// Reset removes all rate limit data for the given key
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Count returns the number of requests for key inside the current window
func (r *RedisRateLimiter) Count(ctx context.Context, key string) (int, error) {
	redisKey := r.prefix + key
	windowStart := r.now().Add(-r.window)

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%d", windowStart.UnixMilli()))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to get count: %w", err)
	}
	return int(countCmd.Val()), nil
}

// Close closes the Redis client when the limiter created it
func (r *RedisRateLimiter) Close() error {
	if r.ownsClient {
		return r.client.Close()
	}
	return nil
}
