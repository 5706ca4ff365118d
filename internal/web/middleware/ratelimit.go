package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docrender/docrender/internal/apperr"
	"github.com/docrender/docrender/internal/web/ratelimit"
	"github.com/docrender/docrender/internal/web/response"
)

// RateLimitConfig holds configuration for rate limiting middleware
type RateLimitConfig struct {
	// Limiter is the rate limiter implementation to use
	Limiter ratelimit.RateLimiter
	// KeyFunc extracts the rate limit key from the request
	KeyFunc RateLimitKeyFunc
	// BypassFunc determines if rate limiting should be skipped for a request
	BypassFunc RateLimitBypassFunc
	// FailOpen lets requests through when the limiter itself fails
	FailOpen bool
	Logger   *zap.Logger
	// Now overrides time.Now for Retry-After
	Now func() time.Time
}

// RateLimitKeyFunc extracts a rate limit key from a request
type RateLimitKeyFunc func(*http.Request) string

// RateLimitBypassFunc determines if rate limiting should be bypassed
type RateLimitBypassFunc func(*http.Request) bool

// RateLimit limits requests per client IP; limiter failures let the request through
func RateLimit(limiter ratelimit.RateLimiter, logger *zap.Logger) Middleware {
	return RateLimitWithConfig(RateLimitConfig{
		Limiter:  limiter,
		KeyFunc:  IPKeyFunc,
		FailOpen: true,
		Logger:   logger,
	})
}

// RateLimitWithConfig creates a rate limiting middleware with custom configuration
func RateLimitWithConfig(config RateLimitConfig) Middleware {
	if config.KeyFunc == nil {
		config.KeyFunc = IPKeyFunc
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.BypassFunc != nil && config.BypassFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := config.KeyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			info, err := config.Limiter.Allow(r.Context(), key)
			if err != nil {
				logger := LoggerFrom(r.Context(), config.Logger)
				if config.FailOpen {
					logger.Warn("rate limiter unavailable, allowing request", zap.Error(err))
					next.ServeHTTP(w, r)
					return
				}
				response.RenderAppError(w, logger, apperr.New(apperr.KindInternal, "ratelimit.allow", key, err))
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !info.Allowed {
				retryAfter := int64(info.ResetAt.Sub(config.Now()).Seconds() + 0.999)
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				response.RenderAppError(w, LoggerFrom(r.Context(), config.Logger),
					apperr.New(apperr.KindRateLimited, "ratelimit.allow", key, nil))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc extracts the client IP address from the request.
// X-Forwarded-For and X-Real-IP win over RemoteAddr.
func IPKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// PathBypassFunc skips rate limiting for the listed paths
func PathBypassFunc(paths ...string) RateLimitBypassFunc {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}
