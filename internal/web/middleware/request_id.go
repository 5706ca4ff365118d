// Package middleware provides the HTTP middleware stack of the render service.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs
	RequestIDKey ContextKey = "request_id"

	maxRequestIDLength = 128
)

// RequestIDConfig holds configuration for the request ID middleware
type RequestIDConfig struct {
	// HeaderName is the name of the header to read/write the request ID
	HeaderName string
	// Generator is a custom function to generate request IDs
	Generator func() string
}

// DefaultRequestIDConfig returns the default request ID configuration
func DefaultRequestIDConfig() RequestIDConfig {
	return RequestIDConfig{
		HeaderName: "X-Request-ID",
		Generator:  defaultRequestIDGenerator,
	}
}

// RequestID creates a middleware that adds a unique request ID to each request
func RequestID() Middleware {
	return RequestIDWithConfig(DefaultRequestIDConfig())
}

// RequestIDWithConfig creates a request ID middleware with custom configuration.
// Incoming IDs are reused only when they are short printable ASCII.
func RequestIDWithConfig(config RequestIDConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(config.HeaderName)
			if !validRequestID(requestID) {
				requestID = config.Generator()
			}

			r = r.WithContext(context.WithValue(r.Context(), RequestIDKey, requestID))
			w.Header().Set(config.HeaderName, requestID)

			next.ServeHTTP(w, r)
		})
	}
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// defaultRequestIDGenerator generates a UUID v4 request ID
func defaultRequestIDGenerator() string {
	return uuid.New().String()
}
