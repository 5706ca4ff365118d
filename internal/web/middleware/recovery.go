package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/docrender/docrender/internal/apperr"
	"github.com/docrender/docrender/internal/web/response"
)

// RecoveryConfig holds configuration for the recovery middleware
type RecoveryConfig struct {
	Logger *zap.Logger
	// EnableStackTrace determines whether to log stack traces
	EnableStackTrace bool
}

// Recovery turns handler panics into a generic 500 response with a logged reference
func Recovery(logger *zap.Logger) Middleware {
	return RecoveryWithConfig(RecoveryConfig{Logger: logger, EnableStackTrace: true})
}

// RecoveryWithConfig creates a recovery middleware with custom configuration
func RecoveryWithConfig(config RecoveryConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					// the server suppresses the stack for this sentinel
					panic(p)
				}

				ref := response.RenderError(w, apperr.KindInternal)

				logger := LoggerFrom(r.Context(), config.Logger)
				fields := []zap.Field{
					zap.String("reference", ref),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(panicError(p)),
				}
				if config.EnableStackTrace {
					fields = append(fields, zap.ByteString("stack", debug.Stack()))
				}
				logger.Error("panic recovered", fields...)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// panicError wraps a panic value as an error
func panicError(p any) error {
	if err, ok := p.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", p)
}
