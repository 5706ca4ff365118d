package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docrender/docrender/internal/apperr"
)

// ErrorResponse is the body of every error response.
// Reference correlates the response with the server-side log entry.
type ErrorResponse struct {
	Error     string `json:"error"`
	Reference string `json:"reference"`
}

// RenderJSON writes v as a JSON response with the given status
func RenderJSON(w http.ResponseWriter, status int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}

// RenderError renders a generic error body for kind and returns its reference
func RenderError(w http.ResponseWriter, kind apperr.Kind) string {
	ref := uuid.New().String()
	body := ErrorResponse{Error: kind.PublicMessage(), Reference: ref}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if kind == apperr.KindRateLimited && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(kind.Status())
	_ = json.NewEncoder(w).Encode(body)
	return ref
}

// RenderAppError logs err with a fresh reference and renders the public message for its kind.
// Details of err never reach the client.
func RenderAppError(w http.ResponseWriter, logger *zap.Logger, err error) string {
	kind := apperr.KindOf(err)
	ref := RenderError(w, kind)

	if logger == nil {
		return ref
	}
	fields := []zap.Field{
		zap.String("reference", ref),
		zap.String("kind", kind.String()),
		zap.Int("status", kind.Status()),
		zap.Error(err),
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) && len(appErr.Diagnostics) > 0 {
		fields = append(fields, zap.Strings("diagnostics", appErr.Diagnostics))
	}
	if kind.Status() >= http.StatusInternalServerError {
		logger.Error("request failed", fields...)
	} else {
		logger.Warn("request failed", fields...)
	}
	return ref
}
