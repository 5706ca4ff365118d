package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID_Generated(t *testing.T) {
	var fromContext string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromContext = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, fromContext)
	assert.Equal(t, fromContext, rec.Header().Get("X-Request-ID"))
	assert.Len(t, fromContext, 36)
}

func TestRequestID_Incoming(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		reused   bool
	}{
		{name: "valid", incoming: "abc-123", reused: true},
		{name: "spaces", incoming: "abc 123", reused: false},
		{name: "too long", incoming: strings.Repeat("a", 129), reused: false},
		{name: "non ascii", incoming: "réf", reused: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fromContext string
			handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fromContext = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Request-ID", tt.incoming)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if tt.reused {
				assert.Equal(t, tt.incoming, fromContext)
			} else {
				assert.NotEqual(t, tt.incoming, fromContext)
				assert.NotEmpty(t, fromContext)
			}
		})
	}
}

func TestRequestIDWithConfig(t *testing.T) {
	handler := RequestIDWithConfig(RequestIDConfig{
		HeaderName: "X-Trace",
		Generator:  func() string { return "fixed" },
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "fixed", rec.Header().Get("X-Trace"))
}

func TestGetRequestID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetRequestID(req.Context()))
}
