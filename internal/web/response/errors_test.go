package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/docrender/docrender/internal/apperr"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestRenderAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "template not found",
			err:        apperr.TemplateNotFound("missing.star"),
			wantStatus: http.StatusNotFound,
			wantBody:   "Requested template not found",
		},
		{
			name:       "compilation",
			err:        apperr.New(apperr.KindCompilation, "render.compile", "example.star", errors.New("key \"list\" not in dict")),
			wantStatus: http.StatusBadRequest,
			wantBody:   "Document compilation failed",
		},
		{
			name:       "export",
			err:        apperr.New(apperr.KindExport, "render.export", "example.star", errors.New("font table broken")),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "PDF export failed",
		},
		{
			name:       "plain error",
			err:        errors.New("unexpected"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Internal server error",
		},
		{
			name:       "payload too large",
			err:        apperr.New(apperr.KindPayloadTooLarge, "api.decode", "", nil),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantBody:   "Request payload too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ref := RenderAppError(w, zap.NewNop(), tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			body := decodeError(t, w)
			assert.Equal(t, tt.wantBody, body.Error)
			assert.Equal(t, ref, body.Reference)
			assert.Len(t, body.Reference, 36)
		})
	}
}

func TestRenderAppError_DetailsOnlyLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	err := apperr.New(apperr.KindCompilation, "render.compile", "example.star", errors.New("secret detail")).
		WithDiagnostics("example.star:3:7: error: key \"list\" not in dict")

	w := httptest.NewRecorder()
	ref := RenderAppError(w, zap.New(core), err)

	assert.NotContains(t, w.Body.String(), "secret detail")
	assert.NotContains(t, w.Body.String(), "example.star")

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, ref, fields["reference"])
	assert.Equal(t, "compilation", fields["kind"])
	assert.Contains(t, fields["error"], "secret detail")
}

func TestRenderAppError_ServerErrorsLogAtError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	RenderAppError(httptest.NewRecorder(), zap.New(core), apperr.New(apperr.KindTaskJoin, "batch.unit", "", nil))

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestRenderError_RateLimited(t *testing.T) {
	w := httptest.NewRecorder()
	RenderError(w, apperr.KindRateLimited)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "Rate limit exceeded", decodeError(t, w).Error)
}

func TestRenderJSON(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, RenderJSON(w, http.StatusOK, map[string]int{"templates": 3}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"templates":3}`, w.Body.String())

	err := RenderJSON(httptest.NewRecorder(), http.StatusOK, make(chan int))
	assert.Error(t, err)
}
