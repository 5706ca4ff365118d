package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_Status(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected int
	}{
		{KindTemplateNotFound, http.StatusNotFound},
		{KindInputSerialization, http.StatusBadRequest},
		{KindCompilation, http.StatusBadRequest},
		{KindConnectionClosed, http.StatusBadRequest},
		{KindExport, http.StatusInternalServerError},
		{KindTaskJoin, http.StatusInternalServerError},
		{KindArchive, http.StatusInternalServerError},
		{KindIO, http.StatusInternalServerError},
		{KindPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindTimeout, http.StatusGatewayTimeout},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.Status())
		})
	}
}

func TestKind_PublicMessage(t *testing.T) {
	assert.Equal(t, "Requested template not found", KindTemplateNotFound.PublicMessage())
	assert.Equal(t, "Document compilation failed", KindCompilation.PublicMessage())
	assert.Equal(t, "Invalid request payload", KindInputSerialization.PublicMessage())
	assert.Equal(t, "PDF export failed", KindExport.PublicMessage())
	assert.Equal(t, "Document rendering timed out", KindTimeout.PublicMessage())
}

func TestError_Message(t *testing.T) {
	err := New(KindCompilation, "typeset.compile", "example.star", errors.New("boom")).
		WithDiagnostics("example.star:3:1: key \"name\" not in dict")

	msg := err.Error()
	assert.Contains(t, msg, "typeset.compile")
	assert.Contains(t, msg, "compilation")
	assert.Contains(t, msg, `"example.star"`)
	assert.Contains(t, msg, "boom")
	assert.Contains(t, msg, `key "name" not in dict`)
}

func TestKindOf_Wrapped(t *testing.T) {
	base := TemplateNotFound("missing.star")
	wrapped := fmt.Errorf("batch: %w", base)

	assert.Equal(t, KindTemplateNotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindTemplateNotFound))
	assert.False(t, Is(wrapped, KindCompilation))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindInternal))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("disk on fire")
	err := New(KindIO, "assets.collect", "a.bin", cause)

	assert.ErrorIs(t, err, cause)
}
