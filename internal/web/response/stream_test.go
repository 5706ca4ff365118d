package response

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamer_StreamReader(t *testing.T) {
	w := httptest.NewRecorder()
	streamer, err := NewStreamer(w)
	require.NoError(t, err)

	SetAttachment(w, "application/zip", "rendered-pdfs.zip")
	payload := bytes.Repeat([]byte("zip"), 40_000)
	n, err := streamer.StreamReader(bytes.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, w.Body.Bytes())
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="rendered-pdfs.zip"`, w.Header().Get("Content-Disposition"))
	assert.True(t, w.Flushed)
}

func TestStreamer_ReadError(t *testing.T) {
	w := httptest.NewRecorder()
	streamer, err := NewStreamer(w)
	require.NoError(t, err)

	boom := errors.New("producer failed")
	_, err = streamer.StreamReader(io.MultiReader(strings.NewReader("head"), errReader{boom}))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrClientWrite)
	assert.Equal(t, "head", w.Body.String())
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

type brokenWriter struct {
	header http.Header
}

func (b *brokenWriter) Header() http.Header { return b.header }
func (b *brokenWriter) WriteHeader(int) {}
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }
func (b *brokenWriter) Flush() {}

func TestStreamer_WriteError(t *testing.T) {
	streamer, err := NewStreamer(&brokenWriter{header: http.Header{}})
	require.NoError(t, err)

	_, err = streamer.StreamReader(strings.NewReader("data"))
	assert.ErrorIs(t, err, ErrClientWrite)
}

type plainWriter struct{ http.ResponseWriter }

func TestNewStreamer_RequiresFlusher(t *testing.T) {
	_, err := NewStreamer(plainWriter{httptest.NewRecorder()})
	assert.Error(t, err)
}

func TestAttachment(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/render-pdf/example.star/out.pdf", nil)
	require.NoError(t, Attachment(w, r, "application/pdf", "out.pdf", []byte("%PDF-1.3")))

	assert.Equal(t, "8", w.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename="out.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.3", w.Body.String())
}

func TestAttachment_Head(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodHead, "/render-pdf/example.star/out.pdf", nil)
	require.NoError(t, Attachment(w, r, "application/pdf", "out.pdf", []byte("%PDF-1.3")))

	assert.Equal(t, "8", w.Header().Get("Content-Length"))
	assert.Empty(t, w.Body.Bytes())
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="a b.pdf"`, contentDisposition("a b.pdf"))
	assert.Equal(t, `attachment; filename*=utf-8''r%C3%A9sum%C3%A9.pdf`, contentDisposition("résumé.pdf"))
}
