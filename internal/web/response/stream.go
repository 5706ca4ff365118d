package response

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
)

// ErrClientWrite wraps failures writing to the client connection
var ErrClientWrite = errors.New("response: client write failed")

// Streamer handles streaming responses
type Streamer struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

// NewStreamer creates a new response streamer
func NewStreamer(w http.ResponseWriter) (*Streamer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &Streamer{
		writer:  w,
		flusher: flusher,
	}, nil
}

// SetAttachment sets the content type and a download file name
func SetAttachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if filename != "" {
		w.Header().Set("Content-Disposition", contentDisposition(filename))
	}
}

// contentDisposition quotes plain ASCII names and falls back to RFC 2231 encoding otherwise
func contentDisposition(filename string) string {
	for _, r := range filename {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
				return v
			}
			return "attachment"
		}
	}
	return fmt.Sprintf("attachment; filename=%q", filename)
}

// Attachment writes data as a complete download with a Content-Length
func Attachment(w http.ResponseWriter, r *http.Request, contentType, filename string, data []byte) error {
	SetAttachment(w, contentType, filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if r != nil && r.Method == http.MethodHead {
		return nil
	}
	_, err := w.Write(data)
	return err
}

// StreamReader copies reader to the client, flushing after every chunk.
// Headers must be set before the call. Failures writing to the client
// wrap ErrClientWrite; failures reading wrap the reader's error.
func (s *Streamer) StreamReader(reader io.Reader) (int64, error) {
	s.writer.WriteHeader(http.StatusOK)
	s.flusher.Flush()

	buf := make([]byte, 32*1024) // 32KB buffer
	var written int64

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			m, writeErr := s.writer.Write(buf[:n])
			written += int64(m)
			if writeErr != nil {
				return written, fmt.Errorf("%w: %w", ErrClientWrite, writeErr)
			}
			s.flusher.Flush()
		}

		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, fmt.Errorf("failed to read: %w", err)
		}
	}
}
