// Package archive streams zip archives through a bounded in-memory pipe.
package archive

import (
	"errors"
	"io"
	"sync"
)

// DefaultPipeCapacity is the pipe buffer size used when none is configured
const DefaultPipeCapacity = 16 * 1024

var (
	// ErrConnectionClosed is returned to the producer once the consumer has gone away
	ErrConnectionClosed = errors.New("archive: connection closed")
	// ErrArchiveClosed is returned for writes after Finish
	ErrArchiveClosed = errors.New("archive: archive closed")
)

// pipe is a fixed-capacity ring buffer shared by one reader and one writer
type pipe struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf   []byte
	start int
	size  int

	// rerr is reported to the writer once the reader closes
	rerr error
	// werr is reported to the reader after the buffer drains
	werr error
}

// NewPipe creates a pipe holding at most capacity bytes.
// Writes block while the buffer is full and reads block while it is empty.
func NewPipe(capacity int) (*PipeReader, *PipeWriter) {
	if capacity <= 0 {
		capacity = DefaultPipeCapacity
	}
	p := &pipe{buf: make([]byte, capacity)}
	p.cond = sync.NewCond(&p.mu)
	return &PipeReader{p: p}, &PipeWriter{p: p}
}

func (p *pipe) read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for p.size == 0 {
		if p.rerr != nil {
			return 0, io.ErrClosedPipe
		}
		if p.werr != nil {
			return 0, p.werr
		}
		p.cond.Wait()
	}

	n := 0
	for n < len(b) && p.size > 0 {
		end := p.start + p.size
		if end > len(p.buf) {
			end = len(p.buf)
		}
		c := copy(b[n:], p.buf[p.start:end])
		n += c
		p.start = (p.start + c) % len(p.buf)
		p.size -= c
	}
	if p.size == 0 {
		p.start = 0
	}
	p.cond.Broadcast()
	return n, nil
}

func (p *pipe) write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for n < len(b) {
		if p.rerr != nil {
			return n, p.rerr
		}
		if p.werr != nil {
			return n, io.ErrClosedPipe
		}
		if p.size == len(p.buf) {
			p.cond.Wait()
			continue
		}

		tail := (p.start + p.size) % len(p.buf)
		end := len(p.buf)
		if tail < p.start {
			end = p.start
		}
		c := copy(p.buf[tail:end], b[n:])
		n += c
		p.size += c
		p.cond.Broadcast()
	}
	return n, nil
}

func (p *pipe) closeRead(err error) {
	if err == nil {
		err = ErrConnectionClosed
	}
	p.mu.Lock()
	if p.rerr == nil {
		p.rerr = err
	}
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *pipe) closeWrite(err error) {
	if err == nil {
		err = io.EOF
	}
	p.mu.Lock()
	if p.werr == nil {
		p.werr = err
	}
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *pipe) buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// PipeReader is the consuming half of a pipe
type PipeReader struct {
	p *pipe
}

// Read reads buffered bytes, blocking until data arrives or the writer closes
func (r *PipeReader) Read(b []byte) (int, error) {
	return r.p.read(b)
}

// Close closes the reader; pending and future writes fail with ErrConnectionClosed
func (r *PipeReader) Close() error {
	return r.CloseWithError(nil)
}

// CloseWithError closes the reader; writes fail with err, or ErrConnectionClosed if err is nil
func (r *PipeReader) CloseWithError(err error) error {
	r.p.closeRead(err)
	return nil
}

// Buffered returns the number of unread bytes
func (r *PipeReader) Buffered() int {
	return r.p.buffered()
}

// Cap returns the pipe capacity
func (r *PipeReader) Cap() int {
	return len(r.p.buf)
}

// PipeWriter is the producing half of a pipe
type PipeWriter struct {
	p *pipe
}

// Write writes b, blocking while the buffer is full
func (w *PipeWriter) Write(b []byte) (int, error) {
	return w.p.write(b)
}

// Close closes the writer; the reader sees io.EOF once the buffer drains
func (w *PipeWriter) Close() error {
	return w.CloseWithError(nil)
}

// CloseWithError closes the writer; the reader sees err after the buffer drains
func (w *PipeWriter) CloseWithError(err error) error {
	w.p.closeWrite(err)
	return nil
}
