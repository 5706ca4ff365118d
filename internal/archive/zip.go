package archive

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// Option configures a ZipWriter
type Option func(*ZipWriter)

// WithClock sets the time source for entry modification times
func WithClock(clock func() time.Time) Option {
	return func(z *ZipWriter) {
		z.clock = clock
	}
}

// WithCompressionLevel sets the deflate level (flate.BestSpeed..flate.BestCompression)
func WithCompressionLevel(level int) Option {
	return func(z *ZipWriter) {
		z.level = level
	}
}

// ZipWriter frames entries into a zip stream one at a time.
// Every entry is fully written and flushed before AddEntry returns.
// It is not safe for concurrent use.
type ZipWriter struct {
	dst   io.WriteCloser
	zw    *zip.Writer
	clock func() time.Time
	level int

	names    map[string]int
	entries  int
	err      error
	finished bool
	scratch  bytes.Buffer
}

// NewZipWriter creates a zip writer on top of w. Finish closes w.
func NewZipWriter(w io.WriteCloser, opts ...Option) *ZipWriter {
	z := &ZipWriter{
		dst:   w,
		zw:    zip.NewWriter(w),
		clock: time.Now,
		level: flate.DefaultCompression,
		names: make(map[string]int),
	}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// Entries returns the number of entries written so far
func (z *ZipWriter) Entries() int {
	return z.entries
}

// AddEntry compresses data and writes it as a single entry named name.
// Repeated names get a numeric suffix so every entry stays addressable.
func (z *ZipWriter) AddEntry(name string, data []byte) error {
	if z.finished {
		return ErrArchiveClosed
	}
	if z.err != nil {
		return z.err
	}

	z.scratch.Reset()
	fw, err := flate.NewWriter(&z.scratch, z.level)
	if err != nil {
		return z.fail(fmt.Errorf("archive: compressor: %w", err))
	}
	if _, err := fw.Write(data); err != nil {
		return z.fail(fmt.Errorf("archive: compress %s: %w", name, err))
	}
	if err := fw.Close(); err != nil {
		return z.fail(fmt.Errorf("archive: compress %s: %w", name, err))
	}

	fh := &zip.FileHeader{
		Name:               z.uniqueName(name),
		Method:             zip.Deflate,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(z.scratch.Len()),
		UncompressedSize64: uint64(len(data)),
	}
	fh.SetModTime(z.clock())

	w, err := z.zw.CreateRaw(fh)
	if err != nil {
		return z.fail(z.wrap("create "+fh.Name, err))
	}
	if _, err := w.Write(z.scratch.Bytes()); err != nil {
		return z.fail(z.wrap("write "+fh.Name, err))
	}
	if err := z.zw.Flush(); err != nil {
		return z.fail(z.wrap("flush "+fh.Name, err))
	}
	z.entries++
	return nil
}

// Finish writes the central directory and closes the underlying writer
func (z *ZipWriter) Finish() error {
	if z.finished {
		return ErrArchiveClosed
	}
	if z.err != nil {
		return z.err
	}
	z.finished = true

	if err := z.zw.Close(); err != nil {
		z.err = z.wrap("central directory", err)
		z.abort(z.err)
		return z.err
	}
	if err := z.dst.Close(); err != nil {
		z.err = z.wrap("close", err)
		return z.err
	}
	return nil
}

// Abort stops the archive and hands err to the reading side, if it can take one
func (z *ZipWriter) Abort(err error) {
	if z.finished {
		return
	}
	z.finished = true
	if err == nil {
		err = ErrArchiveClosed
	}
	if z.err == nil {
		z.err = err
	}
	z.abort(err)
}

func (z *ZipWriter) abort(err error) {
	if c, ok := z.dst.(interface{ CloseWithError(error) error }); ok {
		_ = c.CloseWithError(err)
		return
	}
	_ = z.dst.Close()
}

// fail leaves the writer broken; every later call returns err
func (z *ZipWriter) fail(err error) error {
	z.err = err
	return err
}

func (z *ZipWriter) wrap(op string, err error) error {
	if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("archive: %s: %w", op, ErrConnectionClosed)
	}
	return fmt.Errorf("archive: %s: %w", op, err)
}

func (z *ZipWriter) uniqueName(name string) string {
	name = strings.TrimLeft(path.Clean("/"+strings.ReplaceAll(name, "\\", "/")), "/")
	if name == "" {
		name = "unnamed"
	}
	n := z.names[name]
	z.names[name] = n + 1
	if n == 0 {
		return name
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for {
		n++
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, taken := z.names[candidate]; !taken {
			z.names[candidate] = 1
			z.names[name] = n
			return candidate
		}
	}
}
