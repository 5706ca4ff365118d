// Package assets walks an asset directory once and loads every template,
// binary asset and font it contains into memory.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/docrender/docrender/internal/apperr"
	"github.com/docrender/docrender/internal/typeset"
)

// ErrInvalidUTF8 is returned when a template is not valid UTF-8
var ErrInvalidUTF8 = errors.New("template is not valid UTF-8")

// Template is the source of a document program
type Template struct {
	// Path is the slash-separated path relative to the asset root
	Path string
	Text string
}

// Name returns the final path segment, the name templates are requested by
func (t Template) Name() string {
	return path.Base(t.Path)
}

// Collection is everything loaded from an asset directory
type Collection struct {
	Templates []Template
	Assets    map[string][]byte
	Fonts     []typeset.Font
}

// Stats summarizes a collection
type Stats struct {
	Templates int `json:"templates"`
	Assets    int `json:"assets"`
	Fonts     int `json:"fonts"`
}

// NewCollection returns an empty collection
func NewCollection() *Collection {
	return &Collection{Assets: make(map[string][]byte)}
}

// Stats returns the number of templates, assets and fonts
func (c *Collection) Stats() Stats {
	return Stats{
		Templates: len(c.Templates),
		Assets:    len(c.Assets),
		Fonts:     len(c.Fonts),
	}
}

// merge appends other into c; duplicate asset keys take other's bytes
func (c *Collection) merge(other *Collection) {
	c.Templates = append(c.Templates, other.Templates...)
	for k, v := range other.Assets {
		c.Assets[k] = v
	}
	c.Fonts = append(c.Fonts, other.Fonts...)
}

// Collect walks root depth-first in file name order.
// Read failures and invalid templates abort the walk; unparsable fonts are
// logged and skipped.
func Collect(root string, logger *zap.Logger) (*Collection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &walker{
		root:    root,
		logger:  logger,
		visited: make(map[string]bool),
	}
	return w.collectDir(root)
}

type walker struct {
	root    string
	logger  *zap.Logger
	visited map[string]bool
}

func (w *walker) collectDir(dir string) (*Collection, error) {
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		if w.visited[real] {
			w.logger.Warn("skipping directory already visited through a symlink",
				zap.String("dir", dir), zap.String("target", real))
			return NewCollection(), nil
		}
		w.visited[real] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.New(apperr.KindIO, "assets.collect", w.virtualPath(dir), err)
	}

	out := NewCollection()
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())

		// Stat follows symlinks so linked directories are walked too
		info, err := os.Stat(full)
		if err != nil {
			return nil, apperr.New(apperr.KindIO, "assets.collect", w.virtualPath(full), err)
		}

		if info.IsDir() {
			child, err := w.collectDir(full)
			if err != nil {
				return nil, err
			}
			out.merge(child)
			continue
		}

		if err := w.collectFile(out, full); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (w *walker) collectFile(out *Collection, full string) error {
	vpath := w.virtualPath(full)
	data, err := os.ReadFile(full)
	if err != nil {
		return apperr.New(apperr.KindIO, "assets.collect", vpath, err)
	}

	switch FileTypeFromPath(full) {
	case FileTypeFont:
		fonts, err := typeset.ParseFonts(vpath, data)
		if err != nil {
			w.logger.Warn("skipping unreadable font", zap.String("path", vpath), zap.Error(err))
			return nil
		}
		out.Fonts = append(out.Fonts, fonts...)
	case FileTypeTemplate:
		if !utf8.Valid(data) {
			return apperr.New(apperr.KindIO, "assets.collect", vpath, ErrInvalidUTF8)
		}
		out.Templates = append(out.Templates, Template{Path: vpath, Text: string(data)})
	default:
		out.Assets[vpath] = data
	}
	return nil
}

// virtualPath converts a filesystem path into a rootless slash path
func (w *walker) virtualPath(full string) string {
	rel, err := filepath.Rel(w.root, full)
	if err != nil {
		return filepath.ToSlash(full)
	}
	return filepath.ToSlash(rel)
}

// String describes the collection for logs
func (s Stats) String() string {
	return fmt.Sprintf("%d templates, %d assets, %d fonts", s.Templates, s.Assets, s.Fonts)
}
