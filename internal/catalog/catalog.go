// Package catalog holds the immutable set of templates, assets and fonts
// loaded at startup and hands out per-request render jobs over it.
package catalog

import (
	"os"
	"path/filepath"
	"sort"

	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/docrender/docrender/internal/apperr"
	"github.com/docrender/docrender/internal/assets"
	"github.com/docrender/docrender/internal/typeset"
)

// Catalog is read-only after construction and safe for concurrent use
type Catalog struct {
	root      string
	templates []assets.Template
	// byName maps a final path segment to the first template carrying it
	byName map[string]int
	byPath map[string]int
	assets map[string][]byte
	fonts  []typeset.Font
	book   *typeset.FontBook
	// library is frozen and shared by every compile
	library starlark.StringDict
	stats   assets.Stats
}

// TemplateInfo describes a template for listings
type TemplateInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// FromDirectory canonicalizes path, collects everything under it and builds a catalog
func FromDirectory(path string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperr.New(apperr.KindCanonicalizePath, "catalog.load", path, err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, apperr.New(apperr.KindCanonicalizePath, "catalog.load", path, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, apperr.New(apperr.KindIO, "catalog.load", root, err)
	}
	if !info.IsDir() {
		return nil, apperr.New(apperr.KindNotADirectory, "catalog.load", root, nil)
	}

	coll, err := assets.Collect(root, logger)
	if err != nil {
		return nil, err
	}

	c := New(coll)
	c.root = root
	for name, paths := range c.Duplicates() {
		logger.Warn("ambiguous template name, the first path wins",
			zap.String("template", name),
			zap.Strings("paths", paths))
	}
	logger.Info("catalog loaded",
		zap.String("root", root),
		zap.Int("templates", c.stats.Templates),
		zap.Int("assets", c.stats.Assets),
		zap.Int("fonts", c.stats.Fonts),
		zap.Strings("families", c.book.Families()))
	return c, nil
}

// New builds a catalog from an in-memory collection
func New(coll *assets.Collection) *Catalog {
	if coll == nil {
		coll = assets.NewCollection()
	}
	c := &Catalog{
		templates: coll.Templates,
		byName:    make(map[string]int, len(coll.Templates)),
		byPath:    make(map[string]int, len(coll.Templates)),
		assets:    coll.Assets,
		fonts:     coll.Fonts,
		book:      typeset.NewFontBook(coll.Fonts),
		library:   typeset.NewLibrary(),
		stats:     coll.Stats(),
	}
	if c.assets == nil {
		c.assets = make(map[string][]byte)
	}
	for i, t := range c.templates {
		if _, ok := c.byName[t.Name()]; !ok {
			c.byName[t.Name()] = i
		}
		c.byPath[t.Path] = i
	}
	return c
}

// Root returns the canonical asset directory, empty for in-memory catalogs
func (c *Catalog) Root() string {
	return c.root
}

// HasTemplate reports whether some template's final path segment equals name
func (c *Catalog) HasTemplate(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Templates lists every template in walk order
func (c *Catalog) Templates() []TemplateInfo {
	out := make([]TemplateInfo, len(c.templates))
	for i, t := range c.templates {
		out[i] = TemplateInfo{Name: t.Name(), Path: t.Path}
	}
	return out
}

// Duplicates maps each template name carried by more than one path to those paths
func (c *Catalog) Duplicates() map[string][]string {
	seen := make(map[string][]string)
	for _, t := range c.templates {
		seen[t.Name()] = append(seen[t.Name()], t.Path)
	}
	dups := make(map[string][]string)
	for name, paths := range seen {
		if len(paths) > 1 {
			sort.Strings(paths)
			dups[name] = paths
		}
	}
	return dups
}

// Stats returns the number of templates, assets and fonts
func (c *Catalog) Stats() assets.Stats {
	return c.stats
}

// Families lists the font families known to the catalog
func (c *Catalog) Families() []string {
	return c.book.Families()
}
