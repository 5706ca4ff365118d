package typeset

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/image/font/sfnt"
)

// Font is a parsed font face
type Font struct {
	Family string
	Style  string
	// Data holds the raw font file; shared by every face of a collection
	Data []byte
	// Path is the file the face came from, for diagnostics only
	Path string
	// Face is the index of the face inside a font collection
	Face int
}

// Collection reports whether the face came from a multi-face file
func (f Font) Collection() bool {
	return isCollection(f.Data)
}

// ParseFonts extracts every face from a font file.
// A plain sfnt file yields one face, a .ttc collection yields one per member.
func ParseFonts(path string, data []byte) ([]Font, error) {
	if isCollection(data) {
		coll, err := sfnt.ParseCollection(data)
		if err != nil {
			return nil, fmt.Errorf("parse font collection %s: %w", path, err)
		}
		fonts := make([]Font, 0, coll.NumFonts())
		for i := 0; i < coll.NumFonts(); i++ {
			face, err := coll.Font(i)
			if err != nil {
				return nil, fmt.Errorf("parse face %d of %s: %w", i, path, err)
			}
			family, style := faceNames(face)
			fonts = append(fonts, Font{Family: family, Style: style, Data: data, Path: path, Face: i})
		}
		return fonts, nil
	}

	face, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	family, style := faceNames(face)
	return []Font{{Family: family, Style: style, Data: data, Path: path}}, nil
}

func isCollection(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "ttcf"
}

// faceNames prefers the typographic names over the legacy ones
func faceNames(face *sfnt.Font) (family, style string) {
	var buf sfnt.Buffer
	lookup := func(ids ...sfnt.NameID) string {
		for _, id := range ids {
			if name, err := face.Name(&buf, id); err == nil && name != "" {
				return name
			}
		}
		return ""
	}
	family = lookup(sfnt.NameIDTypographicFamily, sfnt.NameIDFamily)
	style = lookup(sfnt.NameIDTypographicSubfamily, sfnt.NameIDSubfamily)
	if style == "" {
		style = "Regular"
	}
	return family, style
}

// FontBook indexes fonts by family name.
// Indexes refer to positions in the slice the book was built from.
type FontBook struct {
	families map[string][]int
	styles   []string
	names    []string
}

// NewFontBook builds a book over fonts
func NewFontBook(fonts []Font) *FontBook {
	book := &FontBook{
		families: make(map[string][]int),
		styles:   make([]string, len(fonts)),
	}
	for i, f := range fonts {
		book.styles[i] = f.Style
		if f.Family == "" {
			continue
		}
		key := strings.ToLower(f.Family)
		if _, ok := book.families[key]; !ok {
			book.names = append(book.names, f.Family)
		}
		book.families[key] = append(book.families[key], i)
	}
	sort.Strings(book.names)
	return book
}

// Select returns the face index for family, preferring the regular style
func (b *FontBook) Select(family string) (int, bool) {
	if i, ok := b.SelectStyle(family, "Regular"); ok {
		return i, true
	}
	if b == nil {
		return 0, false
	}
	indexes := b.families[strings.ToLower(family)]
	if len(indexes) == 0 {
		return 0, false
	}
	return indexes[0], true
}

// SelectStyle returns the face of family whose style matches, case-insensitively
func (b *FontBook) SelectStyle(family, style string) (int, bool) {
	if b == nil {
		return 0, false
	}
	for _, i := range b.families[strings.ToLower(family)] {
		if strings.EqualFold(b.styles[i], style) {
			return i, true
		}
	}
	return 0, false
}

// Families lists the known family names in sorted order
func (b *FontBook) Families() []string {
	if b == nil {
		return nil
	}
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// Len returns the number of families
func (b *FontBook) Len() int {
	if b == nil {
		return 0
	}
	return len(b.names)
}
