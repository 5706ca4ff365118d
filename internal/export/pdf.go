// Package export turns compiled documents into PDF bytes.
package export

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/docrender/docrender/internal/typeset"
)

const (
	coreFamily = "Helvetica"
	producer   = "docrender"
	bulletMark = "• "
)

// Error is returned when a document cannot be exported
type Error struct {
	Err         error
	Diagnostics []string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err == nil {
		return "pdf export failed"
	}
	return "pdf export failed: " + e.Err.Error()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// PDF exports documents through fpdf
type PDF struct {
	// PageSize is an fpdf page size name such as "A4" or "Letter"
	PageSize string
	// Margin is the page margin in points
	Margin float64
	// Compress enables stream compression
	Compress bool
	// Created stamps the document info; zero means time.Now
	Created time.Time
}

// DefaultPDF returns an A4 exporter with compression enabled
func DefaultPDF() PDF {
	return PDF{
		PageSize: "A4",
		Margin:   56,
		Compress: true,
	}
}

// Export renders doc using the Created timestamp
func (p PDF) Export(doc *typeset.Document) ([]byte, []string, error) {
	at := p.Created
	if at.IsZero() {
		at = time.Now()
	}
	return p.ExportAt(doc, at)
}

// ExportAt renders doc with creation and modification dates set to at.
// Identical documents exported at the same instant produce identical bytes.
// Warnings name the fonts that were replaced by a core font.
func (p PDF) ExportAt(doc *typeset.Document, at time.Time) (out []byte, warnings []string, err error) {
	if doc == nil {
		return nil, nil, &Error{Err: fmt.Errorf("nil document")}
	}
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &Error{Err: fmt.Errorf("exporter panic: %v", r), Diagnostics: warnings}
		}
	}()

	pageSize := p.PageSize
	if pageSize == "" {
		pageSize = "A4"
	}
	pdf := fpdf.New("P", "pt", pageSize, "")
	pdf.SetCompression(p.Compress)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(at)
	pdf.SetModificationDate(at)
	pdf.SetProducer(producer, false)
	if doc.Title != "" {
		pdf.SetTitle(doc.Title, true)
	}
	pdf.SetMargins(p.Margin, p.Margin, p.Margin)
	pdf.SetAutoPageBreak(true, p.Margin)

	w := &pageWriter{pdf: pdf, families: make(map[int]string)}
	indexes := make([]int, 0, len(doc.Fonts))
	for index := range doc.Fonts {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)
	for _, index := range indexes {
		f := doc.Fonts[index]
		if !embeddable(f) {
			warnings = append(warnings, fmt.Sprintf("font %s (%s) cannot be embedded, using %s", f.Family, f.Path, coreFamily))
			continue
		}
		family := fmt.Sprintf("f%d", index)
		pdf.AddUTF8FontFromBytes(family, "", f.Data)
		if pdf.Err() {
			return nil, warnings, &Error{Err: pdf.Error(), Diagnostics: append(warnings, "embedding "+f.Path)}
		}
		w.families[index] = family
	}

	pages := doc.Pages
	if len(pages) == 0 {
		pages = []typeset.Page{{}}
	}
	for _, page := range pages {
		pdf.AddPage()
		for _, block := range page.Blocks {
			w.block(block)
		}
		if pdf.Err() {
			return nil, warnings, &Error{Err: pdf.Error(), Diagnostics: warnings}
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, warnings, &Error{Err: err, Diagnostics: warnings}
	}
	return buf.Bytes(), warnings, nil
}

// embeddable reports whether fpdf can embed the face: single-face TrueType outlines only
func embeddable(f typeset.Font) bool {
	if f.Collection() || len(f.Data) < 4 {
		return false
	}
	tag := string(f.Data[:4])
	return tag == "\x00\x01\x00\x00" || tag == "true"
}

type pageWriter struct {
	pdf *fpdf.Fpdf
	// families maps document font indexes to registered fpdf family names
	families map[int]string
}

func (w *pageWriter) block(b typeset.Block) {
	switch b.Kind {
	case typeset.BlockSpacer:
		w.pdf.Ln(b.Height)
	case typeset.BlockTitle:
		w.text(b, "B", b.Text, 1.3)
		w.pdf.Ln(b.Size * 0.5)
	case typeset.BlockHeading:
		w.text(b, "B", b.Text, 1.3)
		w.pdf.Ln(b.Size * 0.3)
	case typeset.BlockBullet:
		w.text(b, "", bulletMark+b.Text, 1.4)
	default:
		w.text(b, "", b.Text, 1.4)
	}
}

func (w *pageWriter) text(b typeset.Block, style, s string, leading float64) {
	size := b.Size
	if size <= 0 {
		size = typeset.TextSize
	}
	if family, ok := w.families[b.Font]; ok {
		// embedded faces are registered without style variants
		w.pdf.SetFont(family, "", size)
		w.pdf.MultiCell(0, size*leading, s, "", "L", false)
		return
	}
	w.pdf.SetFont(coreFamily, style, size)
	w.pdf.MultiCell(0, size*leading, toWinAnsi(s), "", "L", false)
}

// toWinAnsi encodes s for the PDF core fonts; unmappable runes become '?'
func toWinAnsi(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if c, ok := charmap.Windows1252.EncodeRune(r); ok {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('?')
	}
	return b.String()
}
