package typeset

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"golang.org/x/image/font/gofont/goregular"
)

var testLibrary = NewLibrary()

// mapWorld serves programs and files from maps
type mapWorld struct {
	main    string
	sources map[string]string
	files   map[string][]byte
	fonts   []Font
	book    *FontBook
	now     time.Time
}

func newMapWorld(main string, sources map[string]string) *mapWorld {
	return &mapWorld{
		main:    main,
		sources: sources,
		files:   map[string][]byte{},
		book:    NewFontBook(nil),
		now:     time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC),
	}
}

func (w *mapWorld) withFonts(fonts []Font) *mapWorld {
	w.fonts = fonts
	w.book = NewFontBook(fonts)
	return w
}

func (w *mapWorld) Library() starlark.StringDict { return testLibrary }
func (w *mapWorld) Book() *FontBook              { return w.book }
func (w *mapWorld) Main() string                 { return w.main }

func (w *mapWorld) Source(path string) (string, error) {
	src, ok := w.sources[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	return src, nil
}

func (w *mapWorld) File(path string) ([]byte, error) {
	data, ok := w.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	return data, nil
}

func (w *mapWorld) Font(index int) (Font, bool) {
	if index < 0 || index >= len(w.fonts) {
		return Font{}, false
	}
	return w.fonts[index], true
}

func (w *mapWorld) Today(offset *int) (time.Time, bool) {
	now := w.now
	if offset != nil {
		now = now.Add(time.Duration(*offset) * time.Hour)
	}
	return now, true
}

func TestCompile_Blocks(t *testing.T) {
	world := newMapWorld("invoice.star", map[string]string{
		"invoice.star": `
data = json.decode(read("input.json"))
title("Invoice " + data["number"])
heading("Items", level=2)
for item in data["items"]:
    bullet(item)
spacer()
text("Total: %d" % data["total"], size=12)
page()
text("Thanks")
`,
	})
	world.files["input.json"] = []byte(`{"number": "A-1", "items": ["pen", "ink"], "total": 42}`)

	doc, warnings, err := Compile(context.Background(), world, Options{})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "Invoice A-1", doc.Title)
	require.Len(t, doc.Pages, 2)

	first := doc.Pages[0].Blocks
	require.Len(t, first, 6)
	assert.Equal(t, BlockTitle, first[0].Kind)
	assert.Equal(t, TitleSize, first[0].Size)
	assert.Equal(t, BlockHeading, first[1].Kind)
	assert.Equal(t, 2, first[1].Level)
	assert.Equal(t, "pen", first[2].Text)
	assert.Equal(t, "ink", first[3].Text)
	assert.Equal(t, BlockSpacer, first[4].Kind)
	assert.Equal(t, SpacerSize, first[4].Height)
	assert.Equal(t, "Total: 42", first[5].Text)
	assert.Equal(t, 12.0, first[5].Size)
	assert.Equal(t, NoFont, first[5].Font)

	assert.Equal(t, "Thanks", doc.Pages[1].Blocks[0].Text)
	assert.Equal(t, 7, doc.BlockCount())
}

func TestCompile_EmptyProgramHasOnePage(t *testing.T) {
	world := newMapWorld("empty.star", map[string]string{"empty.star": "x = 1\n"})

	doc, _, err := Compile(context.Background(), world, Options{})
	require.NoError(t, err)
	assert.Len(t, doc.Pages, 1)
	assert.Zero(t, doc.BlockCount())
}

func TestCompile_Load(t *testing.T) {
	world := newMapWorld("main.star", map[string]string{
		"main.star":           `load("partials/common.star", "greet")` + "\n" + `text(greet("Ada"))`,
		"partials/common.star": "def greet(name):\n    return \"Hello, \" + name\n",
	})

	doc, _, err := Compile(context.Background(), world, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada", doc.Pages[0].Blocks[0].Text)
}

func TestCompile_LoadCycle(t *testing.T) {
	world := newMapWorld("a.star", map[string]string{
		"a.star": `load("b.star", "x")`,
		"b.star": `load("a.star", "y")` + "\nx = 1\n",
	})

	_, _, err := Compile(context.Background(), world, Options{})
	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Contains(t, err.Error(), "cycle")
}

func TestCompile_LoadErrorKeepsInnerPosition(t *testing.T) {
	world := newMapWorld("main.star", map[string]string{
		"main.star":   `load("broken.star", "x")`,
		"broken.star": "x = {}[\"missing\"]\n",
	})

	_, _, err := Compile(context.Background(), world, Options{})
	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	require.GreaterOrEqual(t, len(compileErr.Diagnostics), 2)
	assert.Equal(t, "broken.star", compileErr.Diagnostics[0].Path)
	assert.Equal(t, 1, compileErr.Diagnostics[0].Line)
}

func TestCompile_Diagnostics(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		line    int
		message string
	}{
		{"syntax", "x = = 1\n", 1, "want primary expression"},
		{"undefined name", "text(nope)\n", 1, "undefined: nope"},
		{"missing key", "d = {}\ntext(d[\"name\"])\n", 2, `key "name" not in dict`},
		{"bad heading level", "heading(\"x\", level=7)\n", 1, "level must be between 1 and 3"},
		{"missing file", "read(\"nope.json\")\n", 1, "file not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			world := newMapWorld("doc.star", map[string]string{"doc.star": tt.src})

			doc, _, err := Compile(context.Background(), world, Options{})
			assert.Nil(t, doc)

			var compileErr *CompileError
			require.ErrorAs(t, err, &compileErr)
			require.NotEmpty(t, compileErr.Diagnostics)
			d := compileErr.Diagnostics[len(compileErr.Diagnostics)-1]
			assert.Equal(t, SeverityError, d.Severity)
			assert.Equal(t, "doc.star", d.Path)
			assert.Equal(t, tt.line, d.Line)
			assert.Contains(t, d.Message, tt.message)
		})
	}
}

func TestCompile_Warnings(t *testing.T) {
	world := newMapWorld("doc.star", map[string]string{
		"doc.star": "warn(\"careful\")\nok = font(\"Comic Sans\")\ntext(str(ok))\n",
	})

	doc, warnings, err := Compile(context.Background(), world, Options{})
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	assert.Equal(t, SeverityWarning, warnings[0].Severity)
	assert.Equal(t, "careful", warnings[0].Message)
	assert.Equal(t, 1, warnings[0].Line)
	assert.Contains(t, warnings[1].Message, "Comic Sans")
	assert.Equal(t, 2, warnings[1].Line)
	assert.Equal(t, "False", doc.Pages[0].Blocks[0].Text)
}

func TestCompile_FontSelection(t *testing.T) {
	fonts, err := ParseFonts("fonts/Go-Regular.ttf", goregular.TTF)
	require.NoError(t, err)
	world := newMapWorld("doc.star", map[string]string{
		"doc.star": "text(\"before\")\nfont(\"go\")\ntext(\"after\")\n",
	}).withFonts(fonts)

	doc, warnings, err := Compile(context.Background(), world, Options{})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	blocks := doc.Pages[0].Blocks
	assert.Equal(t, NoFont, blocks[0].Font)
	assert.Equal(t, 0, blocks[1].Font)
	assert.Equal(t, "Go", doc.Fonts[0].Family)
}

func TestCompile_Today(t *testing.T) {
	world := newMapWorld("doc.star", map[string]string{
		"doc.star": "d = today()\ntext(\"%d-%d-%d\" % (d.year, d.month, d.day))\ntext(str(today(offset=12).day))\n",
	})

	doc, _, err := Compile(context.Background(), world, Options{})
	require.NoError(t, err)
	assert.Equal(t, "2024-3-9", doc.Pages[0].Blocks[0].Text)
	assert.Equal(t, "10", doc.Pages[0].Blocks[1].Text)
}

func TestCompile_StepLimit(t *testing.T) {
	world := newMapWorld("loop.star", map[string]string{"loop.star": "while True:\n    pass\n"})

	_, _, err := Compile(context.Background(), world, Options{MaxSteps: 10_000})
	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Contains(t, err.Error(), "too many steps")
}

func TestCompile_Cancellation(t *testing.T) {
	world := newMapWorld("loop.star", map[string]string{"loop.star": "while True:\n    pass\n"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := Compile(ctx, world, Options{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCompile_AlreadyCancelled(t *testing.T) {
	world := newMapWorld("doc.star", map[string]string{"doc.star": "text(\"x\")\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Compile(ctx, world, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompile_MissingMain(t *testing.T) {
	world := newMapWorld("gone.star", map[string]string{})

	_, _, err := Compile(context.Background(), world, Options{})
	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "gone.star", compileErr.Diagnostics[0].Path)
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"input.json", "input.json", true},
		{"/input.json", "input.json", true},
		{"./partials/a.star", "partials/a.star", true},
		{"partials/../a.star", "a.star", true},
		{"../secret", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := cleanPath(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
