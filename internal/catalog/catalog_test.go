package catalog

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/docrender/docrender/internal/apperr"
	"github.com/docrender/docrender/internal/assets"
	"github.com/docrender/docrender/internal/typeset"
)

func testCollection(t *testing.T) *assets.Collection {
	t.Helper()
	fonts, err := typeset.ParseFonts("fonts/Go-Regular.ttf", goregular.TTF)
	require.NoError(t, err)

	coll := assets.NewCollection()
	coll.Templates = []assets.Template{
		{Path: "example.star", Text: `text("top")`},
		{Path: "invoices/invoice.star", Text: `text("invoice")`},
		{Path: "legacy/example.star", Text: `text("shadowed")`},
	}
	coll.Assets["input.json"] = []byte(`{"real": true}`)
	coll.Assets["data/rates.json"] = []byte(`{"eur": 1}`)
	coll.Fonts = fonts
	return coll
}

func TestCatalog_HasTemplate(t *testing.T) {
	c := New(testCollection(t))

	assert.True(t, c.HasTemplate("example.star"))
	assert.True(t, c.HasTemplate("invoice.star"))
	assert.False(t, c.HasTemplate("invoices/invoice.star"))
	assert.False(t, c.HasTemplate("missing.star"))
	assert.False(t, c.HasTemplate(""))
}

func TestCatalog_Templates(t *testing.T) {
	c := New(testCollection(t))

	assert.Equal(t, []TemplateInfo{
		{Name: "example.star", Path: "example.star"},
		{Name: "invoice.star", Path: "invoices/invoice.star"},
		{Name: "example.star", Path: "legacy/example.star"},
	}, c.Templates())
	assert.Equal(t, map[string][]string{
		"example.star": {"example.star", "legacy/example.star"},
	}, c.Duplicates())
	assert.Equal(t, assets.Stats{Templates: 3, Assets: 2, Fonts: 1}, c.Stats())
	assert.Equal(t, []string{"Go"}, c.Families())
}

func TestCatalog_Resolve(t *testing.T) {
	c := New(testCollection(t))

	job, err := c.Resolve("example.star", map[string]any{"name": "Ada"})
	require.NoError(t, err)

	// first in walk order wins
	assert.Equal(t, "example.star", job.Main())
	assert.Equal(t, "example.star", job.Name())
	assert.JSONEq(t, `{"name": "Ada"}`, string(job.Input()))

	src, err := job.Source("example.star")
	require.NoError(t, err)
	assert.Equal(t, `text("top")`, src)

	src, err = job.Source("legacy/example.star")
	require.NoError(t, err)
	assert.Equal(t, `text("shadowed")`, src)
}

func TestCatalog_ResolveErrors(t *testing.T) {
	c := New(testCollection(t))

	_, err := c.Resolve("missing.star", nil)
	assert.Equal(t, apperr.KindTemplateNotFound, apperr.KindOf(err))

	_, err = c.Resolve("example.star", math.Inf(1))
	assert.Equal(t, apperr.KindInputSerialization, apperr.KindOf(err))
}

func TestJob_InputShadowsRealAsset(t *testing.T) {
	c := New(testCollection(t))

	job, err := c.Resolve("invoice.star", []int{1, 2})
	require.NoError(t, err)

	data, err := job.File(InputPath)
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", string(data))

	data, err = job.File("data/rates.json")
	require.NoError(t, err)
	assert.Equal(t, `{"eur": 1}`, string(data))

	_, err = job.File("data/missing.json")
	assert.ErrorIs(t, err, typeset.ErrFileNotFound)
	_, err = job.Source("nope.star")
	assert.ErrorIs(t, err, typeset.ErrFileNotFound)
}

func TestJob_WorldLookups(t *testing.T) {
	c := New(testCollection(t))
	fixed := time.Date(2024, 12, 31, 20, 0, 0, 0, time.FixedZone("CET", 3600))

	job, err := c.Resolve("example.star", nil, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	assert.Equal(t, "null", string(job.Input()))

	now, ok := job.Today(nil)
	require.True(t, ok)
	assert.Equal(t, time.UTC, now.Location())
	assert.Equal(t, 19, now.Hour())

	offset := 6
	later, _ := job.Today(&offset)
	assert.Equal(t, 2025, later.Year())
	assert.Equal(t, 1, later.Day())

	f, ok := job.Font(0)
	require.True(t, ok)
	assert.Equal(t, "Go", f.Family)
	_, ok = job.Font(1)
	assert.False(t, ok)
	_, ok = job.Font(-1)
	assert.False(t, ok)

	assert.Contains(t, job.Library(), "text")
	assert.Equal(t, 1, job.Book().Len())
}

func TestCatalog_ConcurrentReaders(t *testing.T) {
	c := New(testCollection(t))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := c.Resolve("invoice.star", map[string]int{"n": i})
			if !assert.NoError(t, err) {
				return
			}
			_, err = job.File(InputPath)
			assert.NoError(t, err)
			assert.True(t, c.HasTemplate("example.star"))
		}(i)
	}
	wg.Wait()
}

func TestFromDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "doc.star"), []byte(`text("a")`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "doc.star"), []byte(`text("b")`), 0o644))

	core, logs := observer.New(zapcore.InfoLevel)
	c, err := FromDirectory(root, zap.New(core))
	require.NoError(t, err)

	expectedRoot, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, expectedRoot, c.Root())

	job, err := c.Resolve("doc.star", nil)
	require.NoError(t, err)
	assert.Equal(t, "a/doc.star", job.Main())

	assert.Equal(t, 1, logs.FilterMessage("ambiguous template name, the first path wins").Len())
	assert.Equal(t, 1, logs.FilterMessage("catalog loaded").Len())
}

func TestFromDirectory_Errors(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := FromDirectory(file, nil)
	assert.Equal(t, apperr.KindNotADirectory, apperr.KindOf(err))

	_, err = FromDirectory(filepath.Join(root, "missing"), nil)
	assert.Equal(t, apperr.KindCanonicalizePath, apperr.KindOf(err))
}
