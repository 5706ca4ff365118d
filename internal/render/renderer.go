// Package render runs one template against one payload: resolve, compile, export.
package render

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/docrender/docrender/internal/apperr"
	"github.com/docrender/docrender/internal/catalog"
	"github.com/docrender/docrender/internal/export"
	"github.com/docrender/docrender/internal/typeset"
)

// CompileFunc compiles the main program of a world
type CompileFunc func(ctx context.Context, world typeset.World, opts typeset.Options) (*typeset.Document, []typeset.Diagnostic, error)

// Exporter turns a compiled document into file bytes.
// Warnings are reported even when the export succeeds.
type Exporter interface {
	ExportAt(doc *typeset.Document, at time.Time) ([]byte, []string, error)
}

// Config holds renderer configuration
type Config struct {
	// MaxConcurrent bounds renders in flight across the whole process
	MaxConcurrent int
	// MaxSteps caps Starlark execution steps per program thread
	MaxSteps uint64
}

// DefaultConfig returns the default renderer configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 8,
		MaxSteps:      10_000_000,
	}
}

// Renderer renders documents from a catalog. It is safe for concurrent use.
type Renderer struct {
	catalog  *catalog.Catalog
	compile  CompileFunc
	exporter Exporter
	sem      *semaphore.Weighted
	opts     typeset.Options
	clock    func() time.Time
	logger   *zap.Logger
	metrics  *Metrics
}

// Option configures a Renderer
type Option func(*Renderer)

// WithClock fixes the time source for document dates and PDF timestamps
func WithClock(clock func() time.Time) Option {
	return func(r *Renderer) {
		r.clock = clock
	}
}

// WithCompiler replaces the document compiler
func WithCompiler(compile CompileFunc) Option {
	return func(r *Renderer) {
		r.compile = compile
	}
}

// WithExporter replaces the document exporter
func WithExporter(exporter Exporter) Option {
	return func(r *Renderer) {
		r.exporter = exporter
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// WithMetrics shares a metrics tracker
func WithMetrics(metrics *Metrics) Option {
	return func(r *Renderer) {
		r.metrics = metrics
	}
}

// New creates a renderer over cat
func New(cat *catalog.Catalog, cfg Config, opts ...Option) *Renderer {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	r := &Renderer{
		catalog:  cat,
		compile:  typeset.Compile,
		exporter: export.DefaultPDF(),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		opts:     typeset.Options{MaxSteps: cfg.MaxSteps},
		clock:    time.Now,
		logger:   zap.NewNop(),
		metrics:  NewMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the catalog the renderer reads from
func (r *Renderer) Catalog() *catalog.Catalog {
	return r.catalog
}

// Metrics returns the renderer's metrics tracker
func (r *Renderer) Metrics() *Metrics {
	return r.metrics
}

// HasTemplate reports whether the catalog can resolve name
func (r *Renderer) HasTemplate(name string) bool {
	return r.catalog.HasTemplate(name)
}

// Render resolves, compiles and exports one document.
// Errors are *apperr.Error values.
func (r *Renderer) Render(ctx context.Context, template string, payload any) ([]byte, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, apperr.New(contextKind(ctx, err), "render.acquire", template, err)
	}
	defer r.sem.Release(1)

	r.metrics.enter()
	defer r.metrics.leave()

	start := time.Now()
	data, err := r.render(ctx, template, payload)
	if err != nil {
		// unknown names are a client mistake, not a template statistic
		if !apperr.Is(err, apperr.KindTemplateNotFound) {
			r.metrics.RecordFailure(template, time.Since(start), err)
		}
		return nil, err
	}
	r.metrics.RecordSuccess(template, time.Since(start))
	return data, nil
}

func (r *Renderer) render(ctx context.Context, template string, payload any) ([]byte, error) {
	job, err := r.catalog.Resolve(template, payload, catalog.WithClock(r.clock))
	if err != nil {
		return nil, err
	}
	logger := r.logger.With(zap.String("template", template), zap.String("path", job.Main()))

	compileStart := time.Now()
	doc, warnings, err := r.compile(ctx, job, r.opts)
	logger.Info("compiled document",
		zap.Int64("compile_ms", time.Since(compileStart).Milliseconds()),
		zap.Int("warnings", len(warnings)))
	for _, w := range warnings {
		logger.Warn("document warning", zap.String("diagnostic", w.String()))
	}
	if err != nil {
		return nil, compileError(ctx, template, err)
	}

	exportStart := time.Now()
	data, exportWarnings, err := r.exporter.ExportAt(doc, job.Now())
	for _, w := range exportWarnings {
		logger.Warn("export warning", zap.String("diagnostic", w))
	}
	if err != nil {
		appErr := apperr.New(apperr.KindExport, "render.export", template, err)
		var exportErr *export.Error
		if errors.As(err, &exportErr) {
			appErr.WithDiagnostics(exportErr.Diagnostics...)
		}
		return nil, appErr
	}
	logger.Debug("exported document",
		zap.Int64("export_ms", time.Since(exportStart).Milliseconds()),
		zap.Int("bytes", len(data)),
		zap.Int("pages", len(doc.Pages)))
	return data, nil
}

func compileError(ctx context.Context, template string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.New(contextKind(ctx, err), "render.compile", template, err)
	}
	appErr := apperr.New(apperr.KindCompilation, "render.compile", template, err)
	var compileErr *typeset.CompileError
	if errors.As(err, &compileErr) {
		appErr.WithDiagnostics(compileErr.Messages()...)
	}
	return appErr
}

// contextKind separates a deadline set on the server side from a caller
// that went away.
func contextKind(ctx context.Context, err error) apperr.Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.KindTimeout
	}
	return apperr.KindConnectionClosed
}
