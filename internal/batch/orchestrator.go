// Package batch fans a list of render requests out to workers and merges
// their completions into a single archive stream.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docrender/docrender/internal/apperr"
	"github.com/docrender/docrender/internal/render"
)

// FailuresEntry is the archive entry listing units that could not be rendered
const FailuresEntry = "_failures.json"

// Item is one render request inside a batch
type Item struct {
	// Template is the template file name to render
	Template string `json:"template"`
	// FileName is the entry name inside the archive
	FileName string `json:"file_name"`
	// Input is handed to the template as input.json
	Input json.RawMessage `json:"input"`
}

// Renderer renders a single document
type Renderer interface {
	Render(ctx context.Context, template string, payload any) ([]byte, error)
	HasTemplate(name string) bool
}

// EntryWriter receives rendered documents one at a time
type EntryWriter interface {
	AddEntry(name string, data []byte) error
	Finish() error
}

// Failure describes a unit that did not produce an entry
type Failure struct {
	Index     int    `json:"index"`
	Template  string `json:"template"`
	FileName  string `json:"file_name"`
	Error     string `json:"error"`
	Reference string `json:"reference"`
}

// Summary reports the outcome of a batch
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
	Failures  []Failure
}

// completion is the result of one render unit
type completion struct {
	index    int
	template string
	fileName string
	data     []byte
	err      error
}

// Orchestrator runs batches against a renderer
type Orchestrator struct {
	renderer Renderer
	workers  int
	logger   *zap.Logger
	metrics  *render.Metrics
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics records finished batches in metrics
func WithMetrics(metrics *render.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// New creates an orchestrator running at most workers units of one batch at a time
func New(renderer Renderer, workers int, opts ...Option) *Orchestrator {
	if workers <= 0 {
		workers = 4
	}
	o := &Orchestrator{
		renderer: renderer,
		workers:  workers,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validate checks every referenced template before any work starts.
// The first unknown name is returned as a template-not-found error.
func (o *Orchestrator) Validate(items []Item) error {
	checked := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := checked[item.Template]; ok {
			continue
		}
		checked[item.Template] = struct{}{}
		if !o.renderer.HasTemplate(item.Template) {
			return apperr.TemplateNotFound(item.Template)
		}
	}
	return nil
}

// Run renders every item and writes the successful ones to sink in completion order.
// Failed units are logged and listed in a trailing _failures.json entry.
// An error from sink cancels the outstanding units and is returned.
func (o *Orchestrator) Run(ctx context.Context, items []Item, sink EntryWriter) (Summary, error) {
	start := time.Now()
	summary := Summary{Total: len(items)}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan completion)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	go func() {
		for i, item := range items {
			if gctx.Err() != nil {
				break
			}
			// Go blocks while the pool is full
			g.Go(func() error {
				c := o.renderUnit(gctx, i, item)
				select {
				case results <- c:
				case <-gctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	var sinkErr error
	for c := range results {
		if sinkErr != nil {
			continue
		}
		if c.err != nil {
			summary.Failures = append(summary.Failures, o.failure(c))
			continue
		}
		if err := sink.AddEntry(c.fileName, c.data); err != nil {
			sinkErr = err
			cancel()
			continue
		}
		summary.Succeeded++
	}

	summary.Failed = len(summary.Failures)
	summary.Duration = time.Since(start)
	if sinkErr != nil {
		o.logger.Warn("batch aborted",
			zap.Int("total", summary.Total),
			zap.Int("written", summary.Succeeded),
			zap.Error(sinkErr))
		return summary, sinkErr
	}
	if err := ctx.Err(); err != nil {
		return summary, apperr.New(apperr.KindConnectionClosed, "batch.run", "", err)
	}

	if len(summary.Failures) > 0 {
		report, err := json.MarshalIndent(summary.Failures, "", "  ")
		if err != nil {
			return summary, apperr.New(apperr.KindInternal, "batch.report", FailuresEntry, err)
		}
		if err := sink.AddEntry(FailuresEntry, report); err != nil {
			return summary, err
		}
	}
	if err := sink.Finish(); err != nil {
		return summary, err
	}

	if o.metrics != nil {
		o.metrics.RecordBatch(summary.Succeeded)
	}
	o.logger.Info("batch finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// renderUnit renders one item, turning a panic into a task-join error
func (o *Orchestrator) renderUnit(ctx context.Context, index int, item Item) (c completion) {
	c = completion{index: index, template: item.Template, fileName: item.FileName}
	defer func() {
		if r := recover(); r != nil {
			c.data = nil
			c.err = apperr.New(apperr.KindTaskJoin, "batch.unit", item.Template, fmt.Errorf("panic: %v", r))
		}
	}()

	var payload any = item.Input
	if len(item.Input) == 0 {
		payload = nil
	}
	c.data, c.err = o.renderer.Render(ctx, item.Template, payload)
	return c
}

func (o *Orchestrator) failure(c completion) Failure {
	ref := uuid.New().String()
	kind := apperr.KindOf(c.err)

	fields := []zap.Field{
		zap.String("reference", ref),
		zap.Int("index", c.index),
		zap.String("template", c.template),
		zap.String("file_name", c.fileName),
		zap.String("kind", kind.String()),
		zap.Error(c.err),
	}
	var appErr *apperr.Error
	if errors.As(c.err, &appErr) && len(appErr.Diagnostics) > 0 {
		fields = append(fields, zap.Strings("diagnostics", appErr.Diagnostics))
	}
	o.logger.Error("batch unit failed", fields...)

	return Failure{
		Index:     c.index,
		Template:  c.template,
		FileName:  c.fileName,
		Error:     kind.PublicMessage(),
		Reference: ref,
	}
}
