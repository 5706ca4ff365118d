// Package api exposes the renderer over HTTP.
package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/docrender/docrender/internal/archive"
	"github.com/docrender/docrender/internal/batch"
	"github.com/docrender/docrender/internal/render"
	"github.com/docrender/docrender/internal/web/middleware"
	"github.com/docrender/docrender/internal/web/profiling"
	"github.com/docrender/docrender/internal/web/ratelimit"
	"github.com/docrender/docrender/internal/web/router"
)

// BatchArchiveName is the file name announced for batch responses
const BatchArchiveName = "rendered-pdfs.zip"

// Config holds the HTTP-facing limits of the API
type Config struct {
	// Workers bounds the render units of one batch running at a time
	Workers int
	// MaxBodyBytes caps request bodies; zero disables the cap
	MaxBodyBytes int64
	// ArchiveBufferSize is the capacity of the pipe between archive writer and response
	ArchiveBufferSize int
	// CompressionLevel is the flate level used for archive entries
	CompressionLevel int
	// RenderTimeout bounds single render requests; zero disables it
	RenderTimeout time.Duration
	// Profiling mounts the pprof handlers under /debug/pprof
	Profiling bool
}

// DefaultConfig returns the default API configuration
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		MaxBodyBytes:      10 << 20,
		ArchiveBufferSize: archive.DefaultPipeCapacity,
		CompressionLevel:  -1,
	}
}

// API holds the handlers and their shared dependencies
type API struct {
	renderer *render.Renderer
	batches  *batch.Orchestrator
	cfg      Config
	logger   *zap.Logger
	limiter  ratelimit.RateLimiter
	started  time.Time
	clock    func() time.Time
}

// Option configures an API
type Option func(*API)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithRateLimiter enables per-client rate limiting on render routes
func WithRateLimiter(limiter ratelimit.RateLimiter) Option {
	return func(a *API) {
		a.limiter = limiter
	}
}

// WithClock fixes the time source for archive entry timestamps
func WithClock(clock func() time.Time) Option {
	return func(a *API) {
		a.clock = clock
	}
}

// New creates the API over renderer
func New(renderer *render.Renderer, cfg Config, opts ...Option) *API {
	a := &API{
		renderer: renderer,
		cfg:      cfg,
		logger:   zap.NewNop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.started = a.clock()
	a.batches = batch.New(renderer, cfg.Workers,
		batch.WithLogger(a.logger.Named("batch")),
		batch.WithMetrics(renderer.Metrics()))
	return a
}

// Handler builds the router with the full middleware stack
func (a *API) Handler() http.Handler {
	r := router.NewRouter()
	r.Use(
		middleware.RequestID(),
		middleware.LoggingWithConfig(middleware.LoggingConfig{
			Logger:    a.logger,
			SkipPaths: []string{"/health"},
		}),
		middleware.Recovery(a.logger),
	)

	var limited []middleware.Middleware
	if a.limiter != nil {
		limited = append(limited, middleware.RateLimit(a.limiter, a.logger))
	}

	r.Handle("/render-pdf/batch", chain(http.HandlerFunc(a.renderBatch), limited...).ServeHTTP,
		http.MethodPost).Named("render-batch")

	single := chain(http.HandlerFunc(a.renderSingle), middleware.Timeout(a.cfg.RenderTimeout))
	r.Handle("/render-pdf/{template}/{file_name}", chain(single, limited...).ServeHTTP,
		http.MethodGet, http.MethodHead, http.MethodPost).Named("render-single")

	r.Get("/templates", a.listTemplates).Named("templates")
	r.Get("/health", a.health).Named("health")
	r.Get("/metrics", a.metrics).Named("metrics")
	r.Get("/apidoc/openapi.json", a.openAPI).Named("openapi")
	r.Get("/", a.apiDocs).Named("apidocs")

	if a.cfg.Profiling {
		r.Mount(profiling.DefaultPath, profiling.Handler(profiling.Config{})).Named("pprof")
	}

	return r
}

// chain wraps h so the first middleware runs outermost
func chain(h http.Handler, mws ...middleware.Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
