package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docrender/docrender/internal/api"
	"github.com/docrender/docrender/internal/cli/config"
	"github.com/docrender/docrender/internal/logging"
	"github.com/docrender/docrender/internal/web/ratelimit"
	"github.com/docrender/docrender/internal/web/server"
)

type serveOptions struct {
	global *globalOptions
	port   int
}

func (o *serveOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&o.port, "port", "p", config.DefaultPort, "Port to listen on (DOCRENDER_PORT and server.port win)")
}

// NewServeCommand creates the serve command
func NewServeCommand(global *globalOptions) *cobra.Command {
	o := &serveOptions{global: global}
	cmd := &cobra.Command{
		Use:   "serve [assets-dir]",
		Short: "Start the HTTP rendering service",
		Long: `Load the assets directory and serve the rendering API.

Examples:
  docrender serve ./templates
  DOCRENDER_PORT=9000 docrender serve
  docrender serve --config docrender.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, o, args)
		},
	}
	o.bindFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, o *serveOptions, args []string) error {
	var assetsDir string
	if len(args) > 0 {
		assetsDir = args[0]
	}

	cfg, err := loadConfig(o.global, assetsDir, o.port)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return serve(cmd.Context(), cfg, logger)
}

// serve runs the service until ctx ends or a termination signal arrives
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	renderer, err := buildRenderer(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to load assets from %s: %w", cfg.AssetsDir, err)
	}

	opts := []api.Option{api.WithLogger(logging.Component(logger, "http"))}

	var limiter ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.New(ctx, cfg.RateLimit)
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
		opts = append(opts, api.WithRateLimiter(limiter))
	}

	handler := api.New(renderer, api.Config{
		Workers:           cfg.Render.Workers,
		MaxBodyBytes:      cfg.Render.MaxBodyBytes,
		ArchiveBufferSize: cfg.Render.ArchiveBufferSize,
		CompressionLevel:  cfg.Render.CompressionLevel,
		RenderTimeout:     cfg.Render.Timeout,
		Profiling:         cfg.Server.Pprof,
	}, opts...).Handler()

	serverCfg := server.DefaultConfig(handler)
	serverCfg.Address = cfg.Server.Address()
	serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	serverCfg.WriteTimeout = cfg.Server.WriteTimeout
	serverCfg.IdleTimeout = cfg.Server.IdleTimeout

	srv, err := server.New(serverCfg)
	if err != nil {
		return err
	}

	gs := server.NewGracefulShutdown(srv, &server.ShutdownConfig{
		Timeout: cfg.Server.ShutdownTimeout,
		Logger:  logging.Component(logger, "server"),
	})
	if limiter != nil {
		gs.RegisterHook(func(context.Context) error {
			return limiter.Close()
		})
	}

	color.New(color.FgGreen, color.Bold).Fprintf(color.Error, "docrender listening on %s (assets: %s)\n",
		serverCfg.Address, renderer.Catalog().Root())
	return gs.Run(ctx)
}
