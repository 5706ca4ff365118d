package commands

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/docrender/docrender/internal/catalog"
	"github.com/docrender/docrender/internal/cli/config"
	"github.com/docrender/docrender/internal/export"
	"github.com/docrender/docrender/internal/logging"
	"github.com/docrender/docrender/internal/render"
)

// loadConfig resolves configuration and applies logging flag overrides
func loadConfig(global *globalOptions, assetsDir string, port int) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: global.configFile,
		AssetsDir:  assetsDir,
		Port:       port,
	})
	if err != nil {
		return nil, err
	}
	if global.logLevel != "" {
		cfg.Log.Level = global.logLevel
	}
	if global.logFormat != "" {
		cfg.Log.Format = global.logFormat
	}
	return cfg, nil
}

// newLogger builds the process logger
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// buildRenderer loads the catalog and wires the renderer for cfg
func buildRenderer(cfg *config.Config, logger *zap.Logger) (*render.Renderer, error) {
	cat, err := catalog.FromDirectory(cfg.AssetsDir, logging.Component(logger, "catalog"))
	if err != nil {
		return nil, err
	}

	exporter := export.DefaultPDF()
	exporter.Compress = cfg.Render.PDFCompression
	if cfg.Render.PageSize != "" {
		exporter.PageSize = cfg.Render.PageSize
	}

	renderCfg := render.Config{
		MaxConcurrent: cfg.Render.MaxConcurrent,
		MaxSteps:      cfg.Render.MaxSteps,
	}
	return render.New(cat, renderCfg,
		render.WithExporter(exporter),
		render.WithLogger(logging.Component(logger, "render")),
	), nil
}
