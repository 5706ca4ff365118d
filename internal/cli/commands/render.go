package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docrender/docrender/internal/apperr"
)

type renderOptions struct {
	global    *globalOptions
	assetsDir string
	input     string
	output    string
}

// NewRenderCommand creates the render command
func NewRenderCommand(global *globalOptions) *cobra.Command {
	o := &renderOptions{global: global}
	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render one template to a PDF file without starting a server",
		Long: `Render a single template offline through the same pipeline the service uses.

Examples:
  docrender render invoice.star --input invoice.json --output invoice.pdf
  cat data.json | docrender render report.star --input - --assets ./templates`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, o, args[0])
		},
	}

	cmd.Flags().StringVarP(&o.assetsDir, "assets", "a", "", "Assets directory")
	cmd.Flags().StringVarP(&o.input, "input", "i", "", "JSON input file, - for stdin (default: null input)")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "Output PDF path (default: <template>.pdf)")
	return cmd
}

func runRender(cmd *cobra.Command, o *renderOptions, template string) error {
	cfg, err := loadConfig(o.global, o.assetsDir, 0)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	payload, err := readInput(cmd.InOrStdin(), o.input)
	if err != nil {
		return err
	}

	renderer, err := buildRenderer(cfg, logger)
	if err != nil {
		return err
	}

	pdf, err := renderer.Render(cmd.Context(), template, payload)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) && len(appErr.Diagnostics) > 0 {
			logger.Error("render failed", zap.Strings("diagnostics", appErr.Diagnostics))
			return fmt.Errorf("%w\n  %s", err, strings.Join(appErr.Diagnostics, "\n  "))
		}
		return err
	}

	out := o.output
	if out == "" {
		out = strings.TrimSuffix(path.Base(template), path.Ext(template)) + ".pdf"
	}
	if err := os.WriteFile(out, pdf, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	color.New(color.FgGreen, color.Bold).Fprintf(cmd.OutOrStdout(), "Rendered %s -> %s (%d bytes)\n", template, out, len(pdf))
	return nil
}

// readInput loads the JSON payload; an empty name means null
func readInput(stdin io.Reader, name string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	switch name {
	case "":
		return nil, nil
	case "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("input %s is not valid JSON", name)
	}
	return json.RawMessage(data), nil
}
