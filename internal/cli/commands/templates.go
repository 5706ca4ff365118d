package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type templatesOptions struct {
	global    *globalOptions
	assetsDir string
}

// NewTemplatesCommand creates the templates command
func NewTemplatesCommand(global *globalOptions) *cobra.Command {
	o := &templatesOptions{global: global}
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the templates found in the assets directory",
		Long: `Display every template the service would serve, with its path and
any names shadowed by an earlier template.

Examples:
  docrender templates
  docrender templates --assets ./templates`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplates(cmd, o)
		},
	}

	cmd.Flags().StringVarP(&o.assetsDir, "assets", "a", "", "Assets directory")
	return cmd
}

func runTemplates(cmd *cobra.Command, o *templatesOptions) error {
	cfg, err := loadConfig(o.global, o.assetsDir, 0)
	if err != nil {
		return err
	}
	// listing is for humans; keep the catalog quiet
	renderer, err := buildRenderer(cfg, zap.NewNop())
	if err != nil {
		return err
	}
	cat := renderer.Catalog()

	out := cmd.OutOrStdout()
	headerColor := color.New(color.FgGreen, color.Bold)
	warningColor := color.New(color.FgYellow)

	templates := cat.Templates()
	if len(templates) == 0 {
		fmt.Fprintf(out, "No templates found in %s\n", cat.Root())
		return nil
	}

	headerColor.Fprintf(out, "Templates in %s:\n\n", cat.Root())

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATH")
	fmt.Fprintln(w, "----\t----")
	for _, tpl := range templates {
		fmt.Fprintf(w, "%s\t%s\n", tpl.Name, tpl.Path)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	stats := cat.Stats()
	fmt.Fprintf(out, "\n%s\n", stats)
	if families := cat.Families(); len(families) > 0 {
		fmt.Fprintf(out, "Font families: %s\n", strings.Join(families, ", "))
	}

	for name, paths := range cat.Duplicates() {
		warningColor.Fprintf(out, "Warning: %s is provided by %s; the first in walk order is served\n",
			name, strings.Join(paths, ", "))
	}
	return nil
}
