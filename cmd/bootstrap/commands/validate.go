package commands

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/descriptor"
	"github.com/openfroyo/bootstrap/pkg/launcher"
)

func newValidateCommand() *cobra.Command {
	var props string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the launcher settings and application descriptor",
		Long: `Load the launcher settings and the application descriptor without touching
the installation.

This command checks:
  - Settings file syntax and value constraints
  - BOOTSTRAP_* environment overrides
  - Required descriptor keys (id, name, main-entry)
  - That the dist directory exists, outside development mode
  - That an in-process entry point is registered`,
		Example: `  # Validate the installation in the current directory
  bootstrap validate

  # Validate another installation
  bootstrap validate --workdir /opt/console`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(props)
			if err != nil {
				return err
			}
			desc, err := descriptor.Load(cfg.DescriptorPath())
			if err != nil {
				return err
			}

			var warnings []string
			distDir := cfg.Resolve(desc.DistDir())
			if _, err := os.Stat(distDir); err != nil && !cfg.Development {
				warnings = append(warnings, fmt.Sprintf("dist directory %s is not readable: %v", distDir, err))
			}
			registered := Registry.Names()
			if scheme, target := launcher.SplitEntryPoint(desc.MainEntry()); scheme == "" && !slices.Contains(registered, target) {
				warnings = append(warnings, fmt.Sprintf("entry point %s is not registered (registered: %s)",
					target, strings.Join(registered, ", ")))
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"settings":   cfg.Summary(),
					"descriptor": describe(cfg, desc),
					"warnings":   warnings,
					"registered": registered,
				})
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, color.Bold.Sprint("Settings:"))
			writeSorted(w, cfg.Summary())
			fmt.Fprintln(w, color.Bold.Sprint("\nDescriptor:"))
			writeSorted(w, describe(cfg, desc))
			fmt.Fprintln(w, color.Bold.Sprint("\nRegistered entry points:"))
			for _, name := range registered {
				fmt.Fprintf(w, "  %s\n", name)
			}
			_ = w.Flush()

			for _, warning := range warnings {
				fmt.Fprintln(out, color.Warn.Sprint(warning))
			}
			fmt.Fprintln(out, color.Success.Sprint("\nConfiguration is valid"))
			return nil
		},
	}

	cmd.Flags().StringVar(&props, "props", "", "application descriptor file")

	return cmd
}

func describe(cfg *config.Config, desc *descriptor.Descriptor) map[string]string {
	return map[string]string{
		"path":                 desc.Path(),
		"id":                   desc.ID(),
		"name":                 desc.Name(),
		"main-entry":           desc.MainEntry(),
		"archive-name":         desc.ArchiveName(),
		"dist-dir":             cfg.Resolve(desc.DistDir()),
		"tmp-dir":              cfg.Resolve(desc.TmpDir()),
		"additional-classpath": strings.Join(desc.AdditionalPaths(), ","),
		"repos":                desc.Repos(),
		"settings":             fmt.Sprint(len(desc.Settings())),
	}
}

func writeSorted(w *tabwriter.Writer, values map[string]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s\t%s\n", k, values[k])
	}
}
