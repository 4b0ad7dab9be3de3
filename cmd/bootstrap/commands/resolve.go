package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/gookit/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

func newResolveCommand() *cobra.Command {
	var props string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show the load path a run would use",
		Long: `Extract the extension archives and assemble the load path without running
boot scripts or launching the application.

The temporary root is recreated exactly as it is for a run. The output lists
every load path entry with the package that contributed it, the duplicates
that were skipped and the staged native libraries.`,
		Example: `  # Show the load path
  bootstrap resolve

  # Machine-readable output
  bootstrap resolve --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), props, false)
			if err != nil {
				return err
			}
			defer s.Close(context.WithoutCancel(cmd.Context()))

			bar := &extractProgress{enabled: !jsonOutput && term.IsTerminal(int(os.Stderr.Fd()))}
			res, lp, err := s.pipeline(nil, bar.update).Resolve(cmd.Context())
			bar.finish()
			if err != nil {
				return err
			}

			if jsonOutput {
				warnings := make([]string, 0, len(res.Warnings))
				for _, w := range res.Warnings {
					warnings = append(warnings, w.Error())
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"packages":  res.Packages,
					"load_path": lp,
					"warnings":  warnings,
				})
			}
			printResolution(cmd.OutOrStdout(), res, lp)
			return nil
		},
	}

	cmd.Flags().StringVar(&props, "props", "", "application descriptor file")

	return cmd
}

// extractProgress renders a progress bar while archives are extracted.
type extractProgress struct {
	enabled bool
	bar     *progressbar.ProgressBar
}

func (p *extractProgress) update(done, total int, archive string) {
	if !p.enabled {
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Extracting"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	p.bar.Describe(filepath.Base(archive))
	_ = p.bar.Set(done)
}

func (p *extractProgress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func printResolution(out io.Writer, res *engine.Resolution, lp *engine.LoadPath) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, color.Bold.Sprint("Extensions:"))
	if len(res.Packages) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, pkg := range res.Packages {
		version := ""
		if pkg.Manifest != nil {
			version = pkg.Manifest.Version
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", color.Cyan.Sprint(pkg.Name), version, filepath.Base(pkg.SourceArchive))
	}

	fmt.Fprintln(w, color.Bold.Sprint("\nLoad path:"))
	for i, entry := range lp.Entries {
		fmt.Fprintf(w, "  %d\t%s\t%s\n", i+1, entry.Path, color.Cyan.Sprintf("[%s]", entry.Origin))
	}

	if len(lp.Skipped) > 0 {
		fmt.Fprintln(w, color.Bold.Sprint("\nSkipped:"))
		for _, skipped := range lp.Skipped {
			fmt.Fprintf(w, "  %s\t%s\n", skipped.Reference.Path,
				color.Warn.Sprintf("already included by %s", skipped.KeptBy.Origin))
		}
	}

	fmt.Fprintf(w, "%s %s\n", color.Bold.Sprint("\nNative libraries:"), lp.NativeDir)
	for _, staged := range lp.StagedNative {
		fmt.Fprintf(w, "  %s\n", filepath.Base(staged))
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintln(w, color.Bold.Sprint("\nWarnings:"))
		for _, warning := range res.Warnings {
			fmt.Fprintf(w, "  %s\n", color.Danger.Sprint(warning.Error()))
		}
	}
	_ = w.Flush()
}
