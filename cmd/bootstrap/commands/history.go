package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded launches",
		Long: `List the most recent launches recorded in the launch journal, newest first.

Launches are recorded when journal.enabled is set.`,
		Example: `  # Show the last 20 launches
  bootstrap history

  # Show the last 5 launches as JSON
  bootstrap history --limit 5 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings("")
			if err != nil {
				return err
			}

			path := cfg.JournalPath()
			if _, err := os.Stat(path); err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintf(cmd.OutOrStdout(), "No launches recorded (%s does not exist)\n", path)
					return nil
				}
				return err
			}

			journal, err := stores.OpenJournal(cmd.Context(), stores.Config{Path: path})
			if err != nil {
				return err
			}
			defer journal.Close()

			runs, err := journal.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), runs)
			}
			printRuns(cmd, runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of launches to show")

	return cmd
}

func printRuns(cmd *cobra.Command, runs []*engine.RunRecord) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, color.Bold.Sprint("STARTED\tRUN\tENTRY POINT\tOUTCOME\tSTATUS\tDURATION\tSCRIPTS\tERROR"))
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			run.StartedAt.Format(time.DateTime),
			shortID(run.RunID),
			run.EntryPoint,
			outcomeColor(run.Outcome).Sprint(run.Outcome),
			run.ExitCode,
			run.Duration().Round(time.Millisecond),
			len(run.BootScripts),
			run.Error,
		)
	}
	_ = w.Flush()
}

func outcomeColor(outcome engine.Outcome) color.Color {
	switch outcome {
	case engine.OutcomeShutdown:
		return color.Green
	case engine.OutcomeRestart:
		return color.Yellow
	default:
		return color.Red
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
