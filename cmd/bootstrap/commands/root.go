package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/launcher"
)

var (
	// Global flags
	configPath string
	workdir    string
	jsonOutput bool

	// buildVersion is reported in telemetry.
	buildVersion = "dev"
)

// Registry holds the in-process entry points. Programs embedding the launcher
// register theirs before calling Execute.
var Registry = launcher.NewStaticRegistry()

// exitError carries a process exit status out of a command. Err is nil when
// the status is the application's own.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute runs the root command and returns the process exit status.
func Execute(ctx context.Context, ver, commit, buildDate string) (int, error) {
	buildVersion = ver
	return execute(ctx, newRootCommand(ver, commit, buildDate))
}

// execute runs cmd and maps its error to an exit status.
func execute(ctx context.Context, cmd *cobra.Command) (int, error) {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return engine.ExitShutdown, nil
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code, exitErr.err
	}
	return engine.ExitCode(err), err
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap - application launcher",
		Long: `Bootstrap prepares an installed application and starts it.

On every start it:
  - Runs pending one-time boot scripts from the conf directory
  - Extracts the extension archives in the dist directory
  - Assembles a deduplicated load path and stages native libraries
  - Binds the descriptor's entry point and hands over control

The application ends the run by returning, or by asking for shutdown
(exit status 0) or restart (exit status 99).`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file path (default <workdir>/conf/bootstrap.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workdir, "workdir", "w", "", "application installation directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newSuperviseCommand())

	return rootCmd
}
