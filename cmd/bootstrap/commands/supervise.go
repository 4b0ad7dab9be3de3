package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/bootstrap/pkg/descriptor"
	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/supervisor"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

func newSuperviseCommand() *cobra.Command {
	var (
		props       string
		watch       bool
		maxRestarts int
		grace       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "supervise [props=<file>] [-- application args...]",
		Short: "Run the application and relaunch it on restart",
		Long: `Launch "bootstrap run" as a child process and relaunch it every time it exits
with the restart status 99. Any other status ends supervision and becomes
this process's exit status.

With --watch the child is also relaunched whenever the dist directory
changes, which picks up rebuilt extension archives during development.`,
		Example: `  # Keep the application running across restarts
  bootstrap supervise

  # Development: relaunch when extension archives change
  BOOTSTRAP_DEVELOPMENT=true bootstrap supervise --watch

  # Give up after three restarts
  bootstrap supervise --max-restarts 3 -- --port 8443`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := descriptor.ParseArgs(args)
			if props != "" {
				parsed.DescriptorPath = props
			}

			cfg, err := loadSettings(parsed.DescriptorPath)
			if err != nil {
				return err
			}
			desc, err := descriptor.Load(cfg.DescriptorPath())
			if err != nil {
				return err
			}
			tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig(buildVersion))
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(context.WithoutCancel(cmd.Context())) }()

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot locate launcher executable: %w", err)
			}
			childArgs, err := runArgs(cfg.Workdir, cfg.DescriptorPath(), parsed.Forward)
			if err != nil {
				return err
			}

			sc := supervisor.Config{
				MaxRestarts:  cfg.Supervisor.MaxRestarts,
				RestartDelay: cfg.Supervisor.RestartDelay,
				Debounce:     cfg.Supervisor.Debounce,
			}
			if cmd.Flags().Changed("max-restarts") {
				sc.MaxRestarts = maxRestarts
			}
			if watch || cfg.Supervisor.Watch {
				sc.WatchDir = cfg.Resolve(desc.DistDir())
				if !cfg.Development {
					tel.Logger.Warn("Watching the dist directory outside development mode")
				}
			}

			code, err := supervisor.New(sc, supervisor.Command(exe, childArgs, grace), tel.Logger).Run(cmd.Context())
			if err != nil {
				return &exitError{code: code, err: err}
			}
			if code != engine.ExitShutdown {
				return &exitError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&props, "props", "", "application descriptor file")
	cmd.Flags().BoolVar(&watch, "watch", false, "relaunch when the dist directory changes")
	cmd.Flags().IntVar(&maxRestarts, "max-restarts", 0, "give up after this many restarts (0 is unlimited)")
	cmd.Flags().DurationVar(&grace, "grace", 10*time.Second, "time the child gets to exit after an interrupt")

	return cmd
}

// runArgs builds the child's "run" command line. Paths are absolute so the
// child resolves the same installation whatever its working directory.
func runArgs(workdir, descriptorPath string, forward []string) ([]string, error) {
	args := []string{"run", "--workdir", workdir, "--props", descriptorPath}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	if jsonOutput {
		args = append(args, "--json")
	}
	args = append(args, "--")
	return append(args, forward...), nil
}
