package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openfroyo/bootstrap/pkg/descriptor"
	"github.com/openfroyo/bootstrap/pkg/engine"
)

func newRunCommand() *cobra.Command {
	var props string

	cmd := &cobra.Command{
		Use:   "run [props=<file>] [-- application args...]",
		Short: "Prepare the application and launch it",
		Long: `Run every launch phase and hand over to the application's entry point.

The process exits with status 0 when the application shuts down, 99 when it
asks to be restarted, 1 when startup fails and 2 when the entry point cannot
be bound or fails.

Arguments after -- are passed to the application unchanged, except that
props=<file> selects the descriptor and log4j=<file> is dropped.`,
		Example: `  # Launch using conf/application.properties
  bootstrap run

  # Launch another installation with an explicit descriptor
  bootstrap run --workdir /opt/console --props /opt/console/conf/alt.properties

  # Forward arguments to the application
  bootstrap run -- --port 8443 props=conf/application.properties`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := descriptor.ParseArgs(args)
			if props != "" {
				parsed.DescriptorPath = props
			}

			s, err := openSession(cmd.Context(), parsed.DescriptorPath, true)
			if err != nil {
				return err
			}
			defer s.Close(context.WithoutCancel(cmd.Context()))

			result, err := s.pipeline(parsed.Forward, nil).Run(cmd.Context())
			if err != nil {
				return &exitError{code: result.ExitCode, err: err}
			}
			if result.ExitCode != engine.ExitShutdown {
				return &exitError{code: result.ExitCode}
			}
			return nil
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&props, "props", "", "application descriptor file")

	return cmd
}
