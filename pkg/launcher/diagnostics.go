package launcher

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// DiagnosticsEntryPoint is the name of the built-in entry point that prints
// the launch environment and shuts down.
const DiagnosticsEntryPoint = "bootstrap.Diagnostics"

// RegisterBuiltins adds the built-in entry points to r.
func RegisterBuiltins(r *StaticRegistry, out io.Writer) {
	r.Register(DiagnosticsEntryPoint, Diagnostics(out))
}

// Diagnostics returns a symbol that writes the environment view to out.
func Diagnostics(out io.Writer) Symbol {
	return Symbol{
		Full: func(_ context.Context, env *Environment, _ *Hooks, args []string) error {
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Run:\t%s\n", env.RunID())
			fmt.Fprintf(w, "Application:\t%s (%s)\n", env.AppName(), env.AppID())
			fmt.Fprintf(w, "Native dir:\t%s\n", env.NativeDir())
			fmt.Fprintf(w, "Arguments:\t%q\n", args)

			fmt.Fprintln(w, "\nLoad path:")
			for i, entry := range env.LoadPath() {
				fmt.Fprintf(w, "  %d\t%s\n", i+1, entry)
			}

			fmt.Fprintln(w, "\nSettings:")
			settings := env.Settings()
			keys := make([]string, 0, len(settings))
			for k := range settings {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "  %s\t%s\n", k, settings[k])
			}
			return w.Flush()
		},
	}
}
