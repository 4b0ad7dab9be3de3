package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// ExecLoader binds exec:<program> entry points to a child process. The
// program is looked up by file name on the load path, or used as given when
// absolute. Only the Main convention is available; the child's exit status
// becomes the launch status.
type ExecLoader struct {
	// Dir is the child's working directory.
	Dir string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Bind implements Loader.
func (l *ExecLoader) Bind(_ context.Context, target string, env *Environment) (Symbol, error) {
	program, err := findProgram(target, env)
	if err != nil {
		return Symbol{}, err
	}

	return Symbol{
		Main: func(ctx context.Context, args []string) (int, error) {
			cmd := exec.CommandContext(ctx, program, args...)
			cmd.Dir = l.Dir
			cmd.Env = append(os.Environ(), env.Environ()...)
			cmd.Stdin = orReader(l.Stdin, os.Stdin)
			cmd.Stdout = orWriter(l.Stdout, os.Stdout)
			cmd.Stderr = orWriter(l.Stderr, os.Stderr)
			cmd.WaitDelay = 5 * time.Second

			err := cmd.Run()
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return exitErr.ExitCode(), nil
			}
			if err != nil {
				return 0, fmt.Errorf("failed to run %s: %w", program, err)
			}
			return 0, nil
		},
	}, nil
}

func findProgram(target string, env *Environment) (string, error) {
	if filepath.IsAbs(target) {
		if _, err := os.Stat(target); err != nil {
			return "", fmt.Errorf("program %s: %w", target, err)
		}
		return target, nil
	}
	if path, ok := env.Lookup(target); ok {
		return path, nil
	}
	return "", fmt.Errorf("program %q is not on the load path", target)
}

func orReader(r, def io.Reader) io.Reader {
	if r == nil {
		return def
	}
	return r
}

func orWriter(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}
