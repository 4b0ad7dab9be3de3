// Package supervisor relaunches the application while it asks to be
// restarted and, in development, when its extension archives change.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

// ErrTooManyRestarts is returned when the restart limit is exceeded.
var ErrTooManyRestarts = errors.New("restart limit exceeded")

// StartFunc runs one generation of the application and returns its exit status.
// Cancelling ctx must stop it.
type StartFunc func(ctx context.Context) (int, error)

// Config configures a Supervisor.
type Config struct {
	// MaxRestarts bounds restarts requested by the application; 0 is unlimited.
	MaxRestarts int

	// RestartDelay is waited before each relaunch.
	RestartDelay time.Duration

	// WatchDir, when set, triggers a relaunch whenever its contents change.
	WatchDir string

	// Debounce coalesces bursts of changes in WatchDir.
	Debounce time.Duration
}

// Supervisor runs a StartFunc until it exits with a status other than restart.
type Supervisor struct {
	config Config
	start  StartFunc
	logger *telemetry.Logger
}

// New creates a supervisor.
func New(cfg Config, start StartFunc, logger *telemetry.Logger) *Supervisor {
	return &Supervisor{
		config: cfg,
		start:  start,
		logger: logger.NewComponentLogger("supervisor"),
	}
}

// Run launches the application and relaunches it after every restart status
// and every watched change. It returns the first other exit status.
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	var changes <-chan struct{}
	if s.config.WatchDir != "" {
		w, err := newWatcher(s.config.WatchDir, s.config.Debounce, s.logger)
		if err != nil {
			return engine.ExitStartupFailure, err
		}
		defer w.Close()
		changes = w.Changes()
		go w.Run(ctx)
	}

	restarts := 0
	for generation := 1; ; generation++ {
		logger := s.logger.WithField("generation", generation)
		logger.Info("Launching application")

		code, changed, err := s.runOnce(ctx, changes)
		if err != nil {
			return engine.ExitStartupFailure, err
		}
		if ctx.Err() != nil {
			if code < 0 {
				code = engine.ExitShutdown
			}
			return code, nil
		}

		switch {
		case changed:
			logger.Info("Watched files changed; relaunching")
		case code == engine.ExitRestart:
			restarts++
			if s.config.MaxRestarts > 0 && restarts > s.config.MaxRestarts {
				return code, fmt.Errorf("%w: %d", ErrTooManyRestarts, s.config.MaxRestarts)
			}
			logger.Infof("Application requested restart (%d)", restarts)
		default:
			logger.Infof("Application exited with status %d", code)
			return code, nil
		}

		if err := sleep(ctx, s.config.RestartDelay); err != nil {
			return code, nil
		}
	}
}

// runOnce runs one generation, stopping it early when changes fires.
func (s *Supervisor) runOnce(ctx context.Context, changes <-chan struct{}) (int, bool, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type exit struct {
		code int
		err  error
	}
	done := make(chan exit, 1)
	go func() {
		code, err := s.start(runCtx)
		done <- exit{code, err}
	}()

	changed := false
	for {
		select {
		case <-changes:
			if !changed {
				changed = true
				cancel()
			}
		case e := <-done:
			if changed {
				return e.code, true, nil
			}
			return e.code, false, e.err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Command returns a StartFunc that runs program with args as a child process
// sharing this process's standard streams. Cancellation interrupts the child
// and kills it if it has not exited after grace.
func Command(program string, args []string, grace time.Duration) StartFunc {
	return func(ctx context.Context) (int, error) {
		cmd := exec.CommandContext(ctx, program, args...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Cancel = func() error { return interrupt(cmd.Process) }
		cmd.WaitDelay = grace

		err := cmd.Run()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		if err != nil && ctx.Err() == nil {
			return engine.ExitStartupFailure, fmt.Errorf("failed to run %s: %w", program, err)
		}
		return 0, nil
	}
}
