package bootscript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

// Script name prefixes.
const (
	PrefixRunOnce        = "runOnce."
	PrefixRunOnceAsAdmin = "runOnceAsAdmin."
)

// DefaultTimeout bounds a single script when no timeout is configured.
const DefaultTimeout = 10 * time.Minute

// waitDelay bounds how long output copying may continue after a script exits
// or is killed, in case it left children holding the output pipe.
const waitDelay = 5 * time.Second

// Config configures a Runner.
type Config struct {
	// ConfDir is scanned for runOnce.* and runOnceAsAdmin.* scripts.
	ConfDir string

	// WorkDir is the scripts' working directory; ConfDir's parent when empty.
	WorkDir string

	// Timeout bounds each script.
	Timeout time.Duration

	// Output receives the scripts' combined stdout and stderr.
	Output io.Writer

	// Direct runs unprivileged scripts and privileged ones when already elevated.
	Direct Executor

	// Privileged runs runOnceAsAdmin.* scripts when elevation is needed.
	Privileged Executor

	// Elevated reports whether the launcher already has administrator rights.
	Elevated func() bool
}

// Runner executes pending boot scripts in lexicographic filename order.
type Runner struct {
	config  Config
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// NewRunner creates a runner, filling unset fields with platform defaults.
func NewRunner(cfg Config, logger *telemetry.Logger, metrics *telemetry.Metrics) *Runner {
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Dir(cfg.ConfDir)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Direct == nil {
		cfg.Direct = DirectExecutor{}
	}
	if cfg.Privileged == nil {
		cfg.Privileged = SudoExecutor{}
	}
	if cfg.Elevated == nil {
		cfg.Elevated = IsElevated
	}
	return &Runner{
		config:  cfg,
		logger:  logger.NewComponentLogger("bootscript"),
		metrics: metrics,
	}
}

// Discover lists pending scripts in confDir in lexicographic filename order.
// A missing directory yields no scripts.
func Discover(confDir string) ([]engine.BootScript, error) {
	entries, err := os.ReadDir(confDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, engine.NewBootScriptError("cannot read configuration directory", err).WithPath(confDir)
	}

	var scripts []engine.BootScript
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		privileged := strings.HasPrefix(name, PrefixRunOnceAsAdmin)
		if !privileged && !strings.HasPrefix(name, PrefixRunOnce) {
			continue
		}
		path, err := filepath.Abs(filepath.Join(confDir, name))
		if err != nil {
			return nil, engine.NewBootScriptError("cannot resolve script path", err).WithPath(name)
		}
		scripts = append(scripts, engine.BootScript{
			Path:       path,
			Privileged: privileged,
			ExitCode:   -1,
		})
	}

	sort.Slice(scripts, func(i, j int) bool {
		return scripts[i].Name() < scripts[j].Name()
	})
	return scripts, nil
}

// Run executes every pending script. Each successful script is deleted before
// the next one starts. The first failure stops the run; the failed script stays
// on disk and is returned last in the slice alongside a BootScriptError.
func (r *Runner) Run(ctx context.Context) ([]engine.BootScript, error) {
	scripts, err := Discover(r.config.ConfDir)
	if err != nil {
		return nil, err
	}
	if len(scripts) == 0 {
		r.logger.Debug("No boot scripts pending")
		return nil, nil
	}

	ran := make([]engine.BootScript, 0, len(scripts))
	for _, script := range scripts {
		err := r.runOne(ctx, &script)
		ran = append(ran, script)
		r.metrics.RecordBootScript(err == nil, script.Elevated)
		if err != nil {
			return ran, err
		}
	}
	return ran, nil
}

func (r *Runner) runOne(ctx context.Context, script *engine.BootScript) error {
	logger := r.logger.WithScript(script.Name())

	executor := r.config.Direct
	if script.Privileged && ElevationSupported && !r.config.Elevated() {
		logger.Infof("Elevating boot script %s to administrator privileges", script.Path)
		if err := ensureExecutable(script.Path); err != nil {
			return engine.NewBootScriptError("cannot make boot script executable", err).WithPath(script.Path)
		}
		executor = r.config.Privileged
		script.Elevated = true
	}

	runCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	cmd, err := executor.Command(runCtx, script.Path)
	if err != nil {
		return engine.NewBootScriptError("cannot prepare boot script", err).WithPath(script.Path)
	}
	cmd.Dir = r.config.WorkDir
	cmd.Stdout = r.config.Output
	cmd.Stderr = r.config.Output
	cmd.WaitDelay = waitDelay

	logger.Infof("Executing boot script %s", script.Path)
	start := time.Now()
	err = cmd.Run()
	script.Duration = time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return engine.NewBootScriptError(
			fmt.Sprintf("boot script timed out after %s", r.config.Timeout), runCtx.Err()).WithPath(script.Path)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			script.ExitCode = exitErr.ExitCode()
			return engine.NewBootScriptError(
				fmt.Sprintf("boot script returned exit code %d", script.ExitCode), err).WithPath(script.Path)
		}
		return engine.NewBootScriptError("cannot start boot script", err).WithPath(script.Path)
	}

	script.ExitCode = 0
	script.Executed = true
	logger.Infof("Executed boot script %s in %s", script.Path, script.Duration.Round(time.Millisecond))

	if err := os.Remove(script.Path); err != nil {
		logger.WithError(err).Warnf("Could not delete boot script %s; it will run again on next start", script.Path)
	}
	return nil
}
