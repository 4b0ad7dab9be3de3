// Package launcher binds the application entry point named by the descriptor
// and runs it with the assembled load path.
//
// An entry point is "name" for an in-process symbol registered in a
// StaticRegistry, "wasm:<module>" for a WASM module on the load path, or
// "exec:<program>" for a child process.
package launcher

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

// Entry point schemes.
const (
	SchemeWasm = "wasm"
	SchemeExec = "exec"
)

// Config configures a Launcher.
type Config struct {
	// Registry binds entry points without a scheme.
	Registry *StaticRegistry

	// Loaders bind entry points by scheme. Wasm and exec loaders are added
	// when missing.
	Loaders map[string]Loader

	// Exit terminates the process when a hook fires; os.Exit when nil.
	Exit func(code int)
}

// Launcher implements engine.ApplicationLauncher.
type Launcher struct {
	loaders map[string]Loader
	exit    func(code int)
	logger  *telemetry.Logger
}

// New creates a launcher.
func New(cfg Config, logger *telemetry.Logger) *Launcher {
	loaders := map[string]Loader{
		SchemeWasm: &WasmLoader{},
		SchemeExec: &ExecLoader{},
	}
	for scheme, loader := range cfg.Loaders {
		loaders[scheme] = loader
	}
	if cfg.Registry != nil {
		loaders[""] = cfg.Registry
	} else if _, ok := loaders[""]; !ok {
		loaders[""] = NewStaticRegistry()
	}

	exit := cfg.Exit
	if exit == nil {
		exit = os.Exit
	}

	return &Launcher{
		loaders: loaders,
		exit:    exit,
		logger:  logger.NewComponentLogger("launcher"),
	}
}

// Launch binds the entry point, selects its highest ranked convention and
// invokes it. A hook ends the process through the exit function after
// req.BeforeExit has run. A target that returns without calling a hook is a
// normal shutdown. Any binding or invocation failure, including a panic, is
// an EntryPointError with exit status 2.
func (l *Launcher) Launch(ctx context.Context, req engine.LaunchRequest) (engine.LaunchResult, error) {
	failed := engine.ResultForExit(engine.ExitEntryPoint)
	logger := l.logger.WithField("entry_point", req.EntryPoint)

	scheme, target := SplitEntryPoint(req.EntryPoint)
	loader, ok := l.loaders[scheme]
	if !ok {
		return failed, engine.NewEntryPointError(fmt.Sprintf("unknown entry point scheme %q", scheme), nil).WithPath(req.EntryPoint)
	}

	env := NewEnvironment(req)
	sym, err := loader.Bind(ctx, target, env)
	if err != nil {
		return failed, engine.NewEntryPointError("cannot bind entry point", err).WithPath(req.EntryPoint)
	}

	convention := sym.Convention()
	if convention == ConventionNone {
		return failed, engine.NewEntryPointError("entry point supports no calling convention", nil).WithPath(req.EntryPoint)
	}

	hooks := newHooks(func(code int) {
		logger.Infof("Application requested %s", engine.OutcomeForExit(code))
		if req.BeforeExit != nil {
			req.BeforeExit(engine.ResultForExit(code))
		}
		l.exit(code)
	})

	logger.WithField("convention", convention.String()).Info("Starting application")
	code, err := invoke(ctx, sym, convention, env, hooks, req.Args)

	if result, fired := hooks.result(); fired {
		return result, nil
	}
	if err != nil {
		logger.WithError(err).Error("Entry point failed")
		return failed, engine.NewEntryPointError("entry point failed", err).WithPath(req.EntryPoint)
	}
	return engine.ResultForExit(code), nil
}

// invoke calls the symbol with the chosen convention, turning a panic into an error.
func invoke(ctx context.Context, sym Symbol, convention Convention, env *Environment, hooks *Hooks, args []string) (code int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("entry point panicked: %v\n%s", r, debug.Stack())
		}
	}()

	switch convention {
	case ConventionFull:
		return 0, sym.Full(ctx, env, hooks, args)
	case ConventionHooks:
		return 0, sym.Hooks(ctx, env, hooks)
	default:
		return sym.Main(ctx, args)
	}
}

// SplitEntryPoint separates an optional scheme from the target. Single
// letters are not schemes so Windows drive paths pass through.
func SplitEntryPoint(entry string) (scheme, target string) {
	prefix, rest, ok := strings.Cut(entry, ":")
	if !ok || len(prefix) < 2 || strings.ContainsAny(prefix, `/\.`) {
		return "", entry
	}
	return prefix, rest
}
