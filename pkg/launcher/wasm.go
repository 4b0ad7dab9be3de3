package launcher

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// Exports and imports recognised on WASM entry points.
const (
	WasmExportFull   = "run_application"
	WasmExportMain   = "_start"
	WasmExportInit   = "_initialize"
	WasmHostModule   = "bootstrap"
	WasmHostRestart  = "restart"
	WasmHostShutdown = "shutdown"
)

// defaultMemoryPages caps guest memory at 256MiB.
const defaultMemoryPages = 4096

// WasmLoader binds wasm:<module> entry points. <module>.wasm is looked up by
// file name on the load path, or used as given when absolute.
//
// A module exporting run_application is bound with the Full convention: it
// receives the arguments through WASI argv, the settings through WASI environ
// and may import bootstrap.restart and bootstrap.shutdown. A module exporting
// only _start is bound with the Main convention; its proc_exit status is the
// launch status.
type WasmLoader struct {
	// Dir, when set, is mounted as the guest's root directory.
	Dir string

	// MemoryLimitPages caps guest memory in 64KiB pages.
	MemoryLimitPages uint32

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Bind implements Loader.
func (l *WasmLoader) Bind(ctx context.Context, target string, env *Environment) (Symbol, error) {
	path, err := findModule(target, env)
	if err != nil {
		return Symbol{}, err
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return Symbol{}, fmt.Errorf("failed to read WASM module: %w", err)
	}

	limit := l.MemoryLimitPages
	if limit == 0 {
		limit = defaultMemoryPages
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithMemoryLimitPages(limit).
		WithCloseOnContextDone(true))

	compiled, err := runtime.CompileModule(ctx, code)
	if err != nil {
		runtime.Close(ctx)
		return Symbol{}, fmt.Errorf("failed to compile WASM module: %w", err)
	}

	exports := compiled.ExportedFunctions()
	switch {
	case exports[WasmExportFull] != nil:
		return Symbol{Full: l.full(runtime, compiled, filepath.Base(path), env)}, nil
	case exports[WasmExportMain] != nil:
		return Symbol{Main: l.main(runtime, compiled, filepath.Base(path), env)}, nil
	default:
		runtime.Close(ctx)
		return Symbol{}, nil
	}
}

func (l *WasmLoader) full(runtime wazero.Runtime, compiled wazero.CompiledModule, name string, env *Environment) FullFunc {
	return func(ctx context.Context, _ *Environment, hooks *Hooks, args []string) error {
		defer runtime.Close(ctx)

		if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
			return fmt.Errorf("failed to instantiate WASI: %w", err)
		}

		_, err := runtime.NewHostModuleBuilder(WasmHostModule).
			NewFunctionBuilder().
			WithFunc(func(context.Context) { hooks.Restart() }).
			Export(WasmHostRestart).
			NewFunctionBuilder().
			WithFunc(func(context.Context) { hooks.Shutdown() }).
			Export(WasmHostShutdown).
			Instantiate(ctx)
		if err != nil {
			return fmt.Errorf("failed to instantiate host module: %w", err)
		}

		mod, err := runtime.InstantiateModule(ctx, compiled,
			l.moduleConfig(name, env, args).WithStartFunctions(WasmExportInit))
		if err != nil {
			return fmt.Errorf("failed to instantiate WASM module: %w", err)
		}

		_, err = mod.ExportedFunction(WasmExportFull).Call(ctx)
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			switch exitErr.ExitCode() {
			case 0:
				hooks.Shutdown()
				return nil
			case 99:
				hooks.Restart()
				return nil
			default:
				return fmt.Errorf("module exited with status %d", exitErr.ExitCode())
			}
		}
		return err
	}
}

func (l *WasmLoader) main(runtime wazero.Runtime, compiled wazero.CompiledModule, name string, env *Environment) MainFunc {
	return func(ctx context.Context, args []string) (int, error) {
		defer runtime.Close(ctx)

		if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
			return 0, fmt.Errorf("failed to instantiate WASI: %w", err)
		}

		// Instantiation runs _start.
		_, err := runtime.InstantiateModule(ctx, compiled, l.moduleConfig(name, env, args))
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			return int(exitErr.ExitCode()), nil
		}
		if err != nil {
			return 0, err
		}
		return 0, nil
	}
}

func (l *WasmLoader) moduleConfig(name string, env *Environment, args []string) wazero.ModuleConfig {
	cfg := wazero.NewModuleConfig().
		WithName(strings.TrimSuffix(name, ".wasm")).
		WithArgs(append([]string{name}, args...)...).
		WithStdin(orReader(l.Stdin, os.Stdin)).
		WithStdout(orWriter(l.Stdout, os.Stdout)).
		WithStderr(orWriter(l.Stderr, os.Stderr)).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)

	for _, kv := range env.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		cfg = cfg.WithEnv(key, value)
	}
	if l.Dir != "" {
		cfg = cfg.WithFSConfig(wazero.NewFSConfig().WithDirMount(l.Dir, "/"))
	}
	return cfg
}

func findModule(target string, env *Environment) (string, error) {
	name := target
	if !strings.HasSuffix(name, ".wasm") {
		name += ".wasm"
	}
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("WASM module %s: %w", name, err)
		}
		return name, nil
	}
	if path, ok := env.Lookup(name); ok {
		return path, nil
	}
	return "", fmt.Errorf("WASM module %q is not on the load path", name)
}
