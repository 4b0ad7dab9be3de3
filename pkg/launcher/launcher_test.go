package launcher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

type exitRecorder struct {
	codes []int
}

func (e *exitRecorder) exit(code int) {
	e.codes = append(e.codes, code)
}

func newTestLauncher(reg *StaticRegistry, rec *exitRecorder) *Launcher {
	return New(Config{Registry: reg, Exit: rec.exit}, telemetry.NewNopLogger())
}

func TestConventionRanking(t *testing.T) {
	full := func(context.Context, *Environment, *Hooks, []string) error { return nil }
	hooks := func(context.Context, *Environment, *Hooks) error { return nil }
	main := func(context.Context, []string) (int, error) { return 0, nil }

	tests := []struct {
		name string
		sym  Symbol
		want Convention
	}{
		{"all", Symbol{Full: full, Hooks: hooks, Main: main}, ConventionFull},
		{"hooks and main", Symbol{Hooks: hooks, Main: main}, ConventionHooks},
		{"main", Symbol{Main: main}, ConventionMain},
		{"none", Symbol{}, ConventionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sym.Convention(); got != tt.want {
				t.Errorf("Convention() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLaunchUsesHighestConventionOnly(t *testing.T) {
	var called []string
	reg := NewStaticRegistry()
	reg.Register("com.example.App", Symbol{
		Full: func(_ context.Context, env *Environment, _ *Hooks, args []string) error {
			called = append(called, "full:"+strings.Join(args, ","))
			return nil
		},
		Main: func(context.Context, []string) (int, error) {
			called = append(called, "main")
			return 0, nil
		},
	})

	rec := &exitRecorder{}
	res, err := newTestLauncher(reg, rec).Launch(context.Background(), engine.LaunchRequest{
		EntryPoint: "com.example.App",
		Args:       []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if res != engine.ResultForExit(0) {
		t.Errorf("result = %+v, want shutdown", res)
	}
	if len(called) != 1 || called[0] != "full:a,b" {
		t.Errorf("called = %v", called)
	}
	if len(rec.codes) != 0 {
		t.Errorf("exit called without a hook: %v", rec.codes)
	}
}

func TestLaunchHooks(t *testing.T) {
	tests := []struct {
		name     string
		fire     func(*Hooks)
		wantCode int
		want     engine.Outcome
	}{
		{"restart", func(h *Hooks) { h.Restart() }, engine.ExitRestart, engine.OutcomeRestart},
		{"shutdown", func(h *Hooks) { h.Shutdown() }, engine.ExitShutdown, engine.OutcomeShutdown},
		{"first hook wins", func(h *Hooks) { h.Restart(); h.Shutdown() }, engine.ExitRestart, engine.OutcomeRestart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewStaticRegistry()
			reg.Register("app", Symbol{
				Hooks: func(_ context.Context, _ *Environment, h *Hooks) error {
					tt.fire(h)
					return nil
				},
			})

			var before []engine.LaunchResult
			rec := &exitRecorder{}
			res, err := newTestLauncher(reg, rec).Launch(context.Background(), engine.LaunchRequest{
				EntryPoint: "app",
				BeforeExit: func(r engine.LaunchResult) { before = append(before, r) },
			})
			if err != nil {
				t.Fatalf("Launch() error = %v", err)
			}
			if res.Outcome != tt.want || res.ExitCode != tt.wantCode {
				t.Errorf("result = %+v", res)
			}
			if len(rec.codes) != 1 || rec.codes[0] != tt.wantCode {
				t.Errorf("exit codes = %v, want [%d]", rec.codes, tt.wantCode)
			}
			if len(before) != 1 || before[0].ExitCode != tt.wantCode {
				t.Errorf("BeforeExit calls = %v", before)
			}
		})
	}
}

func TestLaunchMainStatus(t *testing.T) {
	tests := []struct {
		name string
		code int
		want engine.Outcome
	}{
		{"zero", 0, engine.OutcomeShutdown},
		{"restart", 99, engine.OutcomeRestart},
		{"other", 3, engine.OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewStaticRegistry()
			reg.Register("app", Symbol{Main: func(context.Context, []string) (int, error) { return tt.code, nil }})

			res, err := newTestLauncher(reg, &exitRecorder{}).Launch(context.Background(), engine.LaunchRequest{EntryPoint: "app"})
			if err != nil {
				t.Fatalf("Launch() error = %v", err)
			}
			if res.Outcome != tt.want || res.ExitCode != tt.code {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestLaunchFailures(t *testing.T) {
	reg := NewStaticRegistry()
	reg.Register("failing", Symbol{Main: func(context.Context, []string) (int, error) { return 0, errors.New("boom") }})
	reg.Register("panicking", Symbol{Hooks: func(context.Context, *Environment, *Hooks) error { panic("kaboom") }})
	reg.Register("empty", Symbol{})

	tests := []struct {
		name  string
		entry string
		want  string
	}{
		{"unregistered", "com.example.Missing", "cannot bind"},
		{"unknown scheme", "jar:app", "unknown entry point scheme"},
		{"no convention", "empty", "no calling convention"},
		{"returns error", "failing", "boom"},
		{"panics", "panicking", "kaboom"},
		{"missing wasm module", "wasm:absent", "not on the load path"},
		{"missing program", "exec:absent", "not on the load path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestLauncher(reg, &exitRecorder{}).Launch(context.Background(), engine.LaunchRequest{EntryPoint: tt.entry})
			if !engine.IsEntryPointError(err) {
				t.Fatalf("Launch() error = %v, want entry point error", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
			if res.ExitCode != engine.ExitEntryPoint || engine.ExitCode(err) != engine.ExitEntryPoint {
				t.Errorf("exit code = %d / %d, want 2", res.ExitCode, engine.ExitCode(err))
			}
		})
	}
}

func TestEnvironment(t *testing.T) {
	settings := map[string]string{"bootstrap.id": "hs"}
	env := NewEnvironment(engine.LaunchRequest{
		RunID:   "run-1",
		AppID:   "hs",
		AppName: "Server",
		LoadPath: &engine.LoadPath{
			Entries:   []engine.LibraryReference{engine.NewLibraryReference("/tmp/core/core.jar", "core", engine.SourceExtension)},
			NativeDir: "/tmp/lib",
		},
		Settings: settings,
	})

	settings["bootstrap.id"] = "changed"
	if v, _ := env.Setting("bootstrap.id"); v != "hs" {
		t.Errorf("settings not copied: %q", v)
	}
	env.Settings()["bootstrap.id"] = "changed"
	if v, _ := env.Setting("bootstrap.id"); v != "hs" {
		t.Errorf("Settings() exposed internal map")
	}
	if v, _ := env.Setting(SettingNativeDir); v != "/tmp/lib" {
		t.Errorf("%s = %q", SettingNativeDir, v)
	}
	if path, ok := env.Lookup("core.jar"); !ok || path != "/tmp/core/core.jar" {
		t.Errorf("Lookup() = %q, %v", path, ok)
	}

	want := []string{"bootstrap.id=hs", "bootstrap.loadPath=/tmp/core/core.jar", "bootstrap.nativeDir=/tmp/lib", "bootstrap.runId=run-1"}
	if got := env.Environ(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Environ() = %v", got)
	}
}

func TestDiagnostics(t *testing.T) {
	var out bytes.Buffer
	reg := NewStaticRegistry()
	RegisterBuiltins(reg, &out)

	res, err := newTestLauncher(reg, &exitRecorder{}).Launch(context.Background(), engine.LaunchRequest{
		RunID:      "run-42",
		AppID:      "hs",
		AppName:    "Server",
		EntryPoint: DiagnosticsEntryPoint,
		LoadPath: &engine.LoadPath{
			Entries: []engine.LibraryReference{engine.NewLibraryReference("/tmp/a.jar", "a", engine.SourceExtension)},
		},
		Settings: map[string]string{"bootstrap.productName": "Server"},
	})
	if err != nil || res.Outcome != engine.OutcomeShutdown {
		t.Fatalf("Launch() = %+v, %v", res, err)
	}
	for _, want := range []string{"run-42", "Server (hs)", "/tmp/a.jar", "bootstrap.productName"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestExecLoader(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on Windows")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "app.sh")
	body := "#!/bin/sh\necho \"$1\"\nexit 99\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	l := New(Config{
		Loaders: map[string]Loader{SchemeExec: &ExecLoader{Dir: dir, Stdout: &out}},
		Exit:    (&exitRecorder{}).exit,
	}, telemetry.NewNopLogger())

	res, err := l.Launch(context.Background(), engine.LaunchRequest{
		EntryPoint: "exec:app.sh",
		Args:       []string{"hello"},
		LoadPath: &engine.LoadPath{
			Entries: []engine.LibraryReference{engine.NewLibraryReference(script, "ext", engine.SourceExtDir)},
		},
	})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if res.Outcome != engine.OutcomeRestart || res.ExitCode != 99 {
		t.Errorf("result = %+v, want restart", res)
	}
	if !strings.HasPrefix(out.String(), "hello") {
		t.Errorf("output = %q", out.String())
	}
}

// Minimal hand-assembled modules.
var (
	wasmHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// type 0: () -> ()
	wasmTypeSection = []byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00}

	// one function of type 0
	wasmFuncSection = []byte{0x03, 0x02, 0x01, 0x00}

	// _start: empty body
	wasmStartModule = concat(wasmHeader, wasmTypeSection, wasmFuncSection,
		[]byte{0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00},
		[]byte{0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b},
	)

	// exports "other" only
	wasmNoEntryModule = concat(wasmHeader, wasmTypeSection, wasmFuncSection,
		[]byte{0x07, 0x09, 0x01, 0x05, 'o', 't', 'h', 'e', 'r', 0x00, 0x00},
		[]byte{0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b},
	)

	// imports bootstrap.restart; run_application calls it
	wasmFullModule = concat(wasmHeader, wasmTypeSection,
		[]byte{0x02, 0x15, 0x01,
			0x09, 'b', 'o', 'o', 't', 's', 't', 'r', 'a', 'p',
			0x07, 'r', 'e', 's', 't', 'a', 'r', 't',
			0x00, 0x00},
		wasmFuncSection,
		[]byte{0x07, 0x13, 0x01, 0x0f,
			'r', 'u', 'n', '_', 'a', 'p', 'p', 'l', 'i', 'c', 'a', 't', 'i', 'o', 'n',
			0x00, 0x01},
		[]byte{0x0a, 0x06, 0x01, 0x04, 0x00, 0x10, 0x00, 0x0b},
	)
)

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestWasmLoader(t *testing.T) {
	tests := []struct {
		name       string
		module     []byte
		wantErr    bool
		wantResult engine.LaunchResult
		wantExits  []int
	}{
		{name: "full convention restart hook", module: wasmFullModule, wantResult: engine.ResultForExit(99), wantExits: []int{99}},
		{name: "main convention", module: wasmStartModule, wantResult: engine.ResultForExit(0)},
		{name: "no entry export", module: wasmNoEntryModule, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "app.wasm")
			if err := os.WriteFile(path, tt.module, 0o644); err != nil {
				t.Fatal(err)
			}

			rec := &exitRecorder{}
			l := New(Config{
				Loaders: map[string]Loader{SchemeWasm: &WasmLoader{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}},
				Exit:    rec.exit,
			}, telemetry.NewNopLogger())

			res, err := l.Launch(context.Background(), engine.LaunchRequest{
				EntryPoint: "wasm:app",
				LoadPath: &engine.LoadPath{
					Entries: []engine.LibraryReference{engine.NewLibraryReference(path, "app", engine.SourceExtension)},
				},
			})
			if tt.wantErr {
				if !engine.IsEntryPointError(err) {
					t.Errorf("Launch() error = %v, want entry point error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Launch() error = %v", err)
			}
			if res != tt.wantResult {
				t.Errorf("result = %+v, want %+v", res, tt.wantResult)
			}
			if len(rec.codes) != len(tt.wantExits) {
				t.Errorf("exit codes = %v, want %v", rec.codes, tt.wantExits)
			}
		})
	}
}

func TestSplitEntryPoint(t *testing.T) {
	tests := []struct {
		entry, scheme, target string
	}{
		{"com.example.Main", "", "com.example.Main"},
		{"wasm:server", "wasm", "server"},
		{"exec:/opt/app/bin/server", "exec", "/opt/app/bin/server"},
		{`C:\app\server.exe`, "", `C:\app\server.exe`},
	}
	for _, tt := range tests {
		scheme, target := SplitEntryPoint(tt.entry)
		if scheme != tt.scheme || target != tt.target {
			t.Errorf("SplitEntryPoint(%q) = %q, %q", tt.entry, scheme, target)
		}
	}
}
