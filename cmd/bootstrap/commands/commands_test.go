package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/launcher"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// installation lays out a development installation whose entry point is the
// built-in diagnostics symbol.
func installation(t *testing.T, mainEntry string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "conf", "bootstrap.yaml"), `development: true
logging:
  output: '`+filepath.ToSlash(filepath.Join(dir, "bootstrap.log"))+`'
journal:
  enabled: true
metrics:
  textfile: '`+filepath.ToSlash(filepath.Join(dir, "state", "metrics.prom"))+`'
`)
	writeFile(t, filepath.Join(dir, "conf", "application.properties"), `id=demo
name=Demo
main-entry=`+mainEntry+`
greeting=hello
`)
	writeFile(t, filepath.Join(dir, "ext", "core.jar"), "jar")
	return dir
}

func run(t *testing.T, args ...string) (int, string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand("test", "none", "today")
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	code, err := execute(context.Background(), cmd)
	return code, out.String(), err
}

func TestRunDiagnosticsAndHistory(t *testing.T) {
	var diag bytes.Buffer
	launcher.RegisterBuiltins(Registry, &diag)
	dir := installation(t, launcher.DiagnosticsEntryPoint)

	code, _, err := run(t, "run", "--workdir", dir, "--", "--flag", "x")
	if err != nil || code != engine.ExitShutdown {
		t.Fatalf("run = %d, %v", code, err)
	}
	for _, want := range []string{"Demo (demo)", "core.jar", "greeting", `"--flag"`, "bootstrap.productName"} {
		if !strings.Contains(diag.String(), want) {
			t.Errorf("diagnostics output missing %q:\n%s", want, diag.String())
		}
	}

	metrics, err := os.ReadFile(filepath.Join(dir, "state", "metrics.prom"))
	if err != nil {
		t.Fatalf("metrics textfile: %v", err)
	}
	if !strings.Contains(string(metrics), "bootstrap_runs_started_total") {
		t.Errorf("metrics textfile = %s", metrics)
	}

	code, out, err := run(t, "history", "--workdir", dir, "--json")
	if err != nil || code != engine.ExitShutdown {
		t.Fatalf("history = %d, %v", code, err)
	}
	var runs []engine.RunRecord
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("history output: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].Outcome != engine.OutcomeShutdown || runs[0].DescriptorID != "demo" {
		t.Errorf("history = %+v", runs)
	}
}

func TestRunExitStatus(t *testing.T) {
	tests := []struct {
		name      string
		mainEntry string
		wantCode  int
	}{
		{name: "unregistered entry point", mainEntry: "com.example.Missing", wantCode: engine.ExitEntryPoint},
		{name: "unknown scheme", mainEntry: "jar:app", wantCode: engine.ExitEntryPoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := installation(t, tt.mainEntry)
			code, _, err := run(t, "run", "--workdir", dir)
			if code != tt.wantCode {
				t.Errorf("run = %d, want %d", code, tt.wantCode)
			}
			if !engine.IsEntryPointError(err) {
				t.Errorf("run error = %v, want EntryPointError", err)
			}
		})
	}
}

func TestRunMissingEntryHasNoSideEffects(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("boot scripts are shell scripts")
	}
	dir := installation(t, "app.Main")
	writeFile(t, filepath.Join(dir, "conf", "application.properties"), "id=demo\nname=Demo\n")
	marker := filepath.Join(dir, "script-ran")
	script := filepath.Join(dir, "conf", "runOnce.sh")
	writeFile(t, script, "#!/bin/sh\ntouch '"+marker+"'\n")
	if err := os.Chmod(script, 0o755); err != nil {
		t.Fatal(err)
	}

	code, _, err := run(t, "run", "--workdir", dir)
	if code != engine.ExitStartupFailure || !engine.IsConfigurationError(err) {
		t.Fatalf("run = %d, %v", code, err)
	}
	for _, name := range []string{"tmp", "state", "script-ran"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s exists after a configuration failure", name)
		}
	}
	if _, err := os.Stat(script); err != nil {
		t.Errorf("boot script removed: %v", err)
	}
}

func TestValidate(t *testing.T) {
	dir := installation(t, "app.Main")

	code, out, err := run(t, "validate", "--workdir", dir)
	if err != nil || code != engine.ExitShutdown {
		t.Fatalf("validate = %d, %v", code, err)
	}
	if !strings.Contains(out, "Configuration is valid") || !strings.Contains(out, "app.Main") {
		t.Errorf("validate output:\n%s", out)
	}
	if !strings.Contains(out, "entry point app.Main is not registered") {
		t.Errorf("validate did not warn about the unregistered entry point:\n%s", out)
	}

	launcher.RegisterBuiltins(Registry, io.Discard)
	writeFile(t, filepath.Join(dir, "conf", "application.properties"),
		"id=demo\nname=Demo\nmain-entry="+launcher.DiagnosticsEntryPoint+"\n")
	_, out, _ = run(t, "validate", "--workdir", dir)
	if strings.Contains(out, "is not registered") || !strings.Contains(out, launcher.DiagnosticsEntryPoint) {
		t.Errorf("validate output for a registered entry point:\n%s", out)
	}

	writeFile(t, filepath.Join(dir, "conf", "application.properties"), "id=demo\nname=Demo\n")
	code, _, err = run(t, "validate", "--workdir", dir)
	if code != engine.ExitStartupFailure || !engine.IsConfigurationError(err) {
		t.Errorf("validate without main-entry = %d, %v", code, err)
	}
}

func TestHistoryWithoutJournal(t *testing.T) {
	dir := t.TempDir()
	code, out, err := run(t, "history", "--workdir", dir)
	if err != nil || code != engine.ExitShutdown {
		t.Fatalf("history = %d, %v", code, err)
	}
	if !strings.Contains(out, "No launches recorded") {
		t.Errorf("history output = %q", out)
	}
}

func TestRunArgs(t *testing.T) {
	configPath, jsonOutput = "", false
	got, err := runArgs("/opt/app", "/opt/app/conf/application.properties", []string{"--port", "8443"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"run", "--workdir", "/opt/app", "--props", "/opt/app/conf/application.properties", "--", "--port", "8443"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("runArgs() = %v, want %v", got, want)
	}
}
