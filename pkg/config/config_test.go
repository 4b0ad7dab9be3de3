package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/extensions"
)

func writeSettings(t *testing.T, dir, content string) {
	t.Helper()
	path := filepath.Join(dir, DefaultConfigFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(LoadOptions{Workdir: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BootScriptTimeout != 10*time.Minute {
		t.Errorf("BootScriptTimeout = %v, want 10m", cfg.BootScriptTimeout)
	}
	if !reflect.DeepEqual(cfg.LibraryPatterns, extensions.DefaultLibraryPatterns) {
		t.Errorf("LibraryPatterns = %v", cfg.LibraryPatterns)
	}
	if cfg.DescriptorPath() != filepath.Join(dir, DefaultDescriptor) {
		t.Errorf("DescriptorPath() = %q", cfg.DescriptorPath())
	}
	if cfg.ConfDir() != filepath.Join(dir, "conf") || cfg.ExtDir() != filepath.Join(dir, "ext") {
		t.Errorf("ConfDir() = %q, ExtDir() = %q", cfg.ConfDir(), cfg.ExtDir())
	}
	if cfg.Journal.Enabled {
		t.Error("journal enabled by default")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, `
development: true
boot-script-timeout: 30s
library-patterns: ["*.wasm"]
journal:
  enabled: true
  path: state/journal.db
supervisor:
  max-restarts: 3
  restart-delay: 2s
`)
	t.Setenv("BOOTSTRAP_SUDO_PASSWORD", "secret")
	t.Setenv("BOOTSTRAP_SUPERVISOR_MAX_RESTARTS", "7")

	cfg, err := Load(LoadOptions{Workdir: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Development {
		t.Error("Development = false")
	}
	if cfg.BootScriptTimeout != 30*time.Second {
		t.Errorf("BootScriptTimeout = %v", cfg.BootScriptTimeout)
	}
	if !reflect.DeepEqual(cfg.LibraryPatterns, []string{"*.wasm"}) {
		t.Errorf("LibraryPatterns = %v", cfg.LibraryPatterns)
	}
	if cfg.SudoPassword != "secret" {
		t.Errorf("SudoPassword = %q, want env override", cfg.SudoPassword)
	}
	if cfg.Supervisor.MaxRestarts != 7 {
		t.Errorf("MaxRestarts = %d, want env override 7", cfg.Supervisor.MaxRestarts)
	}
	if cfg.Supervisor.RestartDelay != 2*time.Second {
		t.Errorf("RestartDelay = %v", cfg.Supervisor.RestartDelay)
	}
	if cfg.JournalPath() != filepath.Join(dir, "state", "journal.db") {
		t.Errorf("JournalPath() = %q", cfg.JournalPath())
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, development should default to debug", cfg.Logging.Level)
	}
	if got := cfg.Summary()["sudo-password"]; got != "(set)" {
		t.Errorf("Summary() leaked or dropped password: %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		settings string
		opts     func(dir string) LoadOptions
	}{
		{
			name: "missing explicit file",
			opts: func(dir string) LoadOptions {
				return LoadOptions{Workdir: dir, ConfigFile: filepath.Join(dir, "nope.yaml")}
			},
		},
		{
			name:     "zero timeout",
			settings: "boot-script-timeout: 0s\n",
			opts:     func(dir string) LoadOptions { return LoadOptions{Workdir: dir} },
		},
		{
			name:     "empty patterns",
			settings: "library-patterns: []\n",
			opts:     func(dir string) LoadOptions { return LoadOptions{Workdir: dir} },
		},
		{
			name:     "bad log level",
			settings: "logging:\n  level: loud\n",
			opts:     func(dir string) LoadOptions { return LoadOptions{Workdir: dir} },
		},
		{
			name:     "malformed yaml",
			settings: "logging: [\n",
			opts:     func(dir string) LoadOptions { return LoadOptions{Workdir: dir} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.settings != "" {
				writeSettings(t, dir, tt.settings)
			}
			_, err := Load(tt.opts(dir))
			if !engine.IsConfigurationError(err) {
				t.Errorf("Load() error = %v, want configuration error", err)
			}
		})
	}
}

func TestLoadDescriptorOverride(t *testing.T) {
	dir := t.TempDir()
	alt := filepath.Join(dir, "other.properties")

	cfg, err := Load(LoadOptions{Workdir: dir, Descriptor: alt})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DescriptorPath() != alt {
		t.Errorf("DescriptorPath() = %q, want %q", cfg.DescriptorPath(), alt)
	}
}

func TestTelemetryConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workdir = "/opt/app"
	cfg.Metrics.Textfile = "tmp/bootstrap.prom"

	tel := cfg.TelemetryConfig("1.2.3")
	if tel.ServiceVersion != "1.2.3" || tel.ServiceName != "bootstrap" {
		t.Errorf("service = %q %q", tel.ServiceName, tel.ServiceVersion)
	}
	if tel.Metrics.Textfile != filepath.Join("/opt/app", "tmp", "bootstrap.prom") {
		t.Errorf("Textfile = %q", tel.Metrics.Textfile)
	}
}
