package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "default config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing service name",
			mutate:  func(c *Config) { c.ServiceName = "" },
			wantErr: true,
		},
		{
			name:    "invalid level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "invalid format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name: "unknown exporter when enabled",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "jaeger"
			},
			wantErr: true,
		},
		{
			name:   "unknown exporter when disabled",
			mutate: func(c *Config) { c.Tracing.Exporter = "jaeger" },
		},
		{
			name: "otlp without endpoint",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "otlp"
			},
			wantErr: true,
		},
		{
			name:    "sampling rate out of range",
			mutate:  func(c *Config) { c.Tracing.SamplingRate = 1.5 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "debug").
		NewComponentLogger("resolver").
		WithRunID("run-1").
		WithExtension("reporting")

	logger.Info("Extracted extension")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}

	want := map[string]string{
		"component": "resolver",
		"run_id":    "run-1",
		"extension": "reporting",
		"message":   "Extracted extension",
		"level":     "info",
	}
	for key, value := range want {
		if entry[key] != value {
			t.Errorf("field %s = %v, want %s", key, entry[key], value)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message written at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message missing")
	}
}

func TestLoggerContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "info").WithScript("runOnce.sh")
	ctx := logger.WithContext(context.Background())

	FromContext(ctx).Info("from context")

	if !strings.Contains(buf.String(), `"script":"runOnce.sh"`) {
		t.Errorf("context logger lost fields: %s", buf.String())
	}
}

func TestMetricsTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.prom")
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "bootstrap", Textfile: path})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordRunStarted()
	m.RecordExtension(12, 1)
	m.RecordLoadPath(5, 2, 1)
	m.RecordRunCompleted("shutdown")

	if err := m.WriteTextfile(); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("textfile not written: %v", err)
	}
	for _, want := range []string{
		"bootstrap_runs_started_total 1",
		"bootstrap_archive_entries_written_total 12",
		"bootstrap_libraries_skipped_total 2",
		`bootstrap_runs_completed_total{outcome="shutdown"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.prom")
	m, err := NewMetrics(MetricsConfig{Enabled: false, Textfile: path})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordRunStarted()
	m.RecordBootScript(true, false)
	m.RecordError("fatal", "CONFIGURATION")

	if err := m.WriteTextfile(); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("disabled metrics wrote a textfile")
	}
	if m.Gatherer() != nil {
		t.Error("disabled metrics exposed a gatherer")
	}
}

func TestStartPhase(t *testing.T) {
	tel := NewNopTelemetry()
	pc := tel.StartPhase(context.Background(), "extensions_resolved")
	if pc.Ctx == nil || pc.Logger == nil {
		t.Fatal("phase context incomplete")
	}
	pc.End(errors.New("boom"))

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
