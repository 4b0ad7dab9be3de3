package commands

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/openfroyo/bootstrap/pkg/bootscript"
	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/descriptor"
	"github.com/openfroyo/bootstrap/pkg/extensions"
	"github.com/openfroyo/bootstrap/pkg/launcher"
	"github.com/openfroyo/bootstrap/pkg/loadpath"
	"github.com/openfroyo/bootstrap/pkg/pipeline"
	"github.com/openfroyo/bootstrap/pkg/stores"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

// session is what the commands working on an installation share.
type session struct {
	config     *config.Config
	descriptor *descriptor.Descriptor
	telemetry  *telemetry.Telemetry
	journal    *stores.SQLiteJournal
}

// loadSettings reads the launcher settings. A descriptor named on the command
// line is relative to the current directory.
func loadSettings(descriptorPath string) (*config.Config, error) {
	opts := config.LoadOptions{ConfigFile: configPath, Workdir: workdir}
	if descriptorPath != "" {
		abs, err := filepath.Abs(descriptorPath)
		if err != nil {
			return nil, err
		}
		opts.Descriptor = abs
	}
	return config.Load(opts)
}

// openSession loads settings and the descriptor and starts telemetry. The
// journal is opened when requested and enabled; failing to open it only warns.
func openSession(ctx context.Context, descriptorPath string, withJournal bool) (*session, error) {
	cfg, err := loadSettings(descriptorPath)
	if err != nil {
		return nil, err
	}

	desc, err := descriptor.Load(cfg.DescriptorPath())
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig(buildVersion))
	if err != nil {
		return nil, err
	}

	s := &session{config: cfg, descriptor: desc, telemetry: tel}
	if withJournal && cfg.Journal.Enabled {
		journal, err := stores.OpenJournal(ctx, stores.Config{Path: cfg.JournalPath()})
		if err != nil {
			tel.Logger.WithError(err).Warn("Launch journal unavailable, continuing without it")
		} else {
			s.journal = journal
		}
	}
	return s, nil
}

// Close releases the journal and flushes telemetry.
func (s *session) Close(ctx context.Context) {
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.telemetry.Logger.WithError(err).Warn("Failed to close journal")
		}
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.telemetry.Logger.WithError(err).Warn("Failed to shut down telemetry")
	}
}

// pipeline wires the launch components from the settings.
func (s *session) pipeline(args []string, progress extensions.ProgressFunc) *pipeline.Pipeline {
	cfg := s.config
	logger := s.telemetry.Logger
	metrics := s.telemetry.Metrics

	opts := pipeline.Options{
		Config:     cfg,
		Descriptor: s.descriptor,
		Args:       args,
		BootScripts: bootscript.NewRunner(bootscript.Config{
			ConfDir: cfg.ConfDir(),
			WorkDir: cfg.Workdir,
			Timeout: cfg.BootScriptTimeout,
			Privileged: bootscript.SudoExecutor{
				Credentials: bootscript.StaticCredential(cfg.SudoPassword),
			},
		}, logger, metrics),
		Resolver: extensions.NewResolver(extensions.Config{
			LibraryPatterns: cfg.LibraryPatterns,
			Development:     cfg.Development,
			Progress:        progress,
		}, logger, metrics),
		Assembler: loadpath.NewAssembler(logger, metrics),
		Launcher: launcher.New(launcher.Config{
			Registry: Registry,
			Loaders: map[string]launcher.Loader{
				launcher.SchemeWasm: &launcher.WasmLoader{Dir: cfg.Workdir},
				launcher.SchemeExec: &launcher.ExecLoader{Dir: cfg.Workdir},
			},
		}, logger),
		Telemetry: s.telemetry,
	}
	if s.journal != nil {
		opts.Journal = s.journal
	}
	return pipeline.New(opts)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
