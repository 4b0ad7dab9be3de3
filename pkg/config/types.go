package config

import (
	"path/filepath"
	"time"

	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

// Config holds the launcher settings. The application descriptor is separate.
type Config struct {
	// Workdir is the application installation directory; relative paths resolve against it.
	Workdir string `mapstructure:"workdir" validate:"required"`

	// Descriptor is the application descriptor file.
	Descriptor string `mapstructure:"descriptor" validate:"required"`

	// Development tolerates an empty dist directory and enables watch mode.
	Development bool `mapstructure:"development"`

	// SudoPassword is fed to the privileged executor when elevating boot scripts.
	SudoPassword string `mapstructure:"sudo-password"`

	// BootScriptTimeout bounds each boot script's run time.
	BootScriptTimeout time.Duration `mapstructure:"boot-script-timeout" validate:"gt=0"`

	// LibraryPatterns select which files count as libraries.
	LibraryPatterns []string `mapstructure:"library-patterns" validate:"min=1,dive,required"`

	// ServiceName identifies the launcher in traces.
	ServiceName string `mapstructure:"service-name" validate:"required"`

	// Logging configures structured logging.
	Logging telemetry.LoggingConfig `mapstructure:"logging"`

	// Tracing configures phase tracing.
	Tracing telemetry.TracingConfig `mapstructure:"tracing"`

	// Metrics configures the metrics textfile.
	Metrics telemetry.MetricsConfig `mapstructure:"metrics"`

	// Journal configures the launch journal.
	Journal JournalConfig `mapstructure:"journal"`

	// Supervisor configures the restart loop.
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
}

// JournalConfig configures the SQLite launch journal.
type JournalConfig struct {
	// Enabled controls whether launches are recorded.
	Enabled bool `mapstructure:"enabled"`

	// Path is the database file.
	Path string `mapstructure:"path" validate:"required_if=Enabled true"`
}

// SupervisorConfig configures the supervise command.
type SupervisorConfig struct {
	// MaxRestarts caps consecutive restarts; 0 means unlimited.
	MaxRestarts int `mapstructure:"max-restarts" validate:"gte=0"`

	// RestartDelay is waited before relaunching.
	RestartDelay time.Duration `mapstructure:"restart-delay" validate:"gte=0"`

	// Watch restarts the child when the dist directory changes.
	Watch bool `mapstructure:"watch"`

	// Debounce coalesces bursts of file events.
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

// TelemetryConfig assembles the telemetry settings for this launcher.
func (c *Config) TelemetryConfig(version string) *telemetry.Config {
	metrics := c.Metrics
	metrics.Textfile = c.Resolve(metrics.Textfile)
	return &telemetry.Config{
		ServiceName:    c.ServiceName,
		ServiceVersion: version,
		Logging:        c.Logging,
		Tracing:        c.Tracing,
		Metrics:        metrics,
	}
}

// Resolve returns path unchanged when absolute, otherwise joined to the workdir.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Workdir, path)
}

// DescriptorPath returns the absolute descriptor path.
func (c *Config) DescriptorPath() string {
	return c.Resolve(c.Descriptor)
}

// ConfDir returns the directory scanned for boot scripts.
func (c *Config) ConfDir() string {
	return filepath.Join(c.Workdir, "conf")
}

// ExtDir returns the directory holding prebuilt libraries.
func (c *Config) ExtDir() string {
	return filepath.Join(c.Workdir, "ext")
}

// JournalPath returns the absolute journal database path.
func (c *Config) JournalPath() string {
	return c.Resolve(c.Journal.Path)
}
