package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/extensions"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

const (
	// EnvPrefix prefixes every environment override, e.g. BOOTSTRAP_SUDO_PASSWORD.
	EnvPrefix = "BOOTSTRAP"

	// DefaultConfigFile is the settings file, relative to the workdir.
	DefaultConfigFile = "conf/bootstrap.yaml"

	// DefaultDescriptor is the application descriptor, relative to the workdir.
	DefaultDescriptor = "conf/application.properties"
)

// LoadOptions control where settings are read from.
type LoadOptions struct {
	// ConfigFile is an explicit settings file; it must exist when set.
	ConfigFile string

	// Workdir overrides the configured workdir.
	Workdir string

	// Descriptor overrides the configured descriptor path.
	Descriptor string
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	tel := telemetry.DefaultConfig()
	return &Config{
		Workdir:           ".",
		Descriptor:        DefaultDescriptor,
		BootScriptTimeout: 10 * time.Minute,
		LibraryPatterns:   append([]string(nil), extensions.DefaultLibraryPatterns...),
		ServiceName:       tel.ServiceName,
		Logging:           tel.Logging,
		Tracing:           tel.Tracing,
		Metrics:           tel.Metrics,
		Journal: JournalConfig{
			Enabled: false,
			Path:    "state/journal.db",
		},
		Supervisor: SupervisorConfig{
			MaxRestarts:  0,
			RestartDelay: time.Second,
			Debounce:     500 * time.Millisecond,
		},
	}
}

// Load reads settings from defaults, the settings file and BOOTSTRAP_* environment
// variables, in increasing precedence, then applies opts and validates the result.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	workdir := opts.Workdir
	if workdir == "" {
		workdir = v.GetString("workdir")
	}

	configFile := opts.ConfigFile
	if configFile == "" {
		candidate := filepath.Join(workdir, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
		}
	} else if _, err := os.Stat(configFile); err != nil {
		return nil, engine.NewConfigurationError("settings file not found", err).WithPath(configFile)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, engine.NewConfigurationError("cannot read settings file", err).WithPath(configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, engine.NewConfigurationError("failed to parse settings", err).WithPath(configFile)
	}

	if opts.Workdir != "" {
		cfg.Workdir = opts.Workdir
	}
	if opts.Descriptor != "" {
		cfg.Descriptor = opts.Descriptor
	}

	abs, err := filepath.Abs(cfg.Workdir)
	if err != nil {
		return nil, engine.NewConfigurationError("cannot resolve workdir", err).WithPath(cfg.Workdir)
	}
	cfg.Workdir = abs

	if cfg.Development && !v.IsSet("logging.level") {
		cfg.Logging.Level = telemetry.DevelopmentConfig().Logging.Level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and the telemetry settings.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return engine.NewConfigurationError("invalid settings", err)
	}
	if err := c.TelemetryConfig("").Validate(); err != nil {
		return engine.NewConfigurationError("invalid telemetry settings", err)
	}
	return nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("workdir", d.Workdir)
	v.SetDefault("descriptor", d.Descriptor)
	v.SetDefault("development", d.Development)
	v.SetDefault("sudo-password", d.SudoPassword)
	v.SetDefault("boot-script-timeout", d.BootScriptTimeout)
	v.SetDefault("library-patterns", d.LibraryPatterns)

	v.SetDefault("service-name", d.ServiceName)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.caller", d.Logging.EnableCaller)
	v.SetDefault("logging.no-color", d.Logging.NoColor)
	v.SetDefault("logging.time-format", d.Logging.TimeFormat)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.sampling-rate", d.Tracing.SamplingRate)
	v.SetDefault("tracing.export-timeout", d.Tracing.ExportTimeout)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)

	v.SetDefault("journal.enabled", d.Journal.Enabled)
	v.SetDefault("journal.path", d.Journal.Path)

	v.SetDefault("supervisor.max-restarts", d.Supervisor.MaxRestarts)
	v.SetDefault("supervisor.restart-delay", d.Supervisor.RestartDelay)
	v.SetDefault("supervisor.watch", d.Supervisor.Watch)
	v.SetDefault("supervisor.debounce", d.Supervisor.Debounce)
}

// Summary renders the effective settings without secrets.
func (c *Config) Summary() map[string]string {
	password := ""
	if c.SudoPassword != "" {
		password = "(set)"
	}
	return map[string]string{
		"workdir":             c.Workdir,
		"descriptor":          c.DescriptorPath(),
		"development":         fmt.Sprint(c.Development),
		"sudo-password":       password,
		"boot-script-timeout": c.BootScriptTimeout.String(),
		"library-patterns":    strings.Join(c.LibraryPatterns, ","),
		"journal":             fmt.Sprintf("%v (%s)", c.Journal.Enabled, c.JournalPath()),
		"logging.level":       c.Logging.Level,
	}
}
