package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for the launcher.
// A disabled instance accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec

	// Boot script metrics
	bootScripts *prometheus.CounterVec

	// Resolution metrics
	extensionsResolved    prometheus.Counter
	extractionFailures    prometheus.Counter
	entriesWritten        prometheus.Counter
	entryWriteFailures    prometheus.Counter
	librariesIncluded     prometheus.Gauge
	librariesSkipped      prometheus.Counter
	nativeLibrariesStaged prometheus.Counter

	// Error metrics
	errorsByCode *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of launches started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of launches completed by outcome",
			},
			[]string{"outcome"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of pipeline phases in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		bootScripts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "boot_scripts_total",
				Help:      "Total number of boot scripts executed by result",
			},
			[]string{"result", "elevated"},
		),
		extensionsResolved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extensions_resolved_total",
				Help:      "Total number of extension packages extracted",
			},
		),
		extractionFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extraction_failures_total",
				Help:      "Total number of archives that could not be extracted",
			},
		),
		entriesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_entries_written_total",
				Help:      "Total number of archive entries written",
			},
		),
		entryWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_entry_failures_total",
				Help:      "Total number of archive entries that failed to write",
			},
		),
		librariesIncluded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "load_path_entries",
				Help:      "Number of entries on the assembled load path",
			},
		),
		librariesSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "libraries_skipped_total",
				Help:      "Total number of duplicate libraries dropped from the load path",
			},
		),
		nativeLibrariesStaged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "native_libraries_staged_total",
				Help:      "Total number of native libraries copied to the staging area",
			},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by class and code",
			},
			[]string{"class", "code"},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.phaseDuration,
		m.bootScripts,
		m.extensionsResolved,
		m.extractionFailures,
		m.entriesWritten,
		m.entryWriteFailures,
		m.librariesIncluded,
		m.librariesSkipped,
		m.nativeLibrariesStaged,
		m.errorsByCode,
	)

	return m, nil
}

// NewNopMetrics returns a disabled metrics collector.
func NewNopMetrics() *Metrics {
	return &Metrics{}
}

// Run Metrics

// RecordRunStarted increments the counter for started launches.
func (m *Metrics) RecordRunStarted() {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.Inc()
}

// RecordRunCompleted records a completed launch with its outcome.
func (m *Metrics) RecordRunCompleted(outcome string) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(outcome).Inc()
}

// RecordPhase records how long a pipeline phase took.
func (m *Metrics) RecordPhase(phase string, duration time.Duration) {
	if m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// Boot Script Metrics

// RecordBootScript records one boot script execution.
func (m *Metrics) RecordBootScript(success, elevated bool) {
	if m.bootScripts == nil {
		return
	}
	result := "failed"
	if success {
		result = "succeeded"
	}
	label := "false"
	if elevated {
		label = "true"
	}
	m.bootScripts.WithLabelValues(result, label).Inc()
}

// Resolution Metrics

// RecordExtension records one extension package extracted.
func (m *Metrics) RecordExtension(entries, failures int) {
	if m.extensionsResolved == nil {
		return
	}
	m.extensionsResolved.Inc()
	m.entriesWritten.Add(float64(entries))
	m.entryWriteFailures.Add(float64(failures))
}

// RecordExtractionFailure records an archive that could not be extracted.
func (m *Metrics) RecordExtractionFailure() {
	if m.extractionFailures == nil {
		return
	}
	m.extractionFailures.Inc()
}

// RecordLoadPath records the size of the assembled load path.
func (m *Metrics) RecordLoadPath(entries, skipped, staged int) {
	if m.librariesIncluded == nil {
		return
	}
	m.librariesIncluded.Set(float64(entries))
	m.librariesSkipped.Add(float64(skipped))
	m.nativeLibrariesStaged.Add(float64(staged))
}

// Error Metrics

// RecordError records an error by class and code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByCode == nil {
		return
	}
	m.errorsByCode.WithLabelValues(errorClass, errorCode).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Gatherer returns the registry backing the metrics, or nil when disabled.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m.registry == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the collected metrics in Prometheus text format to the
// configured textfile. It does nothing when metrics are disabled or no textfile is set.
func (m *Metrics) WriteTextfile() error {
	if m.registry == nil || m.config.Textfile == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.config.Textfile, m.registry)
}
