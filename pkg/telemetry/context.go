package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles logging, tracing and metrics for one launcher process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// NewNopTelemetry returns telemetry that discards everything. Tests use it.
func NewNopTelemetry() *Telemetry {
	return &Telemetry{
		Logger:  NewNopLogger(),
		Tracer:  NewNopTracer(),
		Metrics: NewNopMetrics(),
		Config:  DefaultConfig(),
	}
}

// Flush writes the metrics textfile and exports pending spans.
// It runs before the process exits, including exits requested by the application.
func (t *Telemetry) Flush(ctx context.Context) error {
	var errs []error
	if err := t.Metrics.WriteTextfile(); err != nil {
		errs = append(errs, err)
	}
	if err := t.Tracer.ForceFlush(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	flushErr := t.Flush(ctx)
	return errors.Join(flushErr, t.Tracer.Shutdown(ctx))
}

// PhaseContext tracks one pipeline phase across logging, tracing and metrics.
type PhaseContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer

	phase   string
	metrics *Metrics
}

// StartPhase begins an instrumented pipeline phase.
func (t *Telemetry) StartPhase(ctx context.Context, phase string) *PhaseContext {
	spanCtx, span := t.Tracer.StartPhaseSpan(ctx, phase)

	logger := FromContext(ctx).WithPhase(phase)
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &PhaseContext{
		Ctx:     logger.WithContext(spanCtx),
		Span:    span,
		Logger:  logger,
		Timer:   NewTimer(),
		phase:   phase,
		metrics: t.Metrics,
	}
}

// End finishes the phase, recording its duration and success or failure.
func (pc *PhaseContext) End(err error) {
	pc.metrics.RecordPhase(pc.phase, pc.Timer.Duration())
	if err != nil {
		RecordError(pc.Span, err)
	} else {
		RecordSuccess(pc.Span)
	}
	pc.Span.End()
}
