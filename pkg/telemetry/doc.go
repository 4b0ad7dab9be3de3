// Package telemetry provides observability instrumentation for the bootstrap launcher.
//
// The telemetry package integrates structured logging (zerolog), tracing
// (OpenTelemetry) and metrics (Prometheus) into one value that is created at
// startup and handed to each component.
//
// # Usage
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.Logger.WithContext(ctx)
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("resolver")
//	logger.WithExtension("reporting").Info("Extracted extension")
//	logger.WithScript("runOnce.sh").WithError(err).Error("Boot script failed")
//
// Console output is coloured only when the destination is a terminal.
//
// # Phases
//
// Every pipeline phase runs inside a PhaseContext, which owns a span, a
// phase-scoped logger and a timer:
//
//	pc := tel.StartPhase(ctx, "extensions_resolved")
//	res, err := resolver.Resolve(pc.Ctx, req)
//	pc.End(err)
//
// # Metrics
//
// The launcher is short-lived, so metrics are not served over HTTP. When
// metrics.textfile is set, Flush writes them in Prometheus text format for a
// node exporter textfile collector to pick up.
package telemetry
