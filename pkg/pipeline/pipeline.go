// Package pipeline drives one launch: boot scripts, extension resolution,
// load path assembly and the application entry point, in that order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/descriptor"
	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

// Settings exported to the application alongside the descriptor's own.
const (
	SettingArchivesDir   = "bootstrap.archivesDir"
	SettingDistDir       = "bootstrap.distDir"
	SettingSystemArchive = "bootstrap.systemArchive"
	SettingArchives      = "bootstrap.archives"
	SettingID            = "bootstrap.id"
	SettingProductName   = "bootstrap.productName"
	SettingRepos         = "bootstrap.repos"
)

// nativeDirName is the staging directory under the temporary root.
const nativeDirName = "lib"

// Options wires a Pipeline.
type Options struct {
	Config     *config.Config
	Descriptor *descriptor.Descriptor

	// Args are forwarded to the entry point.
	Args []string

	BootScripts engine.BootScriptRunner
	Resolver    engine.ExtensionResolver
	Assembler   engine.LoadPathAssembler
	Launcher    engine.ApplicationLauncher

	// Journal is optional.
	Journal engine.Journal

	Telemetry *telemetry.Telemetry

	// RunID identifies the launch; a random UUID when empty.
	RunID string
}

// Pipeline runs the launch phases and records the outcome.
type Pipeline struct {
	opts   Options
	logger *telemetry.Logger

	mu     sync.Mutex
	record *engine.RunRecord
	once   sync.Once
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewNopTelemetry()
	}
	return &Pipeline{
		opts:   opts,
		logger: opts.Telemetry.Logger.NewComponentLogger("pipeline").WithRunID(opts.RunID),
		record: &engine.RunRecord{
			RunID:        opts.RunID,
			DescriptorID: opts.Descriptor.ID(),
			EntryPoint:   opts.Descriptor.MainEntry(),
			Phase:        engine.PhaseInit,
		},
	}
}

// RunID returns the launch identifier.
func (p *Pipeline) RunID() string {
	return p.opts.RunID
}

// Record returns a copy of the run record as it stands.
func (p *Pipeline) Record() engine.RunRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.record
}

// Run executes every phase and launches the application. A hook fired by the
// application ends the process before Run returns; the run is recorded first.
func (p *Pipeline) Run(ctx context.Context) (engine.LaunchResult, error) {
	tel := p.opts.Telemetry
	ctx = p.logger.WithContext(ctx)
	ctx, span := tel.Tracer.StartRunSpan(ctx, p.opts.RunID, p.opts.Descriptor.ID())
	defer span.End()

	p.mu.Lock()
	p.record.StartedAt = time.Now()
	p.mu.Unlock()
	tel.Metrics.RecordRunStarted()
	p.logger.Infof("Starting %s (%s)", p.opts.Descriptor.Name(), p.opts.Descriptor.ID())

	scripts, err := p.runBootScripts(ctx)
	p.mu.Lock()
	p.record.BootScripts = scripts
	p.mu.Unlock()
	if err != nil {
		return p.fail(ctx, err)
	}

	res, lp, err := p.prepare(ctx, true)
	if err != nil {
		return p.fail(ctx, err)
	}

	req := engine.LaunchRequest{
		RunID:      p.opts.RunID,
		AppID:      p.opts.Descriptor.ID(),
		AppName:    p.opts.Descriptor.Name(),
		EntryPoint: p.opts.Descriptor.MainEntry(),
		LoadPath:   lp,
		Args:       p.opts.Args,
		Settings:   p.settings(res),
		BeforeExit: func(result engine.LaunchResult) {
			p.finish(context.WithoutCancel(ctx), result, nil)
		},
	}
	if err := p.advance(engine.PhaseLaunched); err != nil {
		return p.fail(ctx, err)
	}
	span.SetAttributes(telemetry.AttrEntryPoint.String(req.EntryPoint))

	result, err := p.opts.Launcher.Launch(ctx, req)
	if err != nil {
		p.finish(ctx, result, err)
		return result, err
	}
	span.SetAttributes(telemetry.AttrOutcome.String(string(result.Outcome)))
	p.finish(ctx, result, nil)
	return result, nil
}

// Resolve runs resolution and assembly only. Boot scripts are not run and
// nothing is launched or recorded.
func (p *Pipeline) Resolve(ctx context.Context) (*engine.Resolution, *engine.LoadPath, error) {
	ctx = p.logger.WithContext(ctx)
	return p.prepare(ctx, false)
}

func (p *Pipeline) runBootScripts(ctx context.Context) ([]engine.BootScript, error) {
	phase := p.opts.Telemetry.StartPhase(ctx, string(engine.PhaseBootScriptsRun))
	scripts, err := p.opts.BootScripts.Run(phase.Ctx)
	phase.End(err)
	if err != nil {
		return scripts, err
	}
	if len(scripts) > 0 {
		phase.Logger.Infof("Executed %d boot scripts", len(scripts))
	}
	return scripts, p.advance(engine.PhaseBootScriptsRun)
}

// prepare resolves extensions and assembles the load path. track advances
// the run record's phase.
func (p *Pipeline) prepare(ctx context.Context, track bool) (*engine.Resolution, *engine.LoadPath, error) {
	cfg := p.opts.Config
	desc := p.opts.Descriptor

	additional := make([]string, 0, len(desc.AdditionalPaths()))
	for _, path := range desc.AdditionalPaths() {
		additional = append(additional, cfg.Resolve(path))
	}
	req := engine.ResolveRequest{
		DistDir:         cfg.Resolve(desc.DistDir()),
		ExtDir:          cfg.ExtDir(),
		AdditionalPaths: additional,
		TmpRoot:         cfg.Resolve(desc.TmpDir()),
	}

	phase := p.opts.Telemetry.StartPhase(ctx, string(engine.PhaseExtensionsResolved))
	res, err := p.opts.Resolver.Resolve(phase.Ctx, req)
	if err == nil {
		phase.Span.SetAttributes(telemetry.AttrExtensions.Int(len(res.Packages)))
	}
	phase.End(err)
	if err != nil {
		return nil, nil, err
	}
	for _, warning := range res.Warnings {
		p.opts.Telemetry.Metrics.RecordError(classOf(warning))
	}
	if track {
		if err := p.advance(engine.PhaseExtensionsResolved); err != nil {
			return nil, nil, err
		}
	}

	phase = p.opts.Telemetry.StartPhase(ctx, string(engine.PhaseLoadPathAssembled))
	lp, err := p.opts.Assembler.Assemble(res.Candidates, res.NativeInputs, filepath.Join(req.TmpRoot, nativeDirName))
	if err == nil {
		phase.Span.SetAttributes(telemetry.AttrLoadPath.Int(len(lp.Entries)))
	}
	phase.End(err)
	if err != nil {
		return nil, nil, err
	}

	if track {
		p.mu.Lock()
		p.record.LoadPath = lp.Paths()
		p.record.Skipped = lp.Skipped
		p.mu.Unlock()
		if err := p.advance(engine.PhaseLoadPathAssembled); err != nil {
			return nil, nil, err
		}
	}
	return res, lp, nil
}

// settings merges the descriptor's settings with the bootstrap.* values.
func (p *Pipeline) settings(res *engine.Resolution) map[string]string {
	cfg := p.opts.Config
	desc := p.opts.Descriptor

	settings := desc.Settings()
	settings[SettingArchivesDir] = cfg.Resolve(desc.DistDir())
	settings[SettingDistDir] = cfg.Resolve(desc.TmpDir())
	settings[SettingSystemArchive] = desc.ArchiveName()
	settings[SettingArchives] = res.ArchiveIndex()
	settings[SettingID] = desc.ID()
	settings[SettingProductName] = desc.Name()
	if desc.Repos() != "" {
		settings[SettingRepos] = desc.Repos()
	}
	return settings
}

// advance moves the run record to next.
func (p *Pipeline) advance(next engine.Phase) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.record.Phase.CanTransition(next) {
		return fmt.Errorf("invalid phase transition %s -> %s", p.record.Phase, next)
	}
	p.record.Phase = next
	p.logger.Debugf("Phase %s", next)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, err error) (engine.LaunchResult, error) {
	result := engine.ResultForExit(engine.ExitCode(err))
	p.finish(ctx, result, err)
	return result, err
}

// finish records the outcome once: run record, metrics, journal and telemetry flush.
func (p *Pipeline) finish(ctx context.Context, result engine.LaunchResult, err error) {
	p.once.Do(func() {
		p.mu.Lock()
		reached := p.record.Phase
		next := result.Outcome.Phase()
		if err != nil || !p.record.Phase.CanTransition(next) {
			next = engine.PhaseFailed
		}
		p.record.Phase = next
		p.record.Outcome = result.Outcome
		p.record.ExitCode = result.ExitCode
		if err != nil {
			p.record.Error = err.Error()
		}
		p.record.FinishedAt = time.Now()
		record := *p.record
		p.mu.Unlock()

		tel := p.opts.Telemetry
		tel.Metrics.RecordRunCompleted(string(result.Outcome))
		if err != nil {
			tel.Metrics.RecordError(classOf(err))
			p.logger.WithError(err).Errorf("Launch failed after phase %s", reached)
		} else {
			p.logger.Infof("Launch ended: %s (status %d)", result.Outcome, result.ExitCode)
		}

		if p.opts.Journal != nil {
			if jerr := p.opts.Journal.RecordRun(ctx, &record); jerr != nil {
				p.logger.WithError(jerr).Warn("Failed to record run in journal")
			}
		}
		if ferr := tel.Flush(ctx); ferr != nil {
			p.logger.WithError(ferr).Warn("Failed to flush telemetry")
		}
	})
}

// classOf returns the metric labels for err.
func classOf(err error) (string, string) {
	var bootErr *engine.BootstrapError
	if errors.As(err, &bootErr) {
		return string(bootErr.Class), bootErr.Code
	}
	return string(engine.ErrorClassFatal), "INTERNAL"
}
