package engine

import (
	"fmt"
	"time"
)

// Phase represents a step of the launch pipeline.
type Phase string

const (
	// PhaseInit is the state before anything has run.
	PhaseInit Phase = "init"

	// PhaseBootScriptsRun is reached once every pending boot script has succeeded.
	PhaseBootScriptsRun Phase = "boot_scripts_run"

	// PhaseExtensionsResolved is reached once all archives have been discovered and extracted.
	PhaseExtensionsResolved Phase = "extensions_resolved"

	// PhaseLoadPathAssembled is reached once the load path is deduplicated and native libraries staged.
	PhaseLoadPathAssembled Phase = "load_path_assembled"

	// PhaseLaunched is reached once the entry point has been bound and invoked.
	PhaseLaunched Phase = "launched"

	// PhaseShutdownRequested is the terminal state after the shutdown hook.
	PhaseShutdownRequested Phase = "shutdown_requested"

	// PhaseRestartRequested is the terminal state after the restart hook.
	PhaseRestartRequested Phase = "restart_requested"

	// PhaseFailed is the terminal state after a fatal error.
	PhaseFailed Phase = "failed"
)

var phaseOrder = map[Phase]int{
	PhaseInit:               0,
	PhaseBootScriptsRun:     1,
	PhaseExtensionsResolved: 2,
	PhaseLoadPathAssembled:  3,
	PhaseLaunched:           4,
}

// IsTerminal returns true if the phase represents a final state.
func (p Phase) IsTerminal() bool {
	return p == PhaseShutdownRequested || p == PhaseRestartRequested || p == PhaseFailed
}

// Validate checks if the phase is valid.
func (p Phase) Validate() error {
	if _, ok := phaseOrder[p]; ok || p.IsTerminal() {
		return nil
	}
	return fmt.Errorf("invalid phase: %s", p)
}

// CanTransition reports whether the pipeline may move from p to next.
// Non-terminal phases advance one step at a time; any non-terminal phase may fail;
// only a launched pipeline may end in shutdown or restart.
func (p Phase) CanTransition(next Phase) bool {
	if p.IsTerminal() {
		return false
	}
	switch next {
	case PhaseFailed:
		return true
	case PhaseShutdownRequested, PhaseRestartRequested:
		return p == PhaseLaunched
	}
	from, ok := phaseOrder[p]
	if !ok {
		return false
	}
	to, ok := phaseOrder[next]
	return ok && to == from+1
}

// Outcome is how a launch ended.
type Outcome string

const (
	// OutcomeShutdown means the application asked to stop or returned normally.
	OutcomeShutdown Outcome = "shutdown"

	// OutcomeRestart means the application asked to be relaunched.
	OutcomeRestart Outcome = "restart"

	// OutcomeFailed means startup or the entry point failed.
	OutcomeFailed Outcome = "failed"
)

// OutcomeForExit maps a process exit status to an outcome.
func OutcomeForExit(code int) Outcome {
	switch code {
	case ExitShutdown:
		return OutcomeShutdown
	case ExitRestart:
		return OutcomeRestart
	default:
		return OutcomeFailed
	}
}

// Phase returns the terminal phase for the outcome.
func (o Outcome) Phase() Phase {
	switch o {
	case OutcomeShutdown:
		return PhaseShutdownRequested
	case OutcomeRestart:
		return PhaseRestartRequested
	default:
		return PhaseFailed
	}
}

// RunRecord is the audit entry written to the launch journal at the end of a run.
type RunRecord struct {
	RunID        string           `json:"run_id"`
	DescriptorID string           `json:"descriptor_id"`
	EntryPoint   string           `json:"entry_point"`
	Phase        Phase            `json:"phase"`
	Outcome      Outcome          `json:"outcome"`
	ExitCode     int              `json:"exit_code"`
	Error        string           `json:"error,omitempty"`
	LoadPath     []string         `json:"load_path,omitempty"`
	Skipped      []SkippedLibrary `json:"skipped,omitempty"`
	BootScripts  []BootScript     `json:"boot_scripts,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
}

// Duration returns how long the run took.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
