package engine

import (
	"context"
)

// BootScriptRunner executes pending one-time setup scripts.
// This is the first pipeline step.
type BootScriptRunner interface {
	// Run executes every pending script in order and returns what ran.
	// The first failure stops the run and is returned as a BootScriptError.
	Run(ctx context.Context) ([]BootScript, error)
}

// ResolveRequest names the locations extension resolution reads from and writes to.
type ResolveRequest struct {
	// DistDir holds extension package archives.
	DistDir string `json:"dist_dir"`

	// ExtDir holds prebuilt libraries.
	ExtDir string `json:"ext_dir"`

	// AdditionalPaths are the descriptor's extra load path entries, in listed order.
	AdditionalPaths []string `json:"additional_paths,omitempty"`

	// TmpRoot is the run's temporary root; it is removed and recreated.
	TmpRoot string `json:"tmp_root"`
}

// ExtensionResolver discovers and extracts extension packages.
type ExtensionResolver interface {
	// Resolve produces the ordered candidate list and native inputs for this run.
	Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error)
}

// LoadPathAssembler deduplicates candidates and stages native libraries.
type LoadPathAssembler interface {
	// Assemble builds the final load path from candidates in discovery order.
	Assemble(candidates []LibraryReference, nativeInputs []string, stagingDir string) (*LoadPath, error)
}

// LaunchRequest is everything the launcher needs to bind and invoke an entry point.
type LaunchRequest struct {
	RunID      string            `json:"run_id"`
	AppID      string            `json:"app_id"`
	AppName    string            `json:"app_name"`
	EntryPoint string            `json:"entry_point"`
	LoadPath   *LoadPath         `json:"load_path"`
	Args       []string          `json:"args,omitempty"`
	Settings   map[string]string `json:"settings,omitempty"`

	// BeforeExit runs when a hook is about to terminate the process.
	BeforeExit func(LaunchResult) `json:"-"`
}

// LaunchResult is how a launch ended and the status the process exits with.
type LaunchResult struct {
	Outcome  Outcome `json:"outcome"`
	ExitCode int     `json:"exit_code"`
}

// ResultForExit builds the result for a process exit status.
func ResultForExit(code int) LaunchResult {
	return LaunchResult{Outcome: OutcomeForExit(code), ExitCode: code}
}

// ApplicationLauncher binds and invokes the application entry point.
type ApplicationLauncher interface {
	// Launch runs the entry point and reports how it ended.
	// The returned error is an EntryPointError when binding or invocation failed.
	Launch(ctx context.Context, req LaunchRequest) (LaunchResult, error)
}

// Journal records launches for later inspection. It is never read during resolution.
type Journal interface {
	// RecordRun appends one run record.
	RecordRun(ctx context.Context, record *RunRecord) error

	// ListRuns returns the most recent records, newest first.
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	// Close releases the journal.
	Close() error
}
