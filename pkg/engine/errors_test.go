package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestBootstrapErrorClassification(t *testing.T) {
	cause := errors.New("underlying")

	tests := []struct {
		name     string
		err      error
		fatal    bool
		exitCode int
		check    func(error) bool
	}{
		{
			name:     "configuration",
			err:      NewConfigurationError("missing id", nil),
			fatal:    true,
			exitCode: ExitStartupFailure,
			check:    IsConfigurationError,
		},
		{
			name:     "boot script",
			err:      NewBootScriptError("script failed", cause),
			fatal:    true,
			exitCode: ExitStartupFailure,
			check:    IsBootScriptError,
		},
		{
			name:     "extraction",
			err:      NewExtractionError("cannot open archive", cause),
			fatal:    false,
			exitCode: ExitStartupFailure,
			check:    IsExtractionError,
		},
		{
			name:     "entry write",
			err:      NewEntryWriteError("cannot write entry", cause),
			fatal:    false,
			exitCode: ExitStartupFailure,
			check:    IsEntryWriteError,
		},
		{
			name:     "entry point",
			err:      NewEntryPointError("no such entry", nil),
			fatal:    true,
			exitCode: ExitEntryPoint,
			check:    IsEntryPointError,
		},
		{
			name:     "wrapped entry point",
			err:      fmt.Errorf("launch: %w", NewEntryPointError("no such entry", nil)),
			fatal:    true,
			exitCode: ExitEntryPoint,
			check:    IsEntryPointError,
		},
		{
			name:     "plain error",
			err:      cause,
			fatal:    true,
			exitCode: ExitStartupFailure,
			check:    func(error) bool { return true },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
			if got := ExitCode(tt.err); got != tt.exitCode {
				t.Errorf("ExitCode() = %d, want %d", got, tt.exitCode)
			}
			if !tt.check(tt.err) {
				t.Errorf("predicate did not match %v", tt.err)
			}
		})
	}
}

func TestExitCodeNil(t *testing.T) {
	if got := ExitCode(nil); got != ExitShutdown {
		t.Errorf("ExitCode(nil) = %d, want %d", got, ExitShutdown)
	}
	if IsFatal(nil) {
		t.Error("IsFatal(nil) = true")
	}
}

func TestBootstrapErrorMessage(t *testing.T) {
	cause := errors.New("permission denied")
	err := NewBootScriptError("boot script exited with status 3", cause).
		WithPath("/app/conf/runOnce.sh").
		WithPhase(PhaseInit)

	msg := err.Error()
	for _, want := range []string{"[BOOT_SCRIPT]", "status 3", "/app/conf/runOnce.sh", "permission denied"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach the cause")
	}
	if !errors.Is(err, NewBootScriptError("other", nil)) {
		t.Error("errors.Is did not match same class and code")
	}
	if errors.Is(err, NewConfigurationError("other", nil)) {
		t.Error("errors.Is matched a different code")
	}
	if err.Phase != PhaseInit {
		t.Errorf("Phase = %s, want %s", err.Phase, PhaseInit)
	}
}
