package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents whether an error stops startup or is absorbed.
type ErrorClass string

const (
	// ErrorClassFatal stops the pipeline and unwinds to the command line.
	// Examples: missing descriptor field, failed boot script, unbound entry point.
	ErrorClassFatal ErrorClass = "fatal"

	// ErrorClassDegraded is logged at the component boundary and startup continues.
	// Examples: one archive failing to extract, one entry failing to write.
	ErrorClassDegraded ErrorClass = "degraded"
)

// Error codes.
const (
	ErrCodeConfiguration = "CONFIGURATION"
	ErrCodeBootScript    = "BOOT_SCRIPT"
	ErrCodeExtraction    = "EXTRACTION"
	ErrCodeEntryWrite    = "ENTRY_WRITE"
	ErrCodeEntryPoint    = "ENTRY_POINT"
)

// Process exit statuses.
const (
	ExitShutdown       = 0
	ExitStartupFailure = 1
	ExitEntryPoint     = 2
	ExitRestart        = 99
)

// BootstrapError represents a classified error with context.
// nolint:revive // BootstrapError is intentionally named to distinguish from standard errors
type BootstrapError struct {
	// Class decides whether startup stops.
	Class ErrorClass `json:"class"`

	// Code identifies the failing concern.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Path is the file or directory involved, if any.
	Path string `json:"path,omitempty"`

	// Phase is the pipeline phase in which the error occurred.
	Phase Phase `json:"phase,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *BootstrapError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *BootstrapError) Is(target error) bool {
	t, ok := target.(*BootstrapError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithPath adds the involved path to an error.
func (e *BootstrapError) WithPath(path string) *BootstrapError {
	e.Path = path
	return e
}

// WithPhase adds the pipeline phase to an error.
func (e *BootstrapError) WithPhase(phase Phase) *BootstrapError {
	e.Phase = phase
	return e
}

func newError(class ErrorClass, code, message string, err error) *BootstrapError {
	return &BootstrapError{
		Class:   class,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewConfigurationError creates a fatal error for an invalid or missing descriptor, setting or directory.
func NewConfigurationError(message string, err error) *BootstrapError {
	return newError(ErrorClassFatal, ErrCodeConfiguration, message, err)
}

// NewBootScriptError creates a fatal error for a boot script that could not run or exited nonzero.
func NewBootScriptError(message string, err error) *BootstrapError {
	return newError(ErrorClassFatal, ErrCodeBootScript, message, err)
}

// NewExtractionError creates an error for an archive that could not be opened or read.
// The resolver absorbs it; callers that treat it as fatal reclassify it.
func NewExtractionError(message string, err error) *BootstrapError {
	return newError(ErrorClassDegraded, ErrCodeExtraction, message, err)
}

// NewEntryWriteError creates a degraded error for a single archive entry that failed to write.
func NewEntryWriteError(message string, err error) *BootstrapError {
	return newError(ErrorClassDegraded, ErrCodeEntryWrite, message, err)
}

// NewEntryPointError creates a fatal error for an entry point that could not be bound or failed.
func NewEntryPointError(message string, err error) *BootstrapError {
	return newError(ErrorClassFatal, ErrCodeEntryPoint, message, err)
}

func hasCode(err error, code string) bool {
	var e *BootstrapError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsFatal returns true if the error stops startup.
// Errors that are not BootstrapErrors are treated as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var e *BootstrapError
	if errors.As(err, &e) {
		return e.Class == ErrorClassFatal
	}
	return true
}

// IsConfigurationError returns true if the error has the CONFIGURATION code.
func IsConfigurationError(err error) bool {
	return hasCode(err, ErrCodeConfiguration)
}

// IsBootScriptError returns true if the error has the BOOT_SCRIPT code.
func IsBootScriptError(err error) bool {
	return hasCode(err, ErrCodeBootScript)
}

// IsExtractionError returns true if the error has the EXTRACTION code.
func IsExtractionError(err error) bool {
	return hasCode(err, ErrCodeExtraction)
}

// IsEntryWriteError returns true if the error has the ENTRY_WRITE code.
func IsEntryWriteError(err error) bool {
	return hasCode(err, ErrCodeEntryWrite)
}

// IsEntryPointError returns true if the error has the ENTRY_POINT code.
func IsEntryPointError(err error) bool {
	return hasCode(err, ErrCodeEntryPoint)
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitShutdown
	case IsEntryPointError(err):
		return ExitEntryPoint
	default:
		return ExitStartupFailure
	}
}
