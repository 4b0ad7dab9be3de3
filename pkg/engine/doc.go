// Package engine provides the core types and interfaces for the bootstrap launcher.
//
// # Overview
//
// The launcher prepares an application's runtime environment and hands control to
// its entry point. A launch moves through a fixed sequence of phases:
//
//  1. Init - descriptor and settings loaded
//  2. BootScriptsRun - pending one-time scripts executed (BootScriptRunner)
//  3. ExtensionsResolved - archives discovered and extracted (ExtensionResolver)
//  4. LoadPathAssembled - candidates deduplicated, native libraries staged (LoadPathAssembler)
//  5. Launched - entry point bound and invoked (ApplicationLauncher)
//
// A launched application ends in ShutdownRequested or RestartRequested. A fatal error
// at any step ends in Failed.
//
// # Core Domain Types
//
//   - LibraryReference: one candidate load path entry with its provenance
//   - ExtensionPackage: one extension archive resolved during the current run
//   - Resolution: all candidates and native inputs in discovery order
//   - LoadPath: the deduplicated load path plus the skipped duplicates
//   - BootScript: a pending setup script and its execution result
//   - RunRecord: the journal entry for one launch
//
// All resolution state is rebuilt on every run. Nothing here is persisted except the
// RunRecord, which is an audit trail and is never consulted when resolving.
//
// # Error Handling
//
// Errors are classified as fatal or degraded:
//
//   - Fatal: configuration, boot script and entry point errors stop startup
//   - Degraded: extraction and entry write errors are logged and skipped
//
// Use errors.Is() and errors.As() to inspect error chains, and ExitCode to map
// an error to the process exit status.
//
// # Exit Statuses
//
//	0   shutdown requested, or the entry point returned normally
//	1   startup failure before the entry point was invoked
//	2   entry point could not be bound or failed
//	99  restart requested
package engine
