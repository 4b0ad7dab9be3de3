// Package bootscript runs the one-time setup scripts an installer or upgrade
// leaves in the configuration directory.
package bootscript

import (
	"context"
	"os/exec"
	"strings"
)

// CredentialSource supplies the secret fed to the privileged executor.
type CredentialSource interface {
	// Credential returns the secret, or "" when the executor should not prompt.
	Credential(ctx context.Context) (string, error)
}

// StaticCredential is a credential fixed at construction, typically the
// sudo-password launcher setting.
type StaticCredential string

// Credential implements CredentialSource.
func (s StaticCredential) Credential(context.Context) (string, error) {
	return string(s), nil
}

// Executor builds the command that runs a script.
type Executor interface {
	// Command returns a ready-to-run command for script. Output wiring is left to the caller.
	Command(ctx context.Context, script string) (*exec.Cmd, error)
}

// DirectExecutor runs the script as the current user.
type DirectExecutor struct{}

// Command implements Executor.
func (DirectExecutor) Command(ctx context.Context, script string) (*exec.Cmd, error) {
	return exec.CommandContext(ctx, script), nil
}

// SudoExecutor runs the script through sudo with a structured argument vector.
// The credential is written to sudo's stdin; it never appears on a command line.
type SudoExecutor struct {
	// Program is the sudo binary, "sudo" when empty.
	Program string

	// Credentials supplies the password. With no password sudo runs
	// non-interactively and relies on a NOPASSWD rule.
	Credentials CredentialSource
}

// Command implements Executor.
func (s SudoExecutor) Command(ctx context.Context, script string) (*exec.Cmd, error) {
	program := s.Program
	if program == "" {
		program = "sudo"
	}

	password := ""
	if s.Credentials != nil {
		var err error
		if password, err = s.Credentials.Credential(ctx); err != nil {
			return nil, err
		}
	}

	if password == "" {
		return exec.CommandContext(ctx, program, "-n", "--", script), nil
	}

	// -S reads the password from stdin, -p "" suppresses the prompt text.
	cmd := exec.CommandContext(ctx, program, "-S", "-p", "", "--", script)
	cmd.Stdin = strings.NewReader(password + "\n")
	return cmd, nil
}
