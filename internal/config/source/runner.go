package source

import (
	"context"
	"os/exec"
)

// CommandRunner is the interface for running commands.
type CommandRunner interface {
	CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecCommandRunner uses os/exec.
type ExecCommandRunner struct{}

// CombinedOutput runs a command and returns its combined stdout and stderr.
func (ExecCommandRunner) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
