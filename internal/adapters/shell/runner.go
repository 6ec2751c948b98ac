// Package shell runs build commands through the system shell.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// Shell is the interpreter every command line is handed to.
const Shell = "sh"

// Runner implements ports.CommandRunner using os/exec. It prints nothing;
// echoing commands is the scheduler's job.
type Runner struct{}

var _ ports.CommandRunner = (*Runner)(nil)

// NewRunner creates a new Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// RunCommand runs command with `sh -c` in dir and captures stdout and stderr
// into one buffer. A non-zero exit is reported through exitCode with a nil error.
func (r *Runner) RunCommand(ctx context.Context, dir, command string) (int, string, error) {
	cmd := exec.CommandContext(ctx, Shell, "-c", command) //nolint:gosec // commands come from the build description
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return 0, out.String(), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// Killed by a signal.
			code = 1
		}
		return code, out.String(), nil
	}

	return -1, out.String(), zerr.With(zerr.Wrap(err, "failed to start command"), "command", command)
}
