package imaging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Runner executes an imaging tool with its stdout or stdin connected to a
// pipeline stream. It exists so backend behavior is testable without the
// tools installed.
type Runner interface {
	// RunOut runs the command streaming its stdout into w.
	RunOut(ctx context.Context, w io.Writer, command ...string) error

	// RunIn runs the command streaming r into its stdin.
	RunIn(ctx context.Context, r io.Reader, command ...string) error
}

type execRunner struct{}

// NewRunner returns the exec-based Runner.
func NewRunner() Runner {
	return &execRunner{}
}

func (e *execRunner) RunOut(ctx context.Context, w io.Writer, command ...string) error {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdout = w

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", command[0], err, stderrBuf.String())
	}
	return nil
}

func (e *execRunner) RunIn(ctx context.Context, r io.Reader, command ...string) error {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdin = r

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", command[0], err, stderrBuf.String())
	}
	return nil
}
