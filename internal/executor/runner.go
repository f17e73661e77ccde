package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ExecRunner runs external commands without a shell
type ExecRunner struct {
	logger *zap.Logger
}

// NewExecRunner creates a new command runner
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run executes the command and waits for it to finish.
// Output is only kept to enrich the error.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	r.logger.Debug("Running command",
		zap.String("command", name),
		zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s failed: %w (output: %s)",
			name, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Output executes the command and returns its stdout without the trailing newline
func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	r.logger.Debug("Running command for output",
		zap.String("command", name),
		zap.Strings("args", args))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s %s failed: %w (stderr: %s)",
			name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimRight(string(out), "\n"), nil
}
