package checks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"

	"github.com/user/gosec-audit/pkg/engine"
	"github.com/user/gosec-audit/pkg/policy"
)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// CommandOutput runs the command in the control's target, without a shell, and
// compares its trimmed standard output with the baseline. Policy authors must
// only list read-only commands.
type CommandOutput struct {
	Run Runner
}

func (h *CommandOutput) Description() string {
	return "Runs target as a command (no shell) and compares trimmed stdout with expected_value."
}

func (h *CommandOutput) Evaluate(ctx context.Context, c policy.Control) (engine.CheckOutcome, error) {
	line, err := requireField(c.Target, "target", c)
	if err != nil {
		return engine.CheckOutcome{}, err
	}
	argv, err := shlex.Split(line)
	if err != nil {
		return engine.CheckOutcome{}, fmt.Errorf("control %s: parse command: %w", c.ID, err)
	}
	if len(argv) == 0 {
		return engine.CheckOutcome{}, fmt.Errorf("control %s: empty command", c.ID)
	}

	run := h.Run
	if run == nil {
		run = execRunner
	}
	out, err := run(ctx, argv[0], argv[1:]...)
	if err != nil {
		return engine.CheckOutcome{}, fmt.Errorf("command %q: %w", argv[0], err)
	}
	actual := strings.TrimSpace(string(out))

	ok, err := Compare(c.ComparisonMode(), c.ExpectedValue, actual)
	if err != nil {
		return engine.CheckOutcome{}, err
	}
	if !ok {
		return engine.Fail("Expected '%s', found '%s'.", c.ExpectedValue, actual), nil
	}
	return engine.Pass("Output of '%s' matches baseline.", argv[0]), nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return out, nil
}
