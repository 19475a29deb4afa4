package checks

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/user/gosec-audit/pkg/engine"
	"github.com/user/gosec-audit/pkg/policy"
)

// FilePermission checks the permission bits of a file.
type FilePermission struct {
	FS afero.Fs
}

func (h *FilePermission) Description() string {
	return "Compares a file's octal mode with expected_value (comparison exact or max_mode)."
}

func (h *FilePermission) Evaluate(ctx context.Context, c policy.Control) (engine.CheckOutcome, error) {
	target, err := requireField(c.Target, "target", c)
	if err != nil {
		return engine.CheckOutcome{}, err
	}
	want, err := parseMode(c.ExpectedValue)
	if err != nil {
		return engine.CheckOutcome{}, fmt.Errorf("control %s: expected_value: %w", c.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return engine.CheckOutcome{}, err
	}

	info, err := h.FS.Stat(target)
	if err != nil {
		if isNotExist(err) {
			return fileNotFound(target), nil
		}
		return engine.CheckOutcome{}, fmt.Errorf("stat %s: %w", target, err)
	}
	got := octalMode(info.Mode())

	switch mode := c.ComparisonMode(); mode {
	case policy.CompareExact:
		if got != want {
			return engine.Fail("Expected mode %04o, found %04o.", want, got), nil
		}
	case policy.CompareMaxMode:
		if got&^want != 0 {
			return engine.Fail("Expected mode %04o or stricter, found %04o.", want, got), nil
		}
	default:
		return engine.CheckOutcome{}, fmt.Errorf("comparison %q is not supported for %s", mode, c.CheckType)
	}
	return engine.Pass("'%s' has mode %04o.", target, got), nil
}

func octalMode(m os.FileMode) uint32 {
	bits := uint32(m.Perm())
	if m&os.ModeSetuid != 0 {
		bits |= 0o4000
	}
	if m&os.ModeSetgid != 0 {
		bits |= 0o2000
	}
	if m&os.ModeSticky != 0 {
		bits |= 0o1000
	}
	return bits
}
