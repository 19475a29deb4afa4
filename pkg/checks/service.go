package checks

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/user/gosec-audit/pkg/engine"
	"github.com/user/gosec-audit/pkg/policy"
)

const (
	defaultProcRoot = "/proc"
	// The kernel truncates /proc/<pid>/comm to 15 bytes.
	commMaxLen = 15
)

// ServicePresence checks whether a named process is running by scanning procfs.
type ServicePresence struct {
	FS       afero.Fs
	ProcRoot string
}

func (h *ServicePresence) Description() string {
	return "Scans /proc for a named process; expected_value is running|active|present or stopped|inactive|absent."
}

func (h *ServicePresence) Evaluate(ctx context.Context, c policy.Control) (engine.CheckOutcome, error) {
	name, err := requireField(c.Target, "target", c)
	if err != nil {
		return engine.CheckOutcome{}, err
	}
	wantRunning, err := expectedRunning(c.ExpectedValue)
	if err != nil {
		return engine.CheckOutcome{}, fmt.Errorf("control %s: %w", c.ID, err)
	}

	running, err := h.isRunning(ctx, name)
	if err != nil {
		return engine.CheckOutcome{}, err
	}

	state := "stopped"
	if running {
		state = "running"
	}
	if running == wantRunning {
		return engine.Pass("Service '%s' is %s.", name, state), nil
	}
	want := "stopped"
	if wantRunning {
		want = "running"
	}
	return engine.Fail("Service '%s' is %s, expected %s.", name, state, want), nil
}

func expectedRunning(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "running", "active", "present":
		return true, nil
	case "stopped", "inactive", "absent":
		return false, nil
	default:
		return false, fmt.Errorf("unsupported expected service state %q", v)
	}
}

func (h *ServicePresence) isRunning(ctx context.Context, name string) (bool, error) {
	root := h.ProcRoot
	if root == "" {
		root = defaultProcRoot
	}

	entries, err := afero.ReadDir(h.FS, root)
	if err != nil {
		return false, fmt.Errorf("list %s: %w", root, err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !e.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(e.Name()); err != nil {
			continue
		}
		dir := path.Join(root, e.Name())
		// Processes can exit between listing and reading; skip them.
		if comm, err := afero.ReadFile(h.FS, path.Join(dir, "comm")); err == nil && commMatches(strings.TrimSpace(string(comm)), name) {
			return true, nil
		}
		if cmdline, err := afero.ReadFile(h.FS, path.Join(dir, "cmdline")); err == nil && cmdlineMatches(cmdline, name) {
			return true, nil
		}
	}
	return false, nil
}

func commMatches(comm, name string) bool {
	if comm == name {
		return true
	}
	return len(name) > commMaxLen && comm == name[:commMaxLen]
}

func cmdlineMatches(cmdline []byte, name string) bool {
	argv0, _, _ := bytes.Cut(cmdline, []byte{0})
	if len(argv0) == 0 {
		return false
	}
	return path.Base(string(argv0)) == name
}
