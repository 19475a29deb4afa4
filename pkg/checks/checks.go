// Package checks holds the built-in check handlers. Every handler reads the host
// through an afero filesystem so it can be exercised against an in-memory tree.
package checks

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/afero"

	"github.com/user/gosec-audit/pkg/engine"
	"github.com/user/gosec-audit/pkg/policy"
)

// Check type names understood by RegisterBuiltins.
const (
	TypeConfigFileValue        = "config_file_value"
	TypeServiceProcessPresence = "service_process_presence"
	TypeFilePermission         = "file_permission"
	TypeJSONValue              = "json_value"
	TypeCommandOutput          = "command_output"
)

// RegisterBuiltins registers every built-in handler on reg. A nil fs means the
// real operating system filesystem.
func RegisterBuiltins(reg *engine.Registry, fsys afero.Fs) error {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	builtins := []struct {
		checkType string
		handler   engine.CheckHandler
	}{
		{TypeConfigFileValue, &ConfigFileValue{FS: fsys}},
		{TypeServiceProcessPresence, &ServicePresence{FS: fsys}},
		{TypeFilePermission, &FilePermission{FS: fsys}},
		{TypeJSONValue, &JSONValue{FS: fsys}},
		{TypeCommandOutput, &CommandOutput{}},
	}
	for _, b := range builtins {
		if err := reg.Register(b.checkType, b.handler); err != nil {
			return fmt.Errorf("register %s: %w", b.checkType, err)
		}
	}
	return nil
}

func requireField(value, field string, c policy.Control) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("control %s: %s is required for %s", c.ID, field, c.CheckType)
	}
	return value, nil
}

func fileNotFound(path string) engine.CheckOutcome {
	return engine.Fail("File '%s' not found.", path)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
