package checks

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"

	"github.com/user/gosec-audit/pkg/engine"
	"github.com/user/gosec-audit/pkg/policy"
)

// ConfigFileValue checks a single parameter in a line-oriented configuration file
// such as /etc/login.defs or /etc/ssh/sshd_config.
type ConfigFileValue struct {
	FS afero.Fs
}

func (h *ConfigFileValue) Description() string {
	return "Reads a KEY=VALUE, KEY: VALUE or KEY VALUE config file and compares one parameter with the baseline."
}

func (h *ConfigFileValue) Evaluate(ctx context.Context, c policy.Control) (engine.CheckOutcome, error) {
	target, err := requireField(c.Target, "target", c)
	if err != nil {
		return engine.CheckOutcome{}, err
	}
	param, err := requireField(c.Parameter, "parameter", c)
	if err != nil {
		return engine.CheckOutcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return engine.CheckOutcome{}, err
	}

	f, err := h.FS.Open(target)
	if err != nil {
		if isNotExist(err) {
			return fileNotFound(target), nil
		}
		return engine.CheckOutcome{}, fmt.Errorf("open %s: %w", target, err)
	}
	defer f.Close()

	actual, found, err := lookupParameter(f, param)
	if err != nil {
		return engine.CheckOutcome{}, fmt.Errorf("read %s: %w", target, err)
	}
	if !found {
		return engine.Fail("Parameter '%s' not found in '%s'.", param, target), nil
	}

	ok, err := Compare(c.ComparisonMode(), c.ExpectedValue, actual)
	if err != nil {
		return engine.CheckOutcome{}, err
	}
	if !ok {
		return engine.Fail("Expected '%s', found '%s'.", c.ExpectedValue, actual), nil
	}
	return engine.Pass("'%s' matches baseline.", param), nil
}

// lookupParameter returns the value of the last line that sets param.
func lookupParameter(r io.Reader, param string) (string, bool, error) {
	var (
		value string
		found bool
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}
		key, rest := splitKey(line)
		if key != param {
			continue
		}
		value, found = unquote(rest), true
	}
	return value, found, scanner.Err()
}

func splitKey(line string) (string, string) {
	i := strings.IndexAny(line, "=: \t")
	if i < 0 {
		return line, ""
	}
	key := line[:i]
	rest := strings.TrimSpace(line[i:])
	if strings.HasPrefix(rest, "=") || strings.HasPrefix(rest, ":") {
		rest = strings.TrimSpace(rest[1:])
	}
	return key, rest
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
