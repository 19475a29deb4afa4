package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/PaesslerAG/jsonpath"
	"github.com/spf13/afero"

	"github.com/user/gosec-audit/pkg/engine"
	"github.com/user/gosec-audit/pkg/policy"
)

// JSONValue checks one value inside a JSON document, addressed by a JSONPath
// expression in the control's parameter (for example $["log-driver"]).
type JSONValue struct {
	FS afero.Fs
}

func (h *JSONValue) Description() string {
	return "Evaluates a JSONPath expression (parameter) against a JSON file and compares the value with the baseline."
}

func (h *JSONValue) Evaluate(ctx context.Context, c policy.Control) (engine.CheckOutcome, error) {
	target, err := requireField(c.Target, "target", c)
	if err != nil {
		return engine.CheckOutcome{}, err
	}
	expr, err := requireField(c.Parameter, "parameter", c)
	if err != nil {
		return engine.CheckOutcome{}, err
	}
	eval, err := jsonpath.New(expr)
	if err != nil {
		return engine.CheckOutcome{}, fmt.Errorf("control %s: invalid JSONPath %q: %w", c.ID, expr, err)
	}

	data, err := afero.ReadFile(h.FS, target)
	if err != nil {
		if isNotExist(err) {
			return fileNotFound(target), nil
		}
		return engine.CheckOutcome{}, fmt.Errorf("read %s: %w", target, err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return engine.CheckOutcome{}, fmt.Errorf("parse %s: %w", target, err)
	}

	v, err := eval(ctx, doc)
	if err != nil {
		return engine.Fail("Path '%s' not found in '%s'.", expr, target), nil
	}
	actual, err := stringify(v)
	if err != nil {
		return engine.CheckOutcome{}, err
	}

	ok, err := Compare(c.ComparisonMode(), c.ExpectedValue, actual)
	if err != nil {
		return engine.CheckOutcome{}, err
	}
	if !ok {
		return engine.Fail("Expected '%s', found '%s'.", c.ExpectedValue, actual), nil
	}
	return engine.Pass("'%s' matches baseline.", expr), nil
}

func stringify(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "null", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", fmt.Errorf("encode value: %w", err)
		}
		return string(b), nil
	}
}
