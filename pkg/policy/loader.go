package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// Format identifies a policy document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the encoding from the file extension. Unknown extensions are read as YAML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc", ".hujson":
		return FormatJSON
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// LoadError reports a policy that could not be loaded. No evaluation may happen after one.
type LoadError struct {
	Path  string
	Field string
	Err   error
}

func (e *LoadError) Error() string {
	var sb strings.Builder
	sb.WriteString("policy")
	if e.Path != "" {
		sb.WriteString(" " + e.Path)
	}
	if e.Field != "" {
		sb.WriteString(": " + e.Field)
	}
	sb.WriteString(": " + e.Err.Error())
	return sb.String()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

var (
	ErrRequiredField      = errors.New("is required")
	ErrDuplicateControlID = errors.New("duplicate control id")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report yaml key names so errors point at the document, not at Go fields.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load reads, decodes and validates the policy at path.
func Load(path string) (*Policy, error) {
	// #nosec G304 -- path is the operator-supplied policy file.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	p, err := Parse(data, FormatFromPath(path))
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
			return nil, le
		}
		return nil, &LoadError{Path: path, Err: err}
	}
	return p, nil
}

// Parse decodes and validates a policy document held in memory.
func Parse(data []byte, format Format) (*Policy, error) {
	var p Policy
	if err := decode(data, format, &p); err != nil {
		return nil, &LoadError{Err: fmt.Errorf("malformed %s document: %w", format, err)}
	}

	normalize(&p)

	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func decode(data []byte, format Format, p *Policy) error {
	switch format {
	case FormatJSON:
		std, err := hujson.Standardize(data)
		if err != nil {
			return err
		}
		return json.Unmarshal(std, p)
	case FormatTOML:
		return toml.Unmarshal(data, p)
	default:
		return yaml.Unmarshal(data, p)
	}
}

func normalize(p *Policy) {
	p.Name = strings.TrimSpace(p.Name)
	for i := range p.Controls {
		p.Controls[i].ID = strings.TrimSpace(p.Controls[i].ID)
		p.Controls[i].CheckType = strings.TrimSpace(p.Controls[i].CheckType)
	}
}

// Validate checks required fields and control id uniqueness.
func Validate(p *Policy) error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &LoadError{Field: fieldPath(verrs[0].Namespace()), Err: ErrRequiredField}
		}
		return &LoadError{Err: err}
	}

	seen := make(map[string]int, len(p.Controls))
	for i, c := range p.Controls {
		if first, dup := seen[c.ID]; dup {
			return &LoadError{
				Field: fmt.Sprintf("controls[%d].id", i),
				Err:   fmt.Errorf("%w %q (first declared at controls[%d])", ErrDuplicateControlID, c.ID, first),
			}
		}
		seen[c.ID] = i
	}
	return nil
}

// fieldPath turns "Policy.controls[2].check_type" into "controls[2].check_type".
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
