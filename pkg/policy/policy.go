// Package policy holds the typed baseline model and its loader.
package policy

import "strings"

// Comparison modes understood by the value-based check handlers.
const (
	CompareExact      = "exact"
	CompareIgnoreCase = "ignore_case"
	CompareRegex      = "regex"
	CompareGTE        = "gte"
	CompareLTE        = "lte"
	CompareMaxMode    = "max_mode"
)

// Control represents a single checkable baseline requirement.
type Control struct {
	ID                  string `yaml:"id" json:"id" toml:"id" validate:"required"`
	Title               string `yaml:"title" json:"title" toml:"title"`
	CheckType           string `yaml:"check_type" json:"check_type" toml:"check_type" validate:"required"`
	Target              string `yaml:"target" json:"target" toml:"target"`
	Parameter           string `yaml:"parameter,omitempty" json:"parameter,omitempty" toml:"parameter,omitempty"`
	ExpectedValue       string `yaml:"expected_value" json:"expected_value" toml:"expected_value"`
	Comparison          string `yaml:"comparison,omitempty" json:"comparison,omitempty" toml:"comparison,omitempty"`
	RemediationGuidance string `yaml:"remediation_guidance,omitempty" json:"remediation_guidance,omitempty" toml:"remediation_guidance,omitempty"`
	// RemediationTemplate renders the guidance as a text/template over the control.
	RemediationTemplate bool   `yaml:"remediation_template,omitempty" json:"remediation_template,omitempty" toml:"remediation_template,omitempty"`
	RelevanceNote       string `yaml:"relevance_note,omitempty" json:"relevance_note,omitempty" toml:"relevance_note,omitempty"`

	// Older baselines carry the relevance annotation under this key.
	SnippetRelevance string `yaml:"audit_snippet_relevance,omitempty" json:"audit_snippet_relevance,omitempty" toml:"audit_snippet_relevance,omitempty"`
}

// Relevance returns the control's relevance annotation, whichever key it was declared under.
func (c Control) Relevance() string {
	if c.RelevanceNote != "" {
		return c.RelevanceNote
	}
	return c.SnippetRelevance
}

// ComparisonMode returns the declared comparison mode, defaulting to exact match.
func (c Control) ComparisonMode() string {
	mode := strings.ToLower(strings.TrimSpace(c.Comparison))
	if mode == "" {
		return CompareExact
	}
	return mode
}

// Policy represents a named, ordered compliance baseline.
// Control order is the evaluation and report order.
type Policy struct {
	Name        string    `yaml:"policy_name" json:"policy_name" toml:"policy_name" validate:"required"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty" toml:"description,omitempty"`
	Controls    []Control `yaml:"controls" json:"controls" toml:"controls" validate:"required,dive"`
}

// Control looks up a control by id.
func (p *Policy) Control(id string) (Control, bool) {
	for _, c := range p.Controls {
		if c.ID == id {
			return c, true
		}
	}
	return Control{}, false
}

// CheckTypes returns the distinct check types used by the policy, in first-seen order.
func (p *Policy) CheckTypes() []string {
	seen := make(map[string]bool)
	var types []string
	for _, c := range p.Controls {
		if !seen[c.CheckType] {
			seen[c.CheckType] = true
			types = append(types, c.CheckType)
		}
	}
	return types
}
