package engine

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/user/gosec-audit/pkg/policy"
)

// DefaultRemediation is attached to failing controls that carry no guidance of their own.
const DefaultRemediation = "Review system hardening guidelines."

// ResolveRemediation returns the guidance to attach to a result, and whether any applies.
// Only FAIL and ERROR outcomes carry remediation.
//
// Guidance is returned verbatim unless the control sets remediation_template, in which
// case fields such as {{.Target}}, {{.Parameter}} or {{.ExpectedValue}} are rendered.
// Template guidance that does not render is used verbatim.
func ResolveRemediation(control policy.Control, outcome CheckOutcome) (string, bool) {
	if !outcome.Status.NeedsRemediation() {
		return "", false
	}

	guidance := strings.TrimSpace(control.RemediationGuidance)
	if guidance == "" {
		return DefaultRemediation, true
	}

	if !control.RemediationTemplate {
		return guidance, true
	}
	rendered, err := renderGuidance(control.ID, guidance, control)
	if err != nil || strings.TrimSpace(rendered) == "" {
		return guidance, true
	}
	return strings.TrimSpace(rendered), true
}

func renderGuidance(name, tmplStr string, control policy.Control) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse remediation for %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, control); err != nil {
		return "", fmt.Errorf("failed to render remediation for %s: %w", name, err)
	}
	return buf.String(), nil
}
