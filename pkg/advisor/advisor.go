package advisor

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/user/gosec-audit/pkg/engine"
	"github.com/user/gosec-audit/pkg/log"
)

//go:embed prompts/system_prompt.md
var systemPrompt string

// NothingToExplain is returned by Explain when every control passed or was skipped.
const NothingToExplain = "No failing controls; nothing to explain."

// SystemPrompt returns the advisor's instructions to the model.
func SystemPrompt() string {
	return systemPrompt
}

// Advisor explains audit reports.
type Advisor struct {
	llm LLMProvider
}

func New(llm LLMProvider) *Advisor {
	return &Advisor{llm: llm}
}

// Explain asks the model for a remediation narrative covering every FAIL and ERROR
// result. The model is not called when there is nothing to explain.
func (a *Advisor) Explain(ctx context.Context, report *engine.Report) (string, error) {
	findings := Findings(report)
	if findings == "" {
		return NothingToExplain, nil
	}

	log.Debugf("advisor: sending %d bytes of findings", len(findings))
	history := []Message{
		{Role: "system", Content: SystemPrompt()},
		{Role: "user", Content: findings},
	}
	resp, err := a.llm.GenerateResponse(ctx, history)
	if err != nil {
		return "", fmt.Errorf("advisor: %w", err)
	}
	return strings.TrimSpace(resp), nil
}

// Findings renders the non-passing results of report as the advisor's input, or
// "" when there are none.
func Findings(report *engine.Report) string {
	var b strings.Builder
	count := 0
	for _, r := range report.Results {
		if !r.Status.NeedsRemediation() {
			continue
		}
		count++
		b.WriteString(fmt.Sprintf("- id: %s\n", r.ControlID))
		b.WriteString(fmt.Sprintf("  title: %s\n", r.Title))
		b.WriteString(fmt.Sprintf("  status: %s\n", r.Status))
		b.WriteString(fmt.Sprintf("  message: %s\n", r.Message))
		if r.Remediation != "" {
			b.WriteString(fmt.Sprintf("  remediation: %s\n", r.Remediation))
		}
	}
	if count == 0 {
		return ""
	}

	var head strings.Builder
	head.WriteString(fmt.Sprintf("POLICY: %s\nHOST: %s\nTIME: %s\n", report.PolicyName, report.Hostname,
		report.GeneratedAt.Format("2006-01-02T15:04:05Z07:00")))
	head.WriteString(fmt.Sprintf("\nCONTROLS NEEDING ATTENTION (%d of %d):\n", count, len(report.Results)))
	return head.String() + b.String()
}
