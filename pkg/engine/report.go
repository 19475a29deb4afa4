package engine

import (
	"time"

	"github.com/user/gosec-audit/pkg/policy"
)

// ControlResult is the outcome of one control. Remediation is empty unless the
// status is FAIL or ERROR.
type ControlResult struct {
	ControlID     string        `json:"id"`
	Title         string        `json:"title"`
	Status        Status        `json:"status"`
	Message       string        `json:"message"`
	RelevanceNote string        `json:"design_concept,omitempty"`
	Remediation   string        `json:"remediation,omitempty"`
	EvaluatedAt   time.Time     `json:"-"`
	Duration      time.Duration `json:"-"`
}

// Summary partitions the results of a report by status.
type Summary struct {
	Pass    int `json:"pass"`
	Fail    int `json:"fail"`
	Error   int `json:"error"`
	Unknown int `json:"unknown"`
}

// Total is the number of results counted.
func (s Summary) Total() int {
	return s.Pass + s.Fail + s.Error + s.Unknown
}

// Count returns the number of results with the given status.
func (s Summary) Count(status Status) int {
	switch status {
	case StatusPass:
		return s.Pass
	case StatusFail:
		return s.Fail
	case StatusError:
		return s.Error
	case StatusUnknown:
		return s.Unknown
	}
	return 0
}

// Report is the aggregate of one audit run. It is built once by BuildReport and
// treated as read-only afterwards.
type Report struct {
	PolicyName  string          `json:"policy_name"`
	GeneratedAt time.Time       `json:"timestamp"`
	Hostname    string          `json:"hostname"`
	Results     []ControlResult `json:"results"`
	Summary     Summary         `json:"summary"`
}

type reportOptions struct {
	clock    func() time.Time
	identity IdentityProvider
}

// ReportOption configures BuildReport.
type ReportOption func(*reportOptions)

// WithClock overrides the build timestamp source.
func WithClock(clock func() time.Time) ReportOption {
	return func(o *reportOptions) {
		o.clock = clock
	}
}

// WithIdentity overrides the host identity lookup.
func WithIdentity(id IdentityProvider) ReportOption {
	return func(o *reportOptions) {
		o.identity = id
	}
}

// BuildReport assembles the report for p from results, which must be in policy order.
// The timestamp is taken once, here, not per control.
func BuildReport(p *policy.Policy, results []ControlResult, opts ...ReportOption) *Report {
	o := reportOptions{
		clock:    time.Now,
		identity: OSIdentity{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	name := ""
	if p != nil {
		name = p.Name
	}

	owned := make([]ControlResult, len(results))
	copy(owned, results)

	return &Report{
		PolicyName:  name,
		GeneratedAt: o.clock(),
		Hostname:    resolveHostname(o.identity),
		Results:     owned,
		Summary:     Summarize(owned),
	}
}

// Summarize counts results by status. Results with an undefined status count as ERROR
// so the partition always covers every result.
func Summarize(results []ControlResult) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			s.Pass++
		case StatusFail:
			s.Fail++
		case StatusUnknown:
			s.Unknown++
		default:
			s.Error++
		}
	}
	return s
}

// Failed reports whether the run should fail a CI gate. FAIL and ERROR always block;
// UNKNOWN blocks only when unknownBlocks is set.
func (r *Report) Failed(unknownBlocks bool) bool {
	if r.Summary.Fail > 0 || r.Summary.Error > 0 {
		return true
	}
	return unknownBlocks && r.Summary.Unknown > 0
}

// Result returns the result for a control id.
func (r *Report) Result(id string) (ControlResult, bool) {
	for _, res := range r.Results {
		if res.ControlID == id {
			return res, true
		}
	}
	return ControlResult{}, false
}
