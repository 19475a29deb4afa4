package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/gosec-audit/pkg/log"
	"github.com/user/gosec-audit/pkg/policy"
	"github.com/user/gosec-audit/pkg/telemetry"
)

// MessageCancelled is recorded for controls that were never dispatched because the
// audit was cancelled.
const MessageCancelled = "Audit cancelled before evaluation."

// Evaluator walks a policy and produces one result per control, in policy order.
type Evaluator struct {
	Registry *Registry

	// Workers caps concurrent handler invocations. Zero or one means sequential.
	Workers int

	// Clock stamps each result; defaults to time.Now.
	Clock func() time.Time
}

// NewEvaluator creates an evaluator dispatching through reg.
func NewEvaluator(reg *Registry, workers int) *Evaluator {
	return &Evaluator{Registry: reg, Workers: workers}
}

// Evaluate runs every control of p. It always returns exactly len(p.Controls) results
// in declaration order. Once ctx is done no further control is dispatched; the
// remaining ones are reported as ERROR with MessageCancelled.
func (e *Evaluator) Evaluate(ctx context.Context, p *policy.Policy) []ControlResult {
	if p == nil || len(p.Controls) == 0 {
		return []ControlResult{}
	}
	if e.Workers > 1 {
		return e.evaluateConcurrent(ctx, p)
	}
	return e.evaluateSequential(ctx, p)
}

func (e *Evaluator) evaluateSequential(ctx context.Context, p *policy.Policy) []ControlResult {
	results := make([]ControlResult, 0, len(p.Controls))
	for _, c := range p.Controls {
		if ctx.Err() != nil {
			results = append(results, e.cancelled(c))
			continue
		}
		results = append(results, e.evaluateControl(ctx, c))
	}
	return results
}

// evaluateConcurrent gives every control its own slot so completion order cannot
// affect report order.
func (e *Evaluator) evaluateConcurrent(ctx context.Context, p *policy.Policy) []ControlResult {
	results := make([]ControlResult, len(p.Controls))
	issued := make([]bool, len(p.Controls))

	var g errgroup.Group
	g.SetLimit(e.Workers)

	for i, c := range p.Controls {
		if ctx.Err() != nil {
			break
		}
		issued[i] = true
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = e.cancelled(c)
				return nil
			}
			results[i] = e.evaluateControl(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	for i, c := range p.Controls {
		if !issued[i] {
			results[i] = e.cancelled(c)
		}
	}
	return results
}

func (e *Evaluator) evaluateControl(ctx context.Context, c policy.Control) ControlResult {
	start := e.now()
	outcome := e.Registry.Dispatch(ctx, c)
	elapsed := e.now().Sub(start)

	logger := log.With("control", c.ID, "check_type", c.CheckType)
	switch outcome.Status {
	case StatusUnknown:
		logger.Warn("no handler registered for check type")
	case StatusError:
		logger.Warn("check failed to execute", "message", outcome.Message)
	default:
		logger.Debug("control evaluated", "status", outcome.Status, "duration", elapsed)
	}

	return newResult(c, outcome, start, elapsed)
}

func (e *Evaluator) cancelled(c policy.Control) ControlResult {
	return newResult(c, Errored(MessageCancelled), e.now(), 0)
}

func (e *Evaluator) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func newResult(c policy.Control, outcome CheckOutcome, at time.Time, elapsed time.Duration) ControlResult {
	res := ControlResult{
		ControlID:     c.ID,
		Title:         c.Title,
		Status:        outcome.Status,
		Message:       outcome.Message,
		RelevanceNote: c.Relevance(),
		EvaluatedAt:   at,
		Duration:      elapsed,
	}
	if remediation, ok := ResolveRemediation(c, outcome); ok {
		res.Remediation = remediation
	}
	return res
}

// Audit evaluates p and aggregates the results into a report.
func (e *Evaluator) Audit(ctx context.Context, p *policy.Policy, opts ...ReportOption) *Report {
	report := BuildReport(p, e.Evaluate(ctx, p), opts...)
	telemetry.RecordRun(ctx, report.PolicyName, report.Failed(false))
	return report
}
