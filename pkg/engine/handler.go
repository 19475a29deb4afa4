package engine

import (
	"context"

	"github.com/user/gosec-audit/pkg/policy"
)

// CheckHandler evaluates one control against the live system.
//
// Handlers must be read-only, must honour ctx cancellation and must release
// whatever they acquire before returning. A returned error is reported as
// StatusError; a FAIL is a returned outcome, not an error.
type CheckHandler interface {
	Evaluate(ctx context.Context, control policy.Control) (CheckOutcome, error)
}

// CheckHandlerFunc adapts a plain function to CheckHandler.
type CheckHandlerFunc func(ctx context.Context, control policy.Control) (CheckOutcome, error)

func (f CheckHandlerFunc) Evaluate(ctx context.Context, control policy.Control) (CheckOutcome, error) {
	return f(ctx, control)
}

// Describer is implemented by handlers that can explain what they check.
type Describer interface {
	Description() string
}
