package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/gosec-audit/pkg/policy"
	"github.com/user/gosec-audit/pkg/telemetry"
)

// DefaultCheckTimeout bounds a single handler invocation when no timeout is configured.
const DefaultCheckTimeout = 5 * time.Second

// ErrDuplicateCheckType is returned when a check type is registered twice.
var ErrDuplicateCheckType = errors.New("check type already registered")

// Registry maps check types to handlers and isolates handler failures.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]CheckHandler
	timeout  time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTimeout bounds every handler invocation. Non-positive values keep the default.
func WithTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		handlers: make(map[string]CheckHandler),
		timeout:  DefaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Timeout returns the per-invocation bound.
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

// Register adds a handler for checkType. Registering the same type twice is an error.
func (r *Registry) Register(checkType string, h CheckHandler) error {
	checkType = strings.TrimSpace(checkType)
	if checkType == "" {
		return fmt.Errorf("check type must not be empty")
	}
	if h == nil {
		return fmt.Errorf("nil handler for check type %q", checkType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[checkType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCheckType, checkType)
	}
	r.handlers[checkType] = h
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(checkType string, h CheckHandler) {
	if err := r.Register(checkType, h); err != nil {
		panic(err)
	}
}

// Handler returns the handler registered for checkType.
func (r *Registry) Handler(checkType string) (CheckHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[checkType]
	return h, ok
}

// CheckTypes returns the registered check types, sorted.
func (r *Registry) CheckTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

// Describe returns the handler's description, if it provides one.
func (r *Registry) Describe(checkType string) string {
	h, ok := r.Handler(checkType)
	if !ok {
		return ""
	}
	if d, ok := h.(Describer); ok {
		return d.Description()
	}
	return ""
}

// Dispatch routes control to its handler. It never panics and never returns an error:
// unregistered types yield UNKNOWN, handler errors, panics and timeouts yield ERROR.
func (r *Registry) Dispatch(ctx context.Context, control policy.Control) CheckOutcome {
	h, ok := r.Handler(control.CheckType)
	if !ok {
		telemetry.RecordCheck(ctx, control.CheckType, string(StatusUnknown), 0)
		return Unknown()
	}

	ctx, span := telemetry.StartControlSpan(ctx, control.ID, control.CheckType)
	defer span.End()

	start := time.Now()
	outcome := r.invoke(ctx, h, control)
	telemetry.RecordCheck(ctx, control.CheckType, string(outcome.Status), time.Since(start))
	return outcome
}

func (r *Registry) invoke(ctx context.Context, h CheckHandler, control policy.Control) CheckOutcome {
	// Aborting the audit must not kill a handler mid-I/O; only the timeout bounds it.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	done := make(chan CheckOutcome, 1)
	go func() {
		done <- safeEvaluate(callCtx, h, control)
	}()

	select {
	case outcome := <-done:
		return outcome
	case <-callCtx.Done():
		select {
		case outcome := <-done:
			return outcome
		default:
		}
		return Errored("check timed out after %s", r.timeout)
	}
}

func safeEvaluate(ctx context.Context, h CheckHandler, control policy.Control) (outcome CheckOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = Errored("check handler panicked: %v", rec)
		}
	}()

	out, err := h.Evaluate(ctx, control)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Errored("check timed out: %v", err)
		}
		return Errored("%v", err)
	}
	if out.Status == "" {
		return Errored("check handler returned no status")
	}
	if !out.Status.Valid() {
		return Errored("check handler returned invalid status %q", out.Status)
	}
	return out
}
