// Package telemetry instruments check dispatch with OpenTelemetry metrics and traces.
//
// Instruments come from the global providers. Nothing is exported unless the
// embedding program installs a provider, and instrumentation never fails an audit.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/gosec-audit/pkg/log"
)

const (
	// TracerName is the tracer name for the audit engine
	TracerName = "github.com/user/gosec-audit"

	// MeterName is the meter name for the audit engine
	MeterName = "github.com/user/gosec-audit"
)

var (
	mu     sync.RWMutex
	tracer trace.Tracer

	// CheckDispatchCounter counts dispatched controls by check type and status
	CheckDispatchCounter metric.Int64Counter

	// CheckDuration tracks handler latency in milliseconds
	CheckDuration metric.Float64Histogram

	// AuditRunCounter counts completed audit runs
	AuditRunCounter metric.Int64Counter
)

// Init (re)creates the instruments from the current global providers.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	initLocked()
}

func initLocked() {
	tracer = otel.GetTracerProvider().Tracer(TracerName)
	meter := otel.GetMeterProvider().Meter(MeterName)

	var err error
	CheckDispatchCounter, err = meter.Int64Counter("audit.check.dispatches",
		metric.WithDescription("Number of controls dispatched to a check handler"),
		metric.WithUnit("1"))
	if err != nil {
		log.Debugf("telemetry: creating dispatch counter: %v", err)
	}

	CheckDuration, err = meter.Float64Histogram("audit.check.duration",
		metric.WithDescription("Duration of check handler execution"),
		metric.WithUnit("ms"))
	if err != nil {
		log.Debugf("telemetry: creating duration histogram: %v", err)
	}

	AuditRunCounter, err = meter.Int64Counter("audit.runs",
		metric.WithDescription("Number of completed audit runs"),
		metric.WithUnit("1"))
	if err != nil {
		log.Debugf("telemetry: creating run counter: %v", err)
	}
}

func ensure() {
	mu.RLock()
	ready := tracer != nil
	mu.RUnlock()
	if ready {
		return
	}
	mu.Lock()
	if tracer == nil {
		initLocked()
	}
	mu.Unlock()
}

// StartControlSpan opens a span around one control's dispatch.
func StartControlSpan(ctx context.Context, controlID, checkType string) (context.Context, trace.Span) {
	ensure()
	mu.RLock()
	t := tracer
	mu.RUnlock()
	return t.Start(ctx, "audit.control",
		trace.WithAttributes(
			attribute.String("audit.control.id", controlID),
			attribute.String("audit.check.type", checkType),
		))
}

// RecordCheck records one dispatch outcome.
func RecordCheck(ctx context.Context, checkType, status string, elapsed time.Duration) {
	ensure()
	mu.RLock()
	counter, hist := CheckDispatchCounter, CheckDuration
	mu.RUnlock()

	attrs := metric.WithAttributes(
		attribute.String("audit.check.type", checkType),
		attribute.String("audit.status", status),
	)
	if counter != nil {
		counter.Add(ctx, 1, attrs)
	}
	if hist != nil {
		hist.Record(ctx, float64(elapsed.Microseconds())/1000.0, attrs)
	}
}

// RecordRun records a finished audit run.
func RecordRun(ctx context.Context, policyName string, failed bool) {
	ensure()
	mu.RLock()
	counter := AuditRunCounter
	mu.RUnlock()
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("audit.policy", policyName),
		attribute.Bool("audit.failed", failed),
	))
}
