// Package observability provides metrics recorders and tracers for document
// operations.
package observability

import (
	"context"
	"time"
)

// MetricsRecorder receives the outcome of each named operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation's error, if any.
type TraceSpan interface {
	End(err error)
}

// NoopRecorder discards observations.
type NoopRecorder struct{}

// Observe implements MetricsRecorder.
func (NoopRecorder) Observe(context.Context, string, bool, time.Duration) {}

// NoopTracer produces spans that do nothing.
type NoopTracer struct{}

// Start implements Tracer.
func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Instrument runs fn inside a span and records its outcome.
func Instrument(ctx context.Context, rec MetricsRecorder, tr Tracer, operation string, fn func(context.Context) error) error {
	if rec == nil {
		rec = NoopRecorder{}
	}
	if tr == nil {
		tr = NoopTracer{}
	}
	start := time.Now()
	ctx, span := tr.Start(ctx, operation)
	err := fn(ctx)
	span.End(err)
	rec.Observe(ctx, operation, err == nil, time.Since(start))
	return err
}
