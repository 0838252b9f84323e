package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type tracerKey struct{}

func NewContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	return context.WithValue(ctx, tracerKey{}, tracer)
}

func TracerFromContext(ctx context.Context) (trace.Tracer, bool) {
	tracer, ok := ctx.Value(tracerKey{}).(trace.Tracer)
	return tracer, ok
}

// MustTracerFromContext panics when no tracer was attached with
// NewContextWithTracer or WithOtelTracerContext.
func MustTracerFromContext(ctx context.Context) trace.Tracer {
	tracer, ok := TracerFromContext(ctx)
	if !ok {
		panic("telemetry: no tracer in context")
	}
	return tracer
}
