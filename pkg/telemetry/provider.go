package telemetry

import (
	"context"
	"errors"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerProvider is a trace.TracerProvider that must be closed to flush
// buffered spans before the process exits.
type TracerProvider interface {
	trace.TracerProvider

	Close(context.Context) error
}

type tracerProvider struct {
	embedded.TracerProvider

	tp *sdktrace.TracerProvider
}

// Tracer returns a tracer of the underlying provider, or a no-op tracer once the
// provider is closed.
func (t *tracerProvider) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	if t.tp == nil {
		return noop.NewTracerProvider().Tracer(name, options...)
	}
	return t.tp.Tracer(name, options...)
}

// Close flushes pending spans and shuts the provider down. Closing twice is a no-op.
func (t *tracerProvider) Close(ctx context.Context) error {
	if t.tp == nil {
		return nil
	}

	err := errors.Join(t.tp.ForceFlush(ctx), t.tp.Shutdown(ctx))
	t.tp = nil
	return err
}

type noopTracerProvider struct {
	noop.TracerProvider
}

func (noopTracerProvider) Close(context.Context) error {
	return nil
}

// Noop returns a provider whose tracers record nothing. The global provider is
// left untouched.
func Noop() TracerProvider {
	return noopTracerProvider{TracerProvider: noop.NewTracerProvider()}
}
