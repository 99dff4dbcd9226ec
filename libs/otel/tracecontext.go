package otelx

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
)

// Outbox rows always store W3C trace context, whatever the global propagator.
var w3c = propagation.TraceContext{}

// TraceContextStrings returns the traceparent and tracestate of the span in ctx.
func TraceContextStrings(ctx context.Context) (traceparent, tracestate string) {
	carrier := propagation.MapCarrier{}
	w3c.Inject(ctx, carrier)
	return carrier.Get("traceparent"), carrier.Get("tracestate")
}

// ContextWithTraceContext restores a remote span context saved by
// TraceContextStrings. Empty values leave ctx unchanged.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": traceparent}
	if tracestate != "" {
		carrier.Set("tracestate", tracestate)
	}
	return w3c.Extract(ctx, carrier)
}
