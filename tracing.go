package wampc

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jcelliott/wampc"

// startSpan opens a client span for a WAMP request. The tracer comes from the
// global provider, which is a no-op unless the application installs one.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// tagRequest adds the request id to the span carried by ctx.
func tagRequest(ctx context.Context, id ID) {
	trace.SpanFromContext(ctx).SetAttributes(attrRequest(id))
}

func attrRealm(realm URI) attribute.KeyValue { return attribute.String("wamp.realm", string(realm)) }
func attrTopic(topic URI) attribute.KeyValue { return attribute.String("wamp.topic", string(topic)) }
func attrProcedure(p URI) attribute.KeyValue { return attribute.String("wamp.procedure", string(p)) }
func attrRequest(id ID) attribute.KeyValue   { return attribute.Int64("wamp.request_id", int64(id)) }
