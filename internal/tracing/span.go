package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on lookup spans.
const (
	AttrLookupSource = attribute.Key("macrovars.lookup.source")
	AttrLookupKey    = attribute.Key("macrovars.lookup.key")
	AttrFound        = attribute.Key("macrovars.lookup.found")
)

// StartLookupSpan starts a client span named "<source> lookup" for an
// enrichment call such as a Canvas course fetch.
func StartLookupSpan(ctx context.Context, tracer trace.Tracer, source, key string) (context.Context, trace.Span) {
	name := "lookup"
	if source != "" {
		name = source + " lookup"
	}
	ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(AttrLookupSource.String(source))
	if key != "" {
		span.SetAttributes(AttrLookupKey.String(key))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
