package session

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vango-dev/wsm/pkg/session"

// startSpan opens a client span tagged with the session identity.
func (s *Session) startSpan(name string, attrs ...attribute.KeyValue) trace.Span {
	base := []attribute.KeyValue{
		attribute.String("wsm.session_id", s.id),
		attribute.String("wsm.url", s.config.URL),
	}
	_, span := s.tracer.Start(context.Background(), name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(base, attrs...)...),
	)
	return span
}

// endSpan records err, if any, and ends span.
func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
