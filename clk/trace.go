package clk

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/Jon-Bright/clkctl/clk")

func startSpan(op string, attrs ...attribute.KeyValue) trace.Span {
	_, span := tracer.Start(context.Background(), "clk."+op, trace.WithAttributes(attrs...))
	return span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
