package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	metrics "github.com/tigerroll/dbmigrator/pkg/migrator/core/metrics"
)

const instrumentationName = "github.com/tigerroll/dbmigrator"

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
// Spans go to the global tracer provider, which stays a no-op unless telemetry is set up.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a new instance of OpenTelemetryTracer.
func NewOpenTelemetryTracer() *OpenTelemetryTracer {
	return NewOpenTelemetryTracerWithProvider(otel.GetTracerProvider())
}

// NewOpenTelemetryTracerWithProvider creates a tracer on a specific provider.
func NewOpenTelemetryTracerWithProvider(tp trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: tp.Tracer(instrumentationName)}
}

// StartJobSpan starts a new span for a job run.
func (t *OpenTelemetryTracer) StartJobSpan(ctx context.Context, job, kind string) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, kind+" "+job, trace.WithAttributes(
		attribute.String("migrator.job", job),
		attribute.String("migrator.kind", kind),
	))
	return ctx, func() { span.End() }
}

// RecordError records an error in the current span and marks the span failed.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("migrator.module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent records an event in the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
