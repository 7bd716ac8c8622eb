package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the global tracer instance for the catchup-feed application.
var tracer = otel.Tracer("catchup-feed")

// GetTracer returns the global tracer for creating spans.
// This tracer can be used throughout the application to create new spans.
//
// Example usage:
//
//	ctx, span := tracing.GetTracer().Start(ctx, "operation-name")
//	defer span.End()
func GetTracer() trace.Tracer {
	return tracer
}

// InitTracer installs a process-wide TracerProvider under serviceName and
// registers it as the global provider GetTracer/Middleware draw from. No
// span exporter is attached yet (spans are sampled and ended, not shipped
// anywhere) — wiring one (OTLP, Jaeger) is a matter of adding a
// sdktrace.WithBatcher(exporter) option here once an endpoint exists.
//
// Returns a shutdown func that flushes and releases the provider; callers
// should defer it.
func InitTracer(serviceName string) func(context.Context) error {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(serviceName)
	return tp.Shutdown
}
