package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the request engine's span source, registered as the global
// tracer provider's "ai-gateway.request" tracer. Engine spans reach
// whatever exporter NewTracerProvider wired at startup, or are no-ops if
// tracing was never configured (otel's default no-op provider).
func Tracer() trace.Tracer {
	return otel.Tracer("ai-gateway.request")
}

// NewTracerProvider builds an OTLP/HTTP-exporting TracerProvider pointed at
// endpoint and registers it as the global provider. Callers are
// responsible for calling Shutdown on the returned provider during
// graceful shutdown.
func NewTracerProvider(ctx context.Context, endpoint, serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}
