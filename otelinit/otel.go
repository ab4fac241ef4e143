// Package otelinit wires the global OpenTelemetry providers to OTLP gRPC
// exporters for hosts that want the engine's instruments and spans
// delivered somewhere. The engine itself only talks to the global API, so
// calling into this package is optional.
package otelinit

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
)

// InitTracer configures a global tracer provider with an OTLP gRPC
// exporter and returns its shutdown function. Exporter construction
// failures degrade to a no-op shutdown so hosts start regardless.
func InitTracer(ctx context.Context, service string) func(context.Context) error {
	endpoint := endpointFromEnv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("otel trace exporter init failed", "error", err)
		return func(context.Context) error { return nil }
	}
	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(serviceResource(service)),
	)
	otel.SetTracerProvider(tp)
	slog.Info("otel tracer initialized", "endpoint", endpoint)
	return tp.Shutdown
}

// WithSpan starts a span on the taskmesh tracer and returns the derived
// context and an end function.
func WithSpan(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := otel.Tracer("taskmesh").Start(ctx, name)
	return ctx, func() { span.End() }
}

// Flush gives a provider shutdown a bounded window to drain.
func Flush(ctx context.Context, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func serviceResource(service string) *resource.Resource {
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	))
	return res
}

// endpointFromEnv resolves the signal-specific endpoint, then the generic
// one, then the local collector default.
func endpointFromEnv(signalVar string) string {
	if v := os.Getenv(signalVar); v != "" {
		return v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		return v
	}
	return "localhost:4317"
}
