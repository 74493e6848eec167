// Package otel wires OpenTelemetry metrics and tracing for AgentMesh. No
// exporter is configured here; deployments attach one by swapping the
// providers before Init returns them globally.
package otel

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ShutdownFunc flushes and shuts down the telemetry providers.
type ShutdownFunc func(ctx context.Context) error

// Init installs SDK meter and tracer providers as the globals and returns a
// shutdown function. Without an attached exporter the providers are cheap
// no-op-like pipelines, but instruments and spans stay real so an exporter
// can be added without touching call sites.
func Init(serviceName string) ShutdownFunc {
	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)))
	if err != nil {
		slog.Warn("otel resource init failed", "error", err)
		res = resource.Default()
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		if err := mp.Shutdown(ctx); err != nil {
			return err
		}
		return tp.Shutdown(ctx)
	}
}
