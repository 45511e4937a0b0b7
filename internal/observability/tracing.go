// Package observability holds the prometheus collectors and the OpenTelemetry
// tracer setup shared by the mds-form binaries.
package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/vpriesta/mds-form/internal/logging"
)

// TracerName is the instrumentation scope used for spans created by this module.
const TracerName = "github.com/vpriesta/mds-form"

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// InitTracing installs a global tracer provider for the given exporter
// ("none", "stdout" or "otlp") and returns its shutdown function. With "none"
// the default no-op provider stays in place.
func InitTracing(ctx context.Context, log *logging.Logger, exporter, serviceName string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var exp sdktrace.SpanExporter
	var err error
	switch strings.ToLower(strings.TrimSpace(exporter)) {
	case "", "none":
		return noop, nil
	case "stdout":
		exp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		// Endpoint, headers and TLS come from the standard OTEL_EXPORTER_OTLP_* variables.
		exp, err = otlptracehttp.New(ctx)
	default:
		return noop, fmt.Errorf("unknown tracing exporter %q", exporter)
	}
	if err != nil {
		return noop, fmt.Errorf("init %s exporter: %w", exporter, err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		log.Warn("otel resource init failed (continuing)", "error", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Info("otel tracing initialized", "service", serviceName, "exporter", exporter)
	return tp.Shutdown, nil
}
