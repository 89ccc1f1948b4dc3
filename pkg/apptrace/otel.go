// Package apptrace wires OpenTelemetry tracing the way the rest of the
// platform consumes it: a per-process Telemetry that exports spans over
// OTLP/gRPC, plus two small helpers (Start, HandleSpanError) that traced
// service, repository, and scheduler methods call.
package apptrace

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config carries the telemetry settings Initialize reads.
type Config struct {
	ServiceName     string
	ServiceVersion  string
	DeploymentEnv   string
	ExporterAddress string
	Insecure        bool
}

// Telemetry owns the process-wide tracer provider and its shutdown.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	shutdown       func(context.Context) error
}

// Initialize builds and globally registers a TracerProvider exporting over
// OTLP/gRPC to cfg.ExporterAddress.
func Initialize(ctx context.Context, cfg Config) (*Telemetry, error) {
	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.DeploymentEnv),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("apptrace: building resource: %w", err)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.ExporterAddress)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("apptrace: building exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &Telemetry{
		TracerProvider: tp,
		shutdown: func(ctx context.Context) error {
			if err := exp.Shutdown(ctx); err != nil {
				return err
			}

			return tp.Shutdown(ctx)
		},
	}, nil
}

// Shutdown flushes and tears down the tracer provider. Safe to call on a
// nil Telemetry (no-op), which lets callers skip a nil-check at the defer
// site when telemetry init was optional.
func (t *Telemetry) Shutdown(ctx context.Context) {
	if t == nil || t.shutdown == nil {
		return
	}

	if err := t.shutdown(ctx); err != nil {
		log.Printf("apptrace: shutdown error: %v", err)
	}
}

// Start opens a span named name under the package-scoped tracer tracerName.
func Start(ctx context.Context, tracerName, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name)
}

// HandleSpanError records err on span and marks the span as errored.
// Callers use it on some of their error returns, not on all of them.
func HandleSpanError(span trace.Span, message string, err error) {
	span.SetStatus(codes.Error, message+": "+err.Error())
	span.RecordError(err)
}
