// Package tracing builds the OpenTelemetry SDK tracer provider. Spans are
// exported as JSON lines to a writer, normally stdout, for a log shipper or
// collector sidecar to pick up.
package tracing

import (
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"contactlink/internal/config"
)

// New creates a batching tracer provider that samples root spans at
// cfg.SampleRatio and follows the parent's decision otherwise.
// The caller owns the provider and must Shutdown it to flush pending spans.
func New(cfg config.TracingConfig, w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
	), nil
}
