package obs

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig is the subset of configuration tracing needs, kept narrow so
// this package doesn't import internal/config and create a cycle.
type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

// MaybeInitTracing wires a global OTLP/HTTP tracer provider when tracing is
// enabled and an endpoint is configured; it is a no-op (nil, nil) otherwise,
// since tracing is ambient observability, not a required collaborator.
func MaybeInitTracing(cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, nil
	}

	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	))
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("export-worker"),
		semconv.HostNameKey.String(hostname),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// StartJobSpan opens a span around one processor stage (claim, render,
// upload, complete) for a given job id.
func StartJobSpan(ctx context.Context, stage, jobID, kind string) (context.Context, trace.Span) {
	tracer := otel.Tracer("export-worker")
	return tracer.Start(ctx, "export."+stage,
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("job.kind", kind),
		),
	)
}

// RecordError records an error on the span held in ctx, if any.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks the span held in ctx as successful.
func SetSpanSuccess(ctx context.Context) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetStatus(codes.Ok, "success")
	}
}

// TracerShutdown gracefully drains a tracer provider, tolerating a nil
// provider when tracing was never enabled.
func TracerShutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
