package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "particlegrid"

// TraceSpan wraps an otel span. A nil *TraceSpan is valid and does nothing,
// which is what CreateSpan returns before InitTracer has run.
type TraceSpan struct {
	span oteltrace.Span
}

type SpanConfig struct {
	ServiceName    string
	ServiceVersion string
	SampleRate     float64
	// Output receives exported spans. Defaults to stdout.
	Output io.Writer
}

// globalTracer is read by every engine call and swapped by InitTracer and
// its shutdown function.
var globalTracer atomic.Pointer[oteltrace.Tracer]

// InitTracer installs a sampled stdout exporter as the global tracer
// provider. The returned function flushes and stops it.
func InitTracer(config SpanConfig) (func(context.Context) error, error) {
	if config.SampleRate < 0 || config.SampleRate > 1 {
		return nil, fmt.Errorf("sample rate must be between 0 and 1")
	}
	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(out),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		)),
		trace.WithSampler(trace.TraceIDRatioBased(config.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	tracer := tp.Tracer(instrumentationName)
	globalTracer.Store(&tracer)
	return func(ctx context.Context) error {
		globalTracer.CompareAndSwap(&tracer, nil)
		return tp.Shutdown(ctx)
	}, nil
}

// CreateSpan starts a child span of ctx named after a grid operation.
func CreateSpan(ctx context.Context, name string) (context.Context, *TraceSpan) {
	tracer := globalTracer.Load()
	if tracer == nil {
		return ctx, nil
	}

	newCtx, span := (*tracer).Start(ctx, name, oteltrace.WithAttributes(
		attribute.String(string(ComponentKey), instrumentationName),
	))

	return newCtx, &TraceSpan{
		span: span,
	}
}

func (s *TraceSpan) End() {
	if s != nil && s.span != nil {
		s.span.End()
	}
}

// SetShape records the batch and particle counts an operation ran over.
func (s *TraceSpan) SetShape(batch, n, dim int) {
	if s != nil && s.span != nil {
		s.span.SetAttributes(
			attribute.Int(string(BatchKey), batch),
			attribute.Int(string(ParticlesKey), n),
			attribute.Int(string(DimKey), dim),
		)
	}
}

func (s *TraceSpan) SetBackend(name string) {
	if s != nil && s.span != nil {
		s.span.SetAttributes(attribute.String(string(BackendKey), name))
	}
}

// Finish records err, when non-nil, and ends the span.
func (s *TraceSpan) Finish(err error) {
	if s == nil || s.span == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

func (s *TraceSpan) GetTraceID() string {
	if s == nil || s.span == nil {
		return ""
	}
	return s.span.SpanContext().TraceID().String()
}

func GetContextTraceID(ctx context.Context) string {
	span := oteltrace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

type SpanAttributeKey string

const (
	ComponentKey SpanAttributeKey = "component"
	BackendKey   SpanAttributeKey = "grid.backend"
	BatchKey     SpanAttributeKey = "grid.batch"
	ParticlesKey SpanAttributeKey = "grid.particles"
	DimKey       SpanAttributeKey = "grid.dim"
)
