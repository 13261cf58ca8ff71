package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Tracer wraps a single TracerProvider scoped to the pathfinder service,
// set as the global provider so every package can pull a tracer from
// otel.Tracer without threading one through every constructor.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracer dials the OTLP collector at endpoint and registers a
// TracerProvider for the named service. Callers must defer Shutdown.
func InitTracer(ctx context.Context, endpoint, serviceName, serviceVersion string) (*Tracer, error) {
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial otlp collector: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(512),
			sdktrace.WithBatchTimeout(2*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Tracer{provider: tp, tracer: tp.Tracer(serviceName)}, nil
}

// Shutdown flushes any buffered spans and releases the exporter connection.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

// StartQuery opens a root span for one FindPath call, tagging it with the
// fields a dashboard would filter on.
func (t *Tracer) StartQuery(ctx context.Context, pathID string, outbound, hyperpath bool) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "pathfinder.find_path",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("pathfinder.path_id", pathID),
			attribute.Bool("pathfinder.outbound", outbound),
			attribute.Bool("pathfinder.hyperpath", hyperpath),
		),
	)
}

// StartLabelStep opens a child span around one labeling-loop iteration for a
// stop. Nothing in the module calls it.
func (t *Tracer) StartLabelStep(ctx context.Context, stopID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "pathfinder.label_stop",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("pathfinder.stop_id", stopID)),
	)
}

// RecordOutcome sets a span's status from a query's outcome and, on
// failure, attaches the error.
func RecordOutcome(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return
	}
	span.SetStatus(codes.Ok, "")
}

// SpanTracer adapts the current span in ctx to a pathfinding trace sink,
// recording each labeling/enumeration line as a span event rather than a
// child span, so a verbose query doesn't explode into thousands of spans.
type SpanTracer struct{}

func (SpanTracer) Trace(ctx context.Context, pathID string, line string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(line, trace.WithAttributes(attribute.String("pathfinder.path_id", pathID)))
}
