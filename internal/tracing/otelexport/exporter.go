// Package otelexport ships collector spans to an OTLP endpoint.
package otelexport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/jobscout/internal/tracing"
)

const defaultServiceName = "jobscout"

// Config configures the OTLP exporter.
type Config struct {
	Endpoint    string // e.g. "localhost:4317"
	Protocol    string // "grpc" (default) or "http"
	Insecure    bool
	ServiceName string
	Version     string
	Headers     map[string]string
}

// Exporter implements tracing.SpanExporter on top of the OTel SDK.
type Exporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("OTLP endpoint is required")
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	return &Exporter{provider: tp, tracer: tp.Tracer("jobscout/pipeline")}, nil
}

func (e *Exporter) ExportSpans(ctx context.Context, spans []tracing.Span) {
	if e == nil {
		return
	}
	for _, s := range spans {
		e.exportSpan(ctx, s)
	}
}

func (e *Exporter) exportSpan(ctx context.Context, s tracing.Span) {
	traceID := uuidToTraceID(s.TraceID)

	parentCtx := ctx
	if s.ParentID != nil {
		parent := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     uuidToSpanID(*s.ParentID),
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})
		parentCtx = trace.ContextWithRemoteSpanContext(parentCtx, parent)
	}

	kind := trace.SpanKindInternal
	if s.Kind == tracing.KindStage {
		kind = trace.SpanKindClient
	}

	_, span := e.tracer.Start(parentCtx, s.Name,
		trace.WithTimestamp(s.StartTime),
		trace.WithSpanKind(kind),
		trace.WithAttributes(spanAttributes(s)...),
	)
	if s.Status == tracing.StatusError {
		span.SetStatus(codes.Error, s.Error)
		if s.Error != "" {
			span.RecordError(errors.New(s.Error))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(s.EndTime))
}

func spanAttributes(s tracing.Span) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("jobscout.span_kind", s.Kind),
		attribute.String("jobscout.trace_id", s.TraceID.String()),
		attribute.String("jobscout.span_id", s.ID.String()),
		attribute.Int64("jobscout.duration_ms", s.Duration().Milliseconds()),
	}
	if s.Model != "" {
		attrs = append(attrs, attribute.String("gen_ai.request.model", s.Model))
	}
	if s.InputTokens > 0 {
		attrs = append(attrs, attribute.Int("gen_ai.usage.input_tokens", s.InputTokens))
	}
	if s.OutputTokens > 0 {
		attrs = append(attrs, attribute.Int("gen_ai.usage.output_tokens", s.OutputTokens))
	}
	if s.Attempts > 1 {
		attrs = append(attrs, attribute.Int("jobscout.attempts", s.Attempts))
	}
	if s.ToolCalls > 0 {
		attrs = append(attrs, attribute.Int("jobscout.tool_calls", s.ToolCalls))
	}
	if s.InputPreview != "" {
		attrs = append(attrs, attribute.String("jobscout.input_preview", s.InputPreview))
	}
	if s.OutputPreview != "" {
		attrs = append(attrs, attribute.String("jobscout.output_preview", s.OutputPreview))
	}
	return attrs
}

func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	slog.Info("otel exporter shutting down")
	return e.provider.Shutdown(ctx)
}

func uuidToTraceID(id [16]byte) trace.TraceID {
	return trace.TraceID(id)
}

// uuidToSpanID uses the random tail of a v7 UUID.
func uuidToSpanID(id [16]byte) trace.SpanID {
	var sid trace.SpanID
	copy(sid[:], id[8:16])
	return sid
}
