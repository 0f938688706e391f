// Package telemetry sets up OpenTelemetry tracing for routing and provider calls.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultServiceName = "agentrouter"

var tracer trace.Tracer

type Config struct {
	ServiceName string
	Version     string
	Environment string
	Instance    string
	// Endpoint is the OTLP gRPC collector address. Empty disables export.
	Endpoint string
	// SampleRatio applies to root spans; 0 means sample everything.
	SampleRatio float64
}

// ShutdownFunc flushes pending spans.
type ShutdownFunc func(context.Context) error

func Init(ctx context.Context, cfg Config, logger *zap.Logger) (ShutdownFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}

	if cfg.Endpoint == "" {
		tracer = otel.Tracer(cfg.ServiceName)
		logger.Info("tracing disabled, no OTLP endpoint configured")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	if cfg.Instance != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(cfg.Instance))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracer = tp.Tracer(cfg.ServiceName)

	logger.Info("tracing enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func Tracer() trace.Tracer {
	if tracer == nil {
		tracer = otel.Tracer(defaultServiceName)
	}
	return tracer
}

func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

func AddTaskAttributes(span trace.Span, taskID, taskType string, inputLen int) {
	span.SetAttributes(
		attribute.String("task.id", taskID),
		attribute.String("task.type", taskType),
		attribute.Int("task.input_length", inputLen),
	)
}

func AddSelectionAttributes(span trace.Span, provider, model string, estimatedMs float64) {
	span.SetAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Float64("estimated_time_ms", estimatedMs),
	)
}

func AddCostAttribute(span trace.Span, costUSD float64) {
	span.SetAttributes(attribute.Float64("cost.estimated_usd", costUSD))
}

func AddCacheAttribute(span trace.Span, cacheHit bool) {
	span.SetAttributes(attribute.Bool("cache.hit", cacheHit))
}

// AddCompletionAttributes annotates a provider call span.
func AddCompletionAttributes(span trace.Span, tokens int, costUSD float64, latencyMs int64) {
	span.SetAttributes(
		attribute.Int("completion.tokens", tokens),
		attribute.Float64("completion.cost_usd", costUSD),
		attribute.Int64("completion.latency_ms", latencyMs),
	)
}

// AddErrorAttribute records err on span and marks the span as failed.
func AddErrorAttribute(span trace.Span, err error) {
	span.SetAttributes(attribute.String("error.message", err.Error()))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
