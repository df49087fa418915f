package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// instrumentationPrefix namespaces the tracers handed out by StartSpan
const instrumentationPrefix = "github.com/platinummonkey/agora/"

// exporterDialTimeout bounds each OTLP exporter's initial connection
const exporterDialTimeout = 10 * time.Second

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	Enabled        bool    `env:"ENABLED"`
	Endpoint       string  `env:"ENDPOINT" envDefault:"localhost:4317"`
	ServiceName    string  `env:"SERVICE_NAME" envDefault:"agora"`
	ServiceVersion string  `env:"SERVICE_VERSION" envDefault:"dev"`
	Insecure       bool    `env:"INSECURE" envDefault:"true"`
	SampleRatio    float64 `env:"SAMPLE_RATIO" envDefault:"1"`
}

// Telemetry owns the OTLP pipelines installed as the global providers.
// A nil *Telemetry is valid and means tracing is off.
type Telemetry struct {
	shutdowns []namedShutdown
}

// StartTelemetry installs global trace and metric providers exporting over
// OTLP gRPC, plus W3C trace-context propagation. It returns nil when
// disabled.
func StartTelemetry(ctx context.Context, cfg OTelConfig, logger *Logger) (*Telemetry, error) {
	if !cfg.Enabled {
		logger.Info("OpenTelemetry is disabled")
		return nil, nil
	}
	logger = logger.WithFields(map[string]interface{}{
		"otel_endpoint": cfg.Endpoint,
		"sample_ratio":  cfg.SampleRatio,
	})

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	dial := dialOptions(cfg)
	t := &Telemetry{}

	traceCtx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	spans, err := otlptracegrpc.New(traceCtx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(dial...),
	)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spans,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	t.shutdowns = append(t.shutdowns, namedShutdown{"tracer provider", tracerProvider.Shutdown})

	metricCtx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	metrics, err := otlpmetricgrpc.New(metricCtx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithDialOption(dial...),
	)
	cancel()
	if err != nil {
		if shutdownErr := t.Shutdown(ctx); shutdownErr != nil {
			logger.WithError(shutdownErr).Error("Failed to stop tracing after metric exporter error")
		}
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	meterProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metrics, metric.WithInterval(10*time.Second))),
	)
	t.shutdowns = append(t.shutdowns, namedShutdown{"meter provider", meterProvider.Shutdown})

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry exporting traces and metrics")
	return t, nil
}

func dialOptions(cfg OTelConfig) []grpc.DialOption {
	if !cfg.Insecure {
		return nil
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
}

// Shutdown flushes pending spans and metrics, newest pipeline first
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		s := t.shutdowns[i]
		if err := s.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s shutdown: %w", s.name, err))
		}
	}
	t.shutdowns = nil
	return errors.Join(errs...)
}

// StartSpan starts a span on the tracer for component (a package path under
// the module, such as "pkg/storage"). It uses whatever provider is global
// at call time, so spans are no-ops until StartTelemetry runs.
func StartSpan(ctx context.Context, component, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationPrefix+component).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// withTraceContext adds the active span's IDs to logger
func withTraceContext(ctx context.Context, logger *Logger) *Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.WithFields(map[string]interface{}{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	})
}
