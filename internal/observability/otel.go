// Package observability sets up OpenTelemetry tracing for the server and
// worker binaries.
package observability

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/edupredict/risk-monitor/config"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

// TracerName is the instrumentation scope used by every span in the service.
const TracerName = "github.com/edupredict/risk-monitor"

var (
	otelOnce     sync.Once
	otelShutdown func(context.Context) error = func(context.Context) error { return nil }
)

// InitTracing installs the global tracer provider and propagator. It is a
// no-op returning a no-op shutdown when tracing is disabled. Exporter
// problems are logged and tracing continues with spans dropped.
func InitTracing(ctx context.Context, log *logger.Logger, component string, app config.AppConfig, obs config.ObservabilityConfig) func(context.Context) error {
	otelOnce.Do(func() {
		// Propagation is installed even when export is disabled.
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		if !obs.TracingEnabled {
			return
		}

		serviceName := strings.TrimSpace(app.Name)
		if serviceName == "" {
			serviceName = "edupredict"
		}
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceNameKey.String(serviceName),
				semconv.ServiceVersionKey.String(app.Version),
				attribute.String("deployment.environment", string(app.Environment)),
				attribute.String("service.component", component),
			),
		)
		if err != nil {
			log.Warn("otel resource init failed, continuing", logger.Err(err))
		}

		sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRatio(obs.TracingRatio)))
		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sampler),
			sdktrace.WithResource(res),
		}

		exporter, err := buildExporter(ctx, obs.TracingEndpoint)
		if err != nil {
			log.Warn("otel exporter init failed, continuing", logger.Err(err))
		} else {
			opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		}

		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otelShutdown = tp.Shutdown

		endpoint := obs.TracingEndpoint
		if endpoint == "" {
			endpoint = "stdout"
		}
		log.Info("otel tracing initialized",
			logger.String("service", serviceName),
			logger.Component(component),
			logger.String("endpoint", endpoint),
		)
	})
	return otelShutdown
}

func buildExporter(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}

	opts := []otlptracehttp.Option{}
	if strings.HasPrefix(endpoint, "http://") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
	opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
	return otlptracehttp.New(ctx, opts...)
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}
