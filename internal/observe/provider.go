package observe

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// AttrSession labels telemetry with the history session of this process.
const AttrSession = "jarvis.session_id"

// ProviderConfig describes the running assistant to the OpenTelemetry SDK.
type ProviderConfig struct {
	// ServiceName defaults to "jarvis".
	ServiceName string

	// ServiceVersion is the build version, "dev" when unset.
	ServiceVersion string

	// SessionID is the history session of this process. It becomes the
	// service instance id so metrics of concurrent assistants stay apart.
	SessionID string

	// TraceExporter receives finished spans. Nil records spans without
	// exporting them.
	TraceExporter sdktrace.SpanExporter
}

// Resource builds the telemetry resource for cfg.
func (cfg ProviderConfig) Resource() (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "jarvis"
	}
	version := cfg.ServiceVersion
	if version == "" {
		version = "dev"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(name),
		semconv.ServiceVersion(version),
	}
	if cfg.SessionID != "" {
		attrs = append(attrs,
			semconv.ServiceInstanceID(cfg.SessionID),
			attribute.String(AttrSession, cfg.SessionID),
		)
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

// InitProvider installs global meter and tracer providers for the assistant.
// Metrics go to a Prometheus exporter on the default registry, which
// /metrics serves. The returned function flushes and closes both providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := cfg.Resource()
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	exporter, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
