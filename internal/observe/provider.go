package observe

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TelemetryConfig describes the process to the telemetry backends.
type TelemetryConfig struct {
	ServiceName    string // default "grenouille"
	ServiceVersion string

	// Source and AssistantNames are attached to the resource so dashboards
	// can tell several assistants apart.
	Source         string
	AssistantNames []string

	// SampleRatio is the fraction of utterance traces kept. Zero keeps all.
	SampleRatio float64

	// SpanExporter receives finished spans. Nil records spans without
	// exporting them.
	SpanExporter sdktrace.SpanExporter
}

// Telemetry owns the global meter and tracer providers.
type Telemetry struct {
	Meters  *sdkmetric.MeterProvider
	Tracers *sdktrace.TracerProvider
}

// InitTelemetry installs a Prometheus-backed meter provider, a tracer provider
// and the W3C trace-context propagator as the process-wide OpenTelemetry
// globals. Metrics are served by promhttp on /metrics.
func InitTelemetry(cfg TelemetryConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "grenouille"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Source != "" {
		attrs = append(attrs, attribute.String("grenouille.audio.source", cfg.Source))
	}
	if len(cfg.AssistantNames) > 0 {
		attrs = append(attrs, attribute.StringSlice("grenouille.assistant.names", cfg.AssistantNames))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	exporter, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exporter))

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}
	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res), sdktrace.WithSampler(sampler)}
	if cfg.SpanExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.SpanExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return &Telemetry{Meters: mp, Tracers: tp}, nil
}

// Shutdown flushes spans, then metrics.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.Tracers.Shutdown(ctx), t.Meters.Shutdown(ctx))
}
