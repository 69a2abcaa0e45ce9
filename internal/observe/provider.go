package observe

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the OpenTelemetry SDK for the ideaspark process.
type ProviderConfig struct {
	// ServiceName is reported on every span and metric. Default: "ideaspark".
	ServiceName string

	// ServiceVersion is the build version stamped into the telemetry
	// resource, usually main.version.
	ServiceVersion string

	// TraceExporter receives finished spans. Leaving it nil keeps spans
	// in-process only: the orchestrator's utterance spans still exist for
	// correlation IDs and log enrichment, they are just never shipped
	// anywhere. Deployments that want them set an OTLP exporter here.
	TraceExporter sdktrace.SpanExporter
}

// InitProvider wires up the global OTel providers the rest of the module
// relies on: the meter provider behind [Metrics] (bridged to Prometheus so
// /metrics keeps working), the tracer provider behind [StartSpan], and the
// W3C trace-context propagator the HTTP [Middleware] uses to join caller
// traces.
//
// The returned shutdown function flushes both providers; call it deferred
// from main.
func InitProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ideaspark"
	}

	res, err := serviceResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("observe: build telemetry resource: %w", err)
	}

	mp, err := newMeterProvider(res)
	if err != nil {
		return nil, fmt.Errorf("observe: build meter provider: %w", err)
	}
	tp := newTracerProvider(res, cfg.TraceExporter)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	shutdown := func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}
	return shutdown, nil
}

func serviceResource(cfg ProviderConfig) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
}

// newMeterProvider builds a meter provider that publishes through the
// Prometheus bridge, so the counters and histograms declared in metrics.go
// land on the /metrics scrape endpoint.
func newMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	), nil
}

func newTracerProvider(res *resource.Resource, exp sdktrace.SpanExporter) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...)
}
