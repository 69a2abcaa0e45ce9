// Package observe provides application-wide observability primitives for
// IdeaSpark: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all IdeaSpark metrics.
const meterName = "github.com/ideaspark/ideaspark"

// Stage names one AI pipeline stage for latency and error attribution.
type Stage string

const (
	// StageExtraction is the transcript-to-structured-idea call.
	StageExtraction Stage = "extraction"

	// StageMutation is the record-plus-instruction-to-replacement call.
	StageMutation Stage = "mutation"

	// StageImage is the detached illustrative image generation.
	StageImage Stage = "image"

	// StageEmbedding is the semantic-search embedding call.
	StageEmbedding Stage = "embedding"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ExtractionDuration tracks transcript-to-idea extraction latency.
	ExtractionDuration metric.Float64Histogram

	// MutationDuration tracks AI record-mutation latency.
	MutationDuration metric.Float64Histogram

	// ImageGenDuration tracks illustrative image generation latency.
	ImageGenDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding latency for semantic search.
	EmbeddingDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// UtterancesSubmitted counts finalized utterances accepted by the
	// orchestrator.
	UtterancesSubmitted metric.Int64Counter

	// UtterancesDropped counts utterances rejected by the in-flight guard.
	UtterancesDropped metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// StageErrors counts failed pipeline-stage calls by stage.
	StageErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCaptureSessions tracks the number of connected capture clients.
	ActiveCaptureSessions metric.Int64UpDownCounter

	// ActiveWatchers tracks the number of live record-set subscriptions.
	ActiveWatchers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// AI-provider round trips, which routinely run into tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ExtractionDuration, err = m.Float64Histogram("ideaspark.extraction.duration",
		metric.WithDescription("Latency of transcript-to-idea extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MutationDuration, err = m.Float64Histogram("ideaspark.mutation.duration",
		metric.WithDescription("Latency of AI record mutation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ImageGenDuration, err = m.Float64Histogram("ideaspark.image.duration",
		metric.WithDescription("Latency of illustrative image generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("ideaspark.embedding.duration",
		metric.WithDescription("Latency of embedding calls for semantic search."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("ideaspark.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesSubmitted, err = m.Int64Counter("ideaspark.utterances.submitted",
		metric.WithDescription("Total finalized utterances accepted for processing."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesDropped, err = m.Int64Counter("ideaspark.utterances.dropped",
		metric.WithDescription("Total utterances dropped by the single in-flight guard."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("ideaspark.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.StageErrors, err = m.Int64Counter("ideaspark.stage.errors",
		metric.WithDescription("Total failed pipeline-stage calls by stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCaptureSessions, err = m.Int64UpDownCounter("ideaspark.active_capture_sessions",
		metric.WithDescription("Number of connected voice-capture clients."),
	); err != nil {
		return nil, err
	}
	if met.ActiveWatchers, err = m.Int64UpDownCounter("ideaspark.active_watchers",
		metric.WithDescription("Number of live record-set subscriptions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("ideaspark.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records one pipeline-stage latency sample, and an error
// counter increment when the stage failed.
func (m *Metrics) RecordStage(ctx context.Context, stage Stage, elapsed time.Duration, err error) {
	var hist metric.Float64Histogram
	switch stage {
	case StageExtraction:
		hist = m.ExtractionDuration
	case StageMutation:
		hist = m.MutationDuration
	case StageImage:
		hist = m.ImageGenDuration
	case StageEmbedding:
		hist = m.EmbeddingDuration
	default:
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.StageErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(stage))))
	}
	hist.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
