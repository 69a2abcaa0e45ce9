package observe

import (
	"context"
	"time"

	"github.com/ideaspark/ideaspark/pkg/provider/embeddings"
)

// Compile-time interface check.
var _ embeddings.Provider = (*InstrumentedEmbedder)(nil)

// InstrumentedEmbedder decorates an [embeddings.Provider] with pipeline
// instrumentation: every Embed call records one [StageEmbedding] latency
// sample plus a provider request counter increment, and an error counter
// increment on failure. The record store embeds on create, update, and
// semantic search, so this is where embedding traffic becomes visible.
type InstrumentedEmbedder struct {
	inner   embeddings.Provider
	name    string
	metrics *Metrics
}

// InstrumentEmbedder wraps inner. name is the configured provider name used
// as the metric attribute (e.g., "openai").
func InstrumentEmbedder(inner embeddings.Provider, name string, m *Metrics) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{inner: inner, name: name, metrics: m}
}

// Embed implements [embeddings.Provider].
func (e *InstrumentedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := e.inner.Embed(ctx, text)
	e.metrics.RecordStage(ctx, StageEmbedding, time.Since(start), err)

	status := "ok"
	if err != nil {
		status = "error"
		e.metrics.RecordProviderError(ctx, e.name, "embeddings")
	}
	e.metrics.RecordProviderRequest(ctx, e.name, "embeddings", status)
	return vec, err
}

// Dimensions implements [embeddings.Provider].
func (e *InstrumentedEmbedder) Dimensions() int { return e.inner.Dimensions() }

// ModelID implements [embeddings.Provider].
func (e *InstrumentedEmbedder) ModelID() string { return e.inner.ModelID() }
