// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/ideaspark/ideaspark/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
//
// By default it returns a deterministic pseudo-embedding derived from the
// input text, so equal texts map to equal vectors and similarity queries
// behave consistently in tests.
type Provider struct {
	mu sync.Mutex

	// Dims is the reported vector dimensionality. Defaults to 8.
	Dims int

	// EmbedVector, if non-nil, is returned from every Embed call.
	EmbedVector []float32

	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// EmbedFunc, if non-nil, computes the vector for each call and takes
	// precedence over EmbedVector.
	EmbedFunc func(text string) []float32

	// EmbedCalls records the text of every Embed invocation.
	EmbedCalls []string
}

// Compile-time interface check.
var _ embeddings.Provider = (*Provider)(nil)

// Embed implements embeddings.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	fn := p.EmbedFunc
	vec := p.EmbedVector
	err := p.EmbedErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(text), nil
	}
	if vec != nil {
		return vec, nil
	}

	out := make([]float32, p.Dimensions())
	for i, r := range text {
		out[i%len(out)] += float32(r%13) / 13
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.Dims == 0 {
		return 8
	}
	return p.Dims
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock" }

// Calls returns a snapshot of all recorded Embed invocations.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.EmbedCalls))
	copy(out, p.EmbedCalls)
	return out
}
