// Package mock provides a test double for the image.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/ideaspark/ideaspark/pkg/provider/image"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Req is the Request passed to Generate.
	Req image.Request
}

// Provider is a mock implementation of image.Provider.
// Zero values cause Generate to return an empty Image and nil error.
type Provider struct {
	mu sync.Mutex

	// GenerateImage is returned from Generate when GenerateErr is nil.
	GenerateImage image.Image

	// GenerateErr, if non-nil, is returned as the error from Generate.
	GenerateErr error

	// Block, if non-nil, is received from before Generate returns. Close it
	// (or send on it) to release in-flight calls; use this to hold an image
	// generation open while asserting it does not block the caller.
	Block chan struct{}

	// GenerateCalls records every invocation of Generate.
	GenerateCalls []GenerateCall
}

// Compile-time interface check.
var _ image.Provider = (*Provider)(nil)

// Generate implements image.Provider.
func (p *Provider) Generate(ctx context.Context, req image.Request) (image.Image, error) {
	p.mu.Lock()
	p.GenerateCalls = append(p.GenerateCalls, GenerateCall{Ctx: ctx, Req: req})
	img := p.GenerateImage
	err := p.GenerateErr
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return image.Image{}, ctx.Err()
		}
	}
	if err != nil {
		return image.Image{}, err
	}
	return img, nil
}

// Calls returns a snapshot of all recorded Generate invocations.
func (p *Provider) Calls() []GenerateCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]GenerateCall, len(p.GenerateCalls))
	copy(out, p.GenerateCalls)
	return out
}
