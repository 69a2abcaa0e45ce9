// Package image defines the Provider interface for image synthesis backends.
//
// An image provider wraps a hosted text-to-image service and turns a prompt
// into a single illustrative image. The caller treats generation as
// best-effort: a record is complete without an image, and a failed or slow
// generation must never block the operation that requested it.
//
// Implementations must be safe for concurrent use.
package image

import (
	"context"
	"encoding/base64"
)

// Image is a generated image payload.
type Image struct {
	// MIMEType is the payload media type (e.g., "image/png").
	MIMEType string

	// Data is the raw image bytes.
	Data []byte
}

// DataURL renders the image as an RFC 2397 data URL, the form in which
// images are stored on idea records.
func (i Image) DataURL() string {
	if len(i.Data) == 0 {
		return ""
	}
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Request describes the image to generate.
type Request struct {
	// Prompt is the full text-to-image prompt.
	Prompt string

	// AspectRatio is a hint such as "16:9". Providers map it to their
	// nearest supported output size; an empty value uses the provider
	// default.
	AspectRatio string
}

// Provider is the abstraction over any image synthesis backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Generate produces one image for req. Returns an error if the request
	// fails or ctx is cancelled; callers are expected to treat any error as
	// non-fatal.
	Generate(ctx context.Context, req Request) (Image, error)
}
