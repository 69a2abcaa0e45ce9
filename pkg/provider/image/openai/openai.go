// Package openai provides an image synthesis provider backed by the OpenAI
// Images API.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ideaspark/ideaspark/pkg/provider/image"
)

// DefaultModel is the default OpenAI image model.
const DefaultModel = oai.ImageModelGPTImage1

// Compile-time interface check.
var _ image.Provider = (*Provider)(nil)

// Provider implements image.Provider using the OpenAI Images API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout. Image generation is slow;
// callers that detach generation should still bound it.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI image Provider.
// If model is empty, DefaultModel is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai image: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Generate implements image.Provider.
func (p *Provider) Generate(ctx context.Context, req image.Request) (image.Image, error) {
	if req.Prompt == "" {
		return image.Image{}, fmt.Errorf("openai image: prompt must not be empty")
	}

	params := oai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  oai.ImageModel(p.model),
		Size:   sizeForAspect(req.AspectRatio),
	}

	resp, err := p.client.Images.Generate(ctx, params)
	if err != nil {
		return image.Image{}, fmt.Errorf("openai image: generate: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return image.Image{}, fmt.Errorf("openai image: empty response payload")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return image.Image{}, fmt.Errorf("openai image: decode payload: %w", err)
	}

	return image.Image{MIMEType: "image/png", Data: data}, nil
}

// sizeForAspect maps an aspect-ratio hint to the nearest supported output size.
func sizeForAspect(aspect string) oai.ImageGenerateParamsSize {
	switch aspect {
	case "16:9", "3:2":
		return oai.ImageGenerateParamsSize1536x1024
	case "9:16", "2:3":
		return oai.ImageGenerateParamsSize1024x1536
	case "1:1":
		return oai.ImageGenerateParamsSize1024x1024
	default:
		return oai.ImageGenerateParamsSizeAuto
	}
}
