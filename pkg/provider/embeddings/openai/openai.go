// Package openai provides an embeddings provider backed by the OpenAI
// Embeddings API.
//
// text-embedding-3 models accept a "dimensions" parameter that shortens the
// returned vector. The provider always sends it so that the vectors match
// the knowledge store's column width regardless of the model's native size.
package openai

import (
	"context"
	"errors"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/jargonaut/pkg/provider/embeddings"
)

// DefaultModel is used when New is called with an empty model.
const DefaultModel = "text-embedding-3-small"

var _ embeddings.Provider = (*Provider)(nil)

// nativeDimensions lists the full output size of known OpenAI models.
var nativeDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Provider implements embeddings.Provider using the OpenAI API.
type Provider struct {
	client     oai.Client
	model      string
	dimensions int
	shorten    bool
}

type config struct {
	baseURL    string
	dimensions int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithDimensions requests vectors of exactly dims elements. Only the
// text-embedding-3 family supports shortening; for other models dims must
// equal the native size.
func WithDimensions(dims int) Option {
	return func(c *config) { c.dimensions = dims }
}

// New creates an OpenAI embeddings Provider.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	native, known := nativeDimensions[model]
	dims := native
	shorten := false
	if cfg.dimensions > 0 {
		if known && cfg.dimensions > native {
			return nil, fmt.Errorf("openai embeddings: %s produces at most %d dimensions, %d requested", model, native, cfg.dimensions)
		}
		if model == "text-embedding-ada-002" && cfg.dimensions != native {
			return nil, fmt.Errorf("openai embeddings: %s does not support custom dimensions", model)
		}
		shorten = cfg.dimensions != native
		dims = cfg.dimensions
	}
	if dims == 0 {
		return nil, fmt.Errorf("openai embeddings: unknown model %q requires WithDimensions", model)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Provider{
		client:     oai.NewClient(reqOpts...),
		model:      model,
		dimensions: dims,
		shorten:    shorten || !known,
	}, nil
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	params := oai.EmbeddingNewParams{
		Model: oai.EmbeddingModel(p.model),
		Input: oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
	}
	if p.shorten {
		params.Dimensions = param.NewOpt(int64(p.dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: empty data in response")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	if len(vec) != p.dimensions {
		return nil, fmt.Errorf("openai embeddings: got %d dimensions, want %d", len(vec), p.dimensions)
	}
	return vec, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.dimensions }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.model }
