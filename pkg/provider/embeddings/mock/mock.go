// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jargonaut/pkg/provider/embeddings"
)

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	Text string
}

// Provider is a mock implementation of embeddings.Provider.
//
// When EmbedResult is nil and EmbedErr is nil, Embed returns a vector of
// DimensionsValue elements all set to 0.1.
type Provider struct {
	mu sync.Mutex

	EmbedResult     []float32
	EmbedErr        error
	DimensionsValue int
	ModelIDValue    string

	EmbedCalls []EmbedCall
}

// Embed records the call and returns EmbedResult, EmbedErr.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Text: text})
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if p.EmbedResult != nil {
		out := make([]float32, len(p.EmbedResult))
		copy(out, p.EmbedResult)
		return out, nil
	}
	out := make([]float32, p.DimensionsValue)
	for i := range out {
		out[i] = 0.1
	}
	return out, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// CallCount returns the number of Embed calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.EmbedCalls)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
}

var _ embeddings.Provider = (*Provider)(nil)
