// Package llm defines the Provider interface for the generative models that
// produce term analyses.
//
// An LLM provider wraps a remote or local model API (OpenAI, Anthropic,
// Gemini, a local Ollama instance, …) and exposes a single blocking
// completion call. The translation orchestrator only ever needs the full
// response text because it parses a JSON object out of it, so no streaming
// surface is offered.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/MrWong99/jargonaut/pkg/types"
)

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional instruction placed before Messages. Providers
	// without a dedicated system slot prepend it as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. For term analysis this is a single
	// user message holding the rendered prompt.
	Messages []types.Message

	// Temperature controls output randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the result of a completion call.
type CompletionResponse struct {
	// Content is the full text produced by the model.
	Content string

	// Usage reports token consumption when the backend provides it.
	Usage Usage
}

// Provider is the abstraction over any generative text backend.
type Provider interface {
	// Complete sends req to the model and blocks until the full response is
	// available or ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier this provider was configured with.
	Model() string
}
