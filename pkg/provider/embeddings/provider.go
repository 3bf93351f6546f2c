// Package embeddings defines the Provider interface for text embedding models.
//
// The translation pipeline embeds every analysed term and stores the vector
// next to the knowledge record so later lookups can run a nearest-neighbour
// pass. The vector length must equal the knowledge store's configured
// dimension; callers treat a mismatch as an embedding failure.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text embedding model.
type Provider interface {
	// Embed computes the embedding vector for text. The result has length
	// Dimensions() on success.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector length this provider produces. It is
	// constant for the lifetime of the Provider.
	Dimensions() int

	// ModelID returns the provider-specific model identifier
	// (e.g., "text-embedding-3-small", "mxbai-embed-large").
	ModelID() string
}
