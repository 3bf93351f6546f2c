// Package search defines the Provider interface for live web search backends.
//
// The translation orchestrator consults a search provider when the knowledge
// base has no sufficiently similar entry. Providers rank their own results:
// the returned slice is sorted by descending WebResult.Score and already
// excludes low-relevance hits.
//
// Implementations must be safe for concurrent use.
package search

import (
	"context"

	"github.com/MrWong99/jargonaut/pkg/types"
)

// Search depths understood by all providers.
const (
	DepthBasic    = "basic"
	DepthAdvanced = "advanced"
)

// Options tunes a single search.
type Options struct {
	// Depth is DepthBasic or DepthAdvanced. Empty means DepthAdvanced.
	Depth string

	// MaxResults caps the number of raw results requested from the backend.
	// Zero means the provider default.
	MaxResults int
}

// Provider is the abstraction over any web search backend.
type Provider interface {
	// Search looks up term and returns ranked results. query is the raw
	// technical term; providers apply their own query enhancement.
	Search(ctx context.Context, query string, opts Options) ([]types.WebResult, error)
}
