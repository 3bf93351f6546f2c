// Package mock provides a test double for the search.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jargonaut/pkg/provider/search"
	"github.com/MrWong99/jargonaut/pkg/types"
)

// SearchCall records a single invocation of Search.
type SearchCall struct {
	Ctx   context.Context
	Query string
	Opts  search.Options
}

// Provider is a mock implementation of search.Provider.
type Provider struct {
	mu sync.Mutex

	// Results is returned by Search.
	Results []types.WebResult

	// Err, if non-nil, is returned as the error from Search.
	Err error

	// SearchFunc, if set, overrides Results and Err.
	SearchFunc func(ctx context.Context, query string, opts search.Options) ([]types.WebResult, error)

	// SearchCalls records every call to Search in order.
	SearchCalls []SearchCall
}

// Search records the call and returns the configured result.
func (p *Provider) Search(ctx context.Context, query string, opts search.Options) ([]types.WebResult, error) {
	p.mu.Lock()
	p.SearchCalls = append(p.SearchCalls, SearchCall{Ctx: ctx, Query: query, Opts: opts})
	fn, res, err := p.SearchFunc, p.Results, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, query, opts)
	}
	return res, err
}

// CallCount returns the number of Search calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SearchCalls)
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []SearchCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SearchCall, len(p.SearchCalls))
	copy(out, p.SearchCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SearchCalls = nil
}

var _ search.Provider = (*Provider)(nil)
