// Package mock provides a test double for the knowledge.Store interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jargonaut/pkg/knowledge"
	"github.com/MrWong99/jargonaut/pkg/types"
)

// SearchCall records a single invocation of Search.
type SearchCall struct {
	Query string
	Limit int
}

// Store is a mock implementation of knowledge.Store. Each method returns its
// configured result and error and records its arguments.
type Store struct {
	mu sync.Mutex

	SearchResult []types.KnowledgeMatch
	SearchErr    error

	UpsertErr error

	GetResult *knowledge.Record
	GetErr    error

	SuggestResult []types.Suggestion
	SuggestErr    error

	CategoriesResult []knowledge.CategoryCount
	CategoriesErr    error

	PopularResult []types.Suggestion
	PopularErr    error

	SearchCalls  []SearchCall
	UpsertCalls  []knowledge.Record
	GetCalls     []string
	SuggestCalls []string
}

// Search records the call and returns SearchResult, SearchErr.
func (s *Store) Search(_ context.Context, query string, limit int) ([]types.KnowledgeMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SearchCalls = append(s.SearchCalls, SearchCall{Query: query, Limit: limit})
	return s.SearchResult, s.SearchErr
}

// Upsert records the call and returns UpsertErr.
func (s *Store) Upsert(_ context.Context, rec knowledge.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertCalls = append(s.UpsertCalls, rec)
	return s.UpsertErr
}

// Get records the call and returns GetResult, GetErr. A nil GetResult with a
// nil GetErr yields knowledge.ErrNotFound.
func (s *Store) Get(_ context.Context, term string) (*knowledge.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls = append(s.GetCalls, term)
	if s.GetResult == nil && s.GetErr == nil {
		return nil, knowledge.ErrNotFound
	}
	return s.GetResult, s.GetErr
}

// Suggest records the call and returns SuggestResult, SuggestErr.
func (s *Store) Suggest(_ context.Context, partial string, _ int) ([]types.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SuggestCalls = append(s.SuggestCalls, partial)
	return s.SuggestResult, s.SuggestErr
}

// Categories returns CategoriesResult, CategoriesErr.
func (s *Store) Categories(context.Context) ([]knowledge.CategoryCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CategoriesResult, s.CategoriesErr
}

// Popular returns PopularResult, PopularErr.
func (s *Store) Popular(context.Context, int) ([]types.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PopularResult, s.PopularErr
}

// Upserts returns a copy of the recorded Upsert calls. Thread-safe.
func (s *Store) Upserts() []knowledge.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]knowledge.Record, len(s.UpsertCalls))
	copy(out, s.UpsertCalls)
	return out
}

// Searches returns a copy of the recorded Search calls. Thread-safe.
func (s *Store) Searches() []SearchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SearchCall, len(s.SearchCalls))
	copy(out, s.SearchCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SearchCalls = nil
	s.UpsertCalls = nil
	s.GetCalls = nil
	s.SuggestCalls = nil
}

var _ knowledge.Store = (*Store)(nil)
