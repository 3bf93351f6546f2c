// Package knowledge defines the translation knowledge base: every term
// Jargonaut has explained, keyed by its normalised spelling, together with the
// explanation, category, confidence, embedding and the sessions that asked for
// it.
//
// The same Store serves two roles in the translation pipeline. It is consulted
// first for similar earlier translations, and it receives the new translation
// once analysis completes.
//
// Implementations:
//
//   - [github.com/MrWong99/jargonaut/pkg/knowledge/postgres]: pgx + pgvector
//   - [github.com/MrWong99/jargonaut/pkg/knowledge/memory]: in-process map
//   - [github.com/MrWong99/jargonaut/pkg/knowledge/mock]: test double
package knowledge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/jargonaut/pkg/types"
)

// ErrNotFound is returned by [Store.Get] when no record exists for a term.
var ErrNotFound = errors.New("knowledge: term not found")

// Record is one persisted translation.
type Record struct {
	// Term is the normalised key (see [NormalizeTerm]). Stores normalise it
	// on write, so callers may pass the display form.
	Term string

	// DisplayTerm is the spelling of the most recent request for Term.
	DisplayTerm string

	Explanation string
	Category    string
	Confidence  float64

	// Embedding is the vector embedding of the term. May be all zeros when
	// embedding failed; an empty slice is stored as "no embedding".
	Embedding []float32

	// Sessions is the append-only set of session IDs that requested Term. On
	// Upsert it holds the IDs to add.
	Sessions []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CategoryCount summarises the records in one category.
type CategoryCount struct {
	Category      string  `json:"category"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Store is the knowledge base abstraction.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Search returns up to limit records similar to query, best first. Only
	// matches at or above the store's similarity threshold are returned.
	Search(ctx context.Context, query string, limit int) ([]types.KnowledgeMatch, error)

	// Upsert inserts rec or, when its normalised term exists, overwrites the
	// explanation, category, embedding, confidence and display term, adds
	// rec.Sessions to the session set and bumps UpdatedAt. CreatedAt never
	// changes after the first insert.
	Upsert(ctx context.Context, rec Record) error

	// Get returns the record for term or [ErrNotFound].
	Get(ctx context.Context, term string) (*Record, error)

	// Suggest returns up to limit stored terms that contain partial, ranked
	// by [SuggestionConfidence] and then by usage.
	Suggest(ctx context.Context, partial string, limit int) ([]types.Suggestion, error)

	// Categories returns per-category counts, largest first.
	Categories(ctx context.Context) ([]CategoryCount, error)

	// Popular returns up to limit records with the most distinct sessions,
	// newest first among equals. Suggestion.Confidence carries the stored
	// translation confidence.
	Popular(ctx context.Context, limit int) ([]types.Suggestion, error)
}

// EmbeddedSearcher is implemented by stores that embed the query inside
// Search. Callers that already hold the query embedding use SearchEmbedded so
// the embedding provider is called once per term. A nil or zero embedding
// runs the text pass only.
type EmbeddedSearcher interface {
	SearchEmbedded(ctx context.Context, query string, embedding []float32, limit int) ([]types.KnowledgeMatch, error)
}

// NormalizeTerm lower-cases s, trims it and collapses internal whitespace.
func NormalizeTerm(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
