// Package memory provides an in-process [knowledge.Store].
//
// It keeps every record in a map and scores them with the same functions the
// PostgreSQL store uses, so it stands in for the database in tests and in
// deployments that run without a DSN. Contents are lost on restart.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/jargonaut/pkg/knowledge"
	"github.com/MrWong99/jargonaut/pkg/provider/embeddings"
	"github.com/MrWong99/jargonaut/pkg/types"
)

var (
	_ knowledge.Store            = (*Store)(nil)
	_ knowledge.EmbeddedSearcher = (*Store)(nil)
)

// Option configures a [Store].
type Option func(*Store)

// WithEmbedder enables the vector pass of Search.
func WithEmbedder(e embeddings.Provider) Option {
	return func(s *Store) { s.embedder = e }
}

// WithSimilarityThreshold overrides [knowledge.DefaultSimilarityThreshold].
func WithSimilarityThreshold(t float64) Option {
	return func(s *Store) { s.threshold = t }
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is a map-backed knowledge base. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	records   map[string]*knowledge.Record
	embedder  embeddings.Provider
	threshold float64
	now       func() time.Time
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		records:   make(map[string]*knowledge.Record),
		threshold: knowledge.DefaultSimilarityThreshold,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Search implements [knowledge.Store].
func (s *Store) Search(ctx context.Context, query string, limit int) ([]types.KnowledgeMatch, error) {
	var qEmb []float32
	if s.embedder != nil {
		if q := knowledge.NormalizeTerm(query); q != "" && ctx.Err() == nil {
			emb, err := s.embedder.Embed(ctx, q)
			if err != nil {
				slog.Warn("knowledge memory: embed query failed, skipping vector pass", "err", err)
			} else {
				qEmb = emb
			}
		}
	}
	return s.SearchEmbedded(ctx, query, qEmb, limit)
}

// SearchEmbedded implements [knowledge.EmbeddedSearcher].
func (s *Store) SearchEmbedded(ctx context.Context, query string, embedding []float32, limit int) ([]types.KnowledgeMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := knowledge.NormalizeTerm(query)
	if q == "" {
		return []types.KnowledgeMatch{}, nil
	}
	if knowledge.IsZeroVector(embedding) {
		embedding = nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var text, vector []types.KnowledgeMatch
	for key, r := range s.records {
		m := types.KnowledgeMatch{Term: r.DisplayTerm, Explanation: r.Explanation, Category: r.Category}
		m.Score = knowledge.TextSimilarity(q, key)
		text = append(text, m)

		if embedding != nil {
			if sim, ok := knowledge.CosineSimilarity(embedding, r.Embedding); ok {
				m.Score = sim
				vector = append(vector, m)
			}
		}
	}
	return knowledge.MergeMatches(s.threshold, limit, text, vector), nil
}

// Upsert implements [knowledge.Store].
func (s *Store) Upsert(ctx context.Context, rec knowledge.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := knowledge.NormalizeTerm(rec.Term)
	if key == "" {
		return errors.New("knowledge memory: upsert: empty term")
	}
	display := strings.TrimSpace(rec.DisplayTerm)
	if display == "" {
		display = strings.TrimSpace(rec.Term)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cur, ok := s.records[key]
	if !ok {
		cur = &knowledge.Record{Term: key, CreatedAt: now}
		s.records[key] = cur
	}
	cur.DisplayTerm = display
	cur.Explanation = rec.Explanation
	cur.Category = rec.Category
	cur.Confidence = rec.Confidence
	cur.Embedding = slices.Clone(rec.Embedding)
	if len(cur.Embedding) == 0 {
		cur.Embedding = nil
	}
	if now.After(cur.UpdatedAt) {
		cur.UpdatedAt = now
	}
	for _, id := range rec.Sessions {
		if id != "" && !slices.Contains(cur.Sessions, id) {
			cur.Sessions = append(cur.Sessions, id)
		}
	}
	return nil
}

// Get implements [knowledge.Store].
func (s *Store) Get(ctx context.Context, term string) (*knowledge.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[knowledge.NormalizeTerm(term)]
	if !ok {
		return nil, fmt.Errorf("knowledge memory: get %q: %w", term, knowledge.ErrNotFound)
	}
	cp := *r
	cp.Embedding = slices.Clone(r.Embedding)
	cp.Sessions = slices.Clone(r.Sessions)
	return &cp, nil
}

// Suggest implements [knowledge.Store].
func (s *Store) Suggest(ctx context.Context, partial string, limit int) ([]types.Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := knowledge.NormalizeTerm(partial)
	out := []types.Suggestion{}
	if p == "" {
		return out, nil
	}

	s.mu.RLock()
	for key, r := range s.records {
		if !strings.Contains(key, p) {
			continue
		}
		out = append(out, types.Suggestion{
			Term:       r.DisplayTerm,
			Category:   r.Category,
			Confidence: knowledge.SuggestionConfidence(p, r.DisplayTerm),
			UsageCount: len(r.Sessions),
		})
	}
	s.mu.RUnlock()

	return knowledge.RankSuggestions(out, limit), nil
}

// Categories implements [knowledge.Store].
func (s *Store) Categories(ctx context.Context) ([]knowledge.CategoryCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	byCat := make(map[string]*knowledge.CategoryCount)
	for _, r := range s.records {
		c, ok := byCat[r.Category]
		if !ok {
			c = &knowledge.CategoryCount{Category: r.Category}
			byCat[r.Category] = c
		}
		c.Count++
		c.AvgConfidence += r.Confidence
	}
	s.mu.RUnlock()

	out := make([]knowledge.CategoryCount, 0, len(byCat))
	for _, c := range byCat {
		c.AvgConfidence /= float64(c.Count)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// Popular implements [knowledge.Store].
func (s *Store) Popular(ctx context.Context, limit int) ([]types.Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	recs := make([]*knowledge.Record, 0, len(s.records))
	for _, r := range s.records {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		if len(recs[i].Sessions) != len(recs[j].Sessions) {
			return len(recs[i].Sessions) > len(recs[j].Sessions)
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	out := make([]types.Suggestion, 0, min(limit, len(recs)))
	for _, r := range recs[:min(limit, len(recs))] {
		out = append(out, types.Suggestion{
			Term:       r.DisplayTerm,
			Category:   r.Category,
			Confidence: r.Confidence,
			UsageCount: len(r.Sessions),
		})
	}
	s.mu.RUnlock()
	return out, nil
}
