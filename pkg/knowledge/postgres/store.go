package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/jargonaut/pkg/knowledge"
	"github.com/MrWong99/jargonaut/pkg/provider/embeddings"
	"github.com/MrWong99/jargonaut/pkg/types"
)

var (
	_ knowledge.Store            = (*Store)(nil)
	_ knowledge.EmbeddedSearcher = (*Store)(nil)
)

// textCandidateLimit bounds the rows fetched for in-process text scoring.
const textCandidateLimit = 50

// Option configures a [Store].
type Option func(*Store)

// WithEmbedder enables the vector pass of Search. The query is embedded with
// e and compared against stored embeddings by cosine distance.
func WithEmbedder(e embeddings.Provider) Option {
	return func(s *Store) { s.embedder = e }
}

// WithSimilarityThreshold overrides [knowledge.DefaultSimilarityThreshold].
func WithSimilarityThreshold(t float64) Option {
	return func(s *Store) { s.threshold = t }
}

// Store is the PostgreSQL-backed knowledge base. All operations are safe for
// concurrent use.
type Store struct {
	pool      *pgxpool.Pool
	dims      int
	embedder  embeddings.Provider
	threshold float64
}

// New connects to the database at dsn, installs pgvector, registers its types
// on every pooled connection and runs [Migrate].
//
// dims must match the embedding provider's output dimension.
func New(ctx context.Context, dsn string, dims int, opts ...Option) (*Store, error) {
	if err := bootstrapExtension(ctx, dsn); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("knowledge store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, fmt.Errorf("knowledge store: %w", err)
	}

	s := &Store{pool: pool, dims: dims, threshold: knowledge.DefaultSimilarityThreshold}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// bootstrapExtension creates the vector extension on a plain connection.
// AfterConnect type registration fails until the extension exists, so this
// must run before the pool is opened.
func bootstrapExtension(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("knowledge store: connect: %w", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, ddlExtension); err != nil {
		return fmt.Errorf("knowledge store: create extension: %w", err)
	}
	return nil
}

// Pool exposes the underlying connection pool so other stores (analytics)
// can share it.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases all pooled connections.
func (s *Store) Close() { s.pool.Close() }

// ── Search ───────────────────────────────────────────────────────────────────

// Search implements [knowledge.Store].
func (s *Store) Search(ctx context.Context, query string, limit int) ([]types.KnowledgeMatch, error) {
	var emb []float32
	if q := knowledge.NormalizeTerm(query); q != "" && s.embedder != nil {
		v, err := s.embedder.Embed(ctx, q)
		if err != nil {
			slog.Warn("knowledge store: embed query failed, skipping vector pass", "err", err)
		} else {
			emb = v
		}
	}
	return s.SearchEmbedded(ctx, query, emb, limit)
}

// SearchEmbedded implements [knowledge.EmbeddedSearcher].
func (s *Store) SearchEmbedded(ctx context.Context, query string, embedding []float32, limit int) ([]types.KnowledgeMatch, error) {
	q := knowledge.NormalizeTerm(query)
	if q == "" {
		return []types.KnowledgeMatch{}, nil
	}

	text, err := s.textCandidates(ctx, q)
	if err != nil {
		return nil, err
	}
	vector := s.vectorCandidates(ctx, embedding, limit)

	return knowledge.MergeMatches(s.threshold, limit, text, vector), nil
}

func (s *Store) textCandidates(ctx context.Context, q string) ([]types.KnowledgeMatch, error) {
	const sql = `
SELECT term, display_term, explanation, category
FROM   translations
WHERE  term = $1
   OR  strpos(term, $1) > 0
   OR  strpos($1, term) > 0
   OR  ($2 <> '' AND to_tsvector('simple', term) @@ to_tsquery('simple', $2))
LIMIT  $3`

	rows, err := s.pool.Query(ctx, sql, q, tsQuery(q), textCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: search: %w", err)
	}
	type row struct {
		term, display, explanation, category string
	}
	candidates, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (row, error) {
		var c row
		err := r.Scan(&c.term, &c.display, &c.explanation, &c.category)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge store: search: %w", err)
	}

	out := make([]types.KnowledgeMatch, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, types.KnowledgeMatch{
			Term:        c.display,
			Explanation: c.explanation,
			Category:    c.category,
			Score:       knowledge.TextSimilarity(q, c.term),
		})
	}
	return out, nil
}

// vectorCandidates runs the nearest-neighbour pass. A missing or mismatched
// embedding and query failures only disable the pass; they never fail the
// search.
func (s *Store) vectorCandidates(ctx context.Context, emb []float32, limit int) []types.KnowledgeMatch {
	if len(emb) != s.dims || knowledge.IsZeroVector(emb) {
		return nil
	}
	if limit <= 0 {
		limit = textCandidateLimit
	}

	const sql = `
SELECT display_term, explanation, category, 1 - (embedding <=> $1) AS score
FROM   translations
WHERE  embedding IS NOT NULL
ORDER  BY embedding <=> $1
LIMIT  $2`

	rows, err := s.pool.Query(ctx, sql, pgvector.NewVector(emb), limit)
	if err != nil {
		slog.Warn("knowledge store: vector search failed", "err", err)
		return nil
	}
	matches, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (types.KnowledgeMatch, error) {
		var m types.KnowledgeMatch
		err := r.Scan(&m.Term, &m.Explanation, &m.Category, &m.Score)
		return m, err
	})
	if err != nil {
		slog.Warn("knowledge store: vector search failed", "err", err)
		return nil
	}

	// Zero embeddings stored after an embedding failure yield NaN distances.
	out := matches[:0]
	for _, m := range matches {
		if !math.IsNaN(m.Score) {
			out = append(out, m)
		}
	}
	return out
}

// tsQuery builds an OR query of the alphanumeric words in q. It returns ""
// when q has none, which disables the full-text predicate.
func tsQuery(q string) string {
	words := strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " | ")
}

// ── Upsert / Get ─────────────────────────────────────────────────────────────

// Upsert implements [knowledge.Store]. The statement is a single
// INSERT … ON CONFLICT, so concurrent upserts are last-writer-wins per field
// while the session set only ever grows.
func (s *Store) Upsert(ctx context.Context, rec knowledge.Record) error {
	term := knowledge.NormalizeTerm(rec.Term)
	if term == "" {
		return errors.New("knowledge store: upsert: empty term")
	}
	display := strings.TrimSpace(rec.DisplayTerm)
	if display == "" {
		display = strings.TrimSpace(rec.Term)
	}

	var emb any
	if len(rec.Embedding) > 0 {
		if len(rec.Embedding) != s.dims {
			return fmt.Errorf("knowledge store: upsert: embedding has %d dimensions, want %d", len(rec.Embedding), s.dims)
		}
		emb = pgvector.NewVector(rec.Embedding)
	}

	const sql = `
INSERT INTO translations
    (term, display_term, explanation, category, embedding, confidence, sessions)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (term) DO UPDATE SET
    display_term = EXCLUDED.display_term,
    explanation  = EXCLUDED.explanation,
    category     = EXCLUDED.category,
    embedding    = EXCLUDED.embedding,
    confidence   = EXCLUDED.confidence,
    updated_at   = now(),
    sessions     = translations.sessions || ARRAY(
        SELECT s FROM unnest(EXCLUDED.sessions) AS s
        WHERE  NOT (s = ANY (translations.sessions))
    )`

	_, err := s.pool.Exec(ctx, sql,
		term, display, rec.Explanation, rec.Category, emb, rec.Confidence, dedupe(rec.Sessions),
	)
	if err != nil {
		return fmt.Errorf("knowledge store: upsert %q: %w", term, err)
	}
	return nil
}

// Get implements [knowledge.Store].
func (s *Store) Get(ctx context.Context, term string) (*knowledge.Record, error) {
	const sql = `
SELECT term, display_term, explanation, category, embedding, confidence,
       sessions, created_at, updated_at
FROM   translations
WHERE  term = $1`

	var (
		rec knowledge.Record
		emb *pgvector.Vector
	)
	err := s.pool.QueryRow(ctx, sql, knowledge.NormalizeTerm(term)).Scan(
		&rec.Term, &rec.DisplayTerm, &rec.Explanation, &rec.Category, &emb,
		&rec.Confidence, &rec.Sessions, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, knowledge.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("knowledge store: get %q: %w", term, err)
	}
	if emb != nil {
		rec.Embedding = emb.Slice()
	}
	return &rec, nil
}

// ── Suggest / Categories / Popular ───────────────────────────────────────────

// Suggest implements [knowledge.Store].
func (s *Store) Suggest(ctx context.Context, partial string, limit int) ([]types.Suggestion, error) {
	p := knowledge.NormalizeTerm(partial)
	if p == "" {
		return []types.Suggestion{}, nil
	}
	if limit <= 0 {
		limit = knowledge.DefaultSuggestLimit
	}

	const sql = `
SELECT display_term, category, cardinality(sessions)
FROM   translations
WHERE  strpos(term, $1) > 0
ORDER  BY cardinality(sessions) DESC, term
LIMIT  $2`

	rows, err := s.pool.Query(ctx, sql, p, limit*4)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: suggest: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (types.Suggestion, error) {
		var sg types.Suggestion
		if err := r.Scan(&sg.Term, &sg.Category, &sg.UsageCount); err != nil {
			return sg, err
		}
		sg.Confidence = knowledge.SuggestionConfidence(p, sg.Term)
		return sg, nil
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge store: suggest: %w", err)
	}
	return knowledge.RankSuggestions(out, limit), nil
}

// Categories implements [knowledge.Store].
func (s *Store) Categories(ctx context.Context) ([]knowledge.CategoryCount, error) {
	const sql = `
SELECT category, count(*), COALESCE(avg(confidence), 0)
FROM   translations
GROUP  BY category
ORDER  BY count(*) DESC, category`

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: categories: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (knowledge.CategoryCount, error) {
		var c knowledge.CategoryCount
		err := r.Scan(&c.Category, &c.Count, &c.AvgConfidence)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge store: categories: %w", err)
	}
	if out == nil {
		out = []knowledge.CategoryCount{}
	}
	return out, nil
}

// Popular implements [knowledge.Store].
func (s *Store) Popular(ctx context.Context, limit int) ([]types.Suggestion, error) {
	if limit <= 0 {
		limit = 10
	}
	const sql = `
SELECT display_term, category, confidence, cardinality(sessions)
FROM   translations
ORDER  BY cardinality(sessions) DESC, created_at DESC
LIMIT  $1`

	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: popular: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (types.Suggestion, error) {
		var sg types.Suggestion
		err := r.Scan(&sg.Term, &sg.Category, &sg.Confidence, &sg.UsageCount)
		return sg, err
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge store: popular: %w", err)
	}
	if out == nil {
		out = []types.Suggestion{}
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
