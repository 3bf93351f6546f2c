// Package postgres provides a PostgreSQL-backed [knowledge.Store].
//
// Translations live in a single table keyed by the normalised term. A GIN
// full-text index serves keyword candidates and an HNSW cosine index serves
// the optional nearest-neighbour pass. The pgvector extension must be
// available in the target database; [Migrate] installs it via
// CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn, 1024, postgres.WithEmbedder(emb))
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Upsert(ctx, knowledge.Record{Term: "Service Mesh", …})
//	matches, _ := store.Search(ctx, "service mesh", 3)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlExtension = `CREATE EXTENSION IF NOT EXISTS vector;`

// ddlTranslations returns the translations DDL for the given embedding
// dimension. The dimension is baked into the column type, so changing it
// after the first migration needs a manual schema change.
func ddlTranslations(dims int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS translations (
    term          TEXT              PRIMARY KEY,
    display_term  TEXT              NOT NULL,
    explanation   TEXT              NOT NULL,
    category      TEXT              NOT NULL DEFAULT '',
    embedding     vector(%d),
    confidence    DOUBLE PRECISION  NOT NULL DEFAULT 0,
    sessions      TEXT[]            NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ       NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_translations_fts
    ON translations USING GIN (to_tsvector('simple', term));

CREATE INDEX IF NOT EXISTS idx_translations_category
    ON translations (category);

CREATE INDEX IF NOT EXISTS idx_translations_embedding_hnsw
    ON translations USING hnsw (embedding vector_cosine_ops);
`, dims)
}

// Migrate creates the pgvector extension, the translations table and its
// indexes. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("postgres migrate: embedding dimensions must be positive, got %d", dims)
	}
	for _, stmt := range []string{ddlExtension, ddlTranslations(dims)} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
