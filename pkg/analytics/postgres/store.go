// Package postgres stores translation events in PostgreSQL and answers the
// analytics queries over them.
//
// Events are append-only; [Store.Cleanup] is the only statement that deletes
// rows. The timestamp column carries a BRIN index, which stays small on a
// table that is only ever appended to in time order.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/jargonaut/pkg/analytics"
)

var (
	_ analytics.Logger  = (*Store)(nil)
	_ analytics.Querier = (*Store)(nil)
)

const ddlEvents = `
CREATE TABLE IF NOT EXISTS translation_events (
    event_id            TEXT              PRIMARY KEY,
    session_id          TEXT              NOT NULL,
    timestamp           TIMESTAMPTZ       NOT NULL DEFAULT now(),
    term                TEXT              NOT NULL,
    category            TEXT              NOT NULL DEFAULT '',
    confidence          DOUBLE PRECISION  NOT NULL DEFAULT 0,
    processing_time_ms  BIGINT            NOT NULL DEFAULT 0,
    user_agent          TEXT              NOT NULL DEFAULT '',
    success             BOOLEAN           NOT NULL DEFAULT true,
    error_message       TEXT              NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_translation_events_timestamp_brin
    ON translation_events USING BRIN (timestamp);

CREATE INDEX IF NOT EXISTS idx_translation_events_session_id
    ON translation_events (session_id);
`

// Migrate creates the events table and its indexes.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlEvents); err != nil {
		return fmt.Errorf("analytics migrate: %w", err)
	}
	return nil
}

// Store is the PostgreSQL analytics store. It is safe for concurrent use.
type Store struct {
	pool  *pgxpool.Pool
	owned bool
	now   func() time.Time
}

// New opens a dedicated pool for dsn and migrates the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("analytics store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("analytics store: ping: %w", err)
	}
	s, err := NewWithPool(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewWithPool migrates the schema on an existing pool, typically the one
// shared with the knowledge store. Close does not close a borrowed pool.
func NewWithPool(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := Migrate(ctx, pool); err != nil {
		return nil, fmt.Errorf("analytics store: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases the pool if this store opened it.
func (s *Store) Close() {
	if s.owned {
		s.pool.Close()
	}
}

// LogTranslation implements [analytics.Logger]. A missing event ID or
// timestamp is filled in.
func (s *Store) LogTranslation(ctx context.Context, ev analytics.Event) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}

	const sql = `
INSERT INTO translation_events
    (event_id, session_id, timestamp, term, category, confidence,
     processing_time_ms, user_agent, success, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, sql,
		ev.EventID, ev.SessionID, ev.Timestamp, ev.Term, ev.Category, ev.Confidence,
		ev.ProcessingTimeMS, ev.UserAgent, ev.Success, ev.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("analytics store: log translation: %w", err)
	}
	return nil
}

// SessionAnalytics implements [analytics.Querier].
func (s *Store) SessionAnalytics(ctx context.Context, sessionID string) (*analytics.SessionMetrics, error) {
	const sql = `
SELECT count(*),
       COALESCE(avg(confidence), 0)::float8,
       COALESCE(avg(processing_time_ms), 0)::float8,
       COALESCE(array_agg(DISTINCT category) FILTER (WHERE category <> ''), '{}'),
       COALESCE(avg(CASE WHEN success THEN 1 ELSE 0 END), 0)::float8,
       min(timestamp),
       max(timestamp)
FROM   translation_events
WHERE  session_id = $1`

	m := analytics.EmptySession(sessionID)
	var first, last *time.Time
	err := s.pool.QueryRow(ctx, sql, sessionID).Scan(
		&m.TotalTranslations, &m.AvgConfidence, &m.AvgProcessingTime,
		&m.CategoriesUsed, &m.SuccessRate, &first, &last,
	)
	if err != nil {
		return nil, fmt.Errorf("analytics store: session %q: %w", sessionID, err)
	}
	if m.TotalTranslations == 0 {
		return analytics.EmptySession(sessionID), nil
	}
	m.FirstActivity, m.LastActivity = first, last
	if first != nil && last != nil {
		m.DurationMinutes = last.Sub(*first).Minutes()
	}
	return m, nil
}

// Dashboard implements [analytics.Querier].
func (s *Store) Dashboard(ctx context.Context) (*analytics.DashboardMetrics, error) {
	d := analytics.EmptyDashboard()

	const totals = `
SELECT count(DISTINCT session_id),
       count(*),
       COALESCE(avg(confidence), 0)::float8,
       COALESCE(avg(processing_time_ms), 0)::float8,
       COALESCE(avg(CASE WHEN success THEN 1 ELSE 0 END), 0)::float8
FROM   translation_events
WHERE  timestamp >= now() - interval '24 hours'`
	err := s.pool.QueryRow(ctx, totals).Scan(
		&d.TotalSessions, &d.TotalTranslations, &d.AvgConfidence, &d.AvgProcessingTime, &d.SuccessRate,
	)
	if err != nil {
		return nil, fmt.Errorf("analytics store: dashboard totals: %w", err)
	}

	const categories = `
SELECT category, count(*), avg(confidence)::float8
FROM   translation_events
WHERE  timestamp >= now() - interval '24 hours'
GROUP  BY category
ORDER  BY count(*) DESC, category
LIMIT  10`
	if d.TopCategories, err = collect(ctx, s.pool, categories, func(r pgx.CollectableRow) (analytics.CategoryStat, error) {
		var c analytics.CategoryStat
		err := r.Scan(&c.Category, &c.Count, &c.AvgConfidence)
		return c, err
	}); err != nil {
		return nil, fmt.Errorf("analytics store: dashboard categories: %w", err)
	}

	const terms = `
SELECT term, category, count(*), avg(confidence)::float8
FROM   translation_events
WHERE  timestamp >= now() - interval '24 hours'
GROUP  BY term, category
ORDER  BY count(*) DESC, term
LIMIT  10`
	if d.TopTerms, err = collect(ctx, s.pool, terms, func(r pgx.CollectableRow) (analytics.TermStat, error) {
		var t analytics.TermStat
		err := r.Scan(&t.Term, &t.Category, &t.UsageCount, &t.AvgConfidence)
		return t, err
	}); err != nil {
		return nil, fmt.Errorf("analytics store: dashboard terms: %w", err)
	}

	const active = `
SELECT count(DISTINCT session_id)
FROM   translation_events
WHERE  timestamp >= now() - interval '5 minutes'`
	if err := s.pool.QueryRow(ctx, active).Scan(&d.ActiveSessions); err != nil {
		return nil, fmt.Errorf("analytics store: dashboard active sessions: %w", err)
	}

	const volume = `
SELECT date_trunc('hour', timestamp) AS hour, count(*)
FROM   translation_events
WHERE  timestamp >= now() - interval '24 hours'
GROUP  BY hour
ORDER  BY hour`
	if d.Volume24h, err = collect(ctx, s.pool, volume, func(r pgx.CollectableRow) (analytics.VolumePoint, error) {
		var v analytics.VolumePoint
		err := r.Scan(&v.Hour, &v.Translations)
		return v, err
	}); err != nil {
		return nil, fmt.Errorf("analytics store: dashboard volume: %w", err)
	}

	return d, nil
}

// Performance implements [analytics.Querier].
func (s *Store) Performance(ctx context.Context, hours int) ([]analytics.PerformanceBucket, error) {
	if hours <= 0 {
		hours = 24
	}
	const sql = `
SELECT date_trunc('hour', timestamp) AS hour,
       count(*),
       avg(processing_time_ms)::float8,
       percentile_cont(0.95) WITHIN GROUP (ORDER BY processing_time_ms),
       min(processing_time_ms)::float8,
       max(processing_time_ms)::float8,
       avg(CASE WHEN success THEN 0 ELSE 1 END)::float8,
       avg(confidence)::float8
FROM   translation_events
WHERE  timestamp >= now() - make_interval(hours => $1)
GROUP  BY hour
ORDER  BY hour`

	out, err := collect(ctx, s.pool, sql, func(r pgx.CollectableRow) (analytics.PerformanceBucket, error) {
		var b analytics.PerformanceBucket
		err := r.Scan(&b.Hour, &b.TotalRequests, &b.AvgProcessingTime, &b.P95ProcessingTime,
			&b.MinProcessingTime, &b.MaxProcessingTime, &b.ErrorRate, &b.AvgConfidence)
		return b, err
	}, hours)
	if err != nil {
		return nil, fmt.Errorf("analytics store: performance: %w", err)
	}
	return out, nil
}

// CategoryTrends implements [analytics.Querier].
func (s *Store) CategoryTrends(ctx context.Context, days int) ([]analytics.CategoryTrend, error) {
	if days <= 0 {
		days = 7
	}
	const sql = `
SELECT date_trunc('day', timestamp) AS day, category, count(*), avg(confidence)::float8
FROM   translation_events
WHERE  timestamp >= now() - make_interval(days => $1)
GROUP  BY day, category
ORDER  BY day, count(*) DESC, category`

	out, err := collect(ctx, s.pool, sql, func(r pgx.CollectableRow) (analytics.CategoryTrend, error) {
		var t analytics.CategoryTrend
		err := r.Scan(&t.Day, &t.Category, &t.UsageCount, &t.AvgConfidence)
		return t, err
	}, days)
	if err != nil {
		return nil, fmt.Errorf("analytics store: category trends: %w", err)
	}
	return out, nil
}

// SystemHealth implements [analytics.Querier].
func (s *Store) SystemHealth(ctx context.Context) (*analytics.SystemHealth, error) {
	const sql = `
SELECT count(*),
       count(DISTINCT session_id),
       COALESCE(avg(processing_time_ms), 0)::float8,
       count(*) FILTER (WHERE NOT success)
FROM   translation_events
WHERE  timestamp >= now() - interval '1 hour'`

	var (
		h    analytics.SystemHealth
		errs int
	)
	if err := s.pool.QueryRow(ctx, sql).Scan(&h.EventsLastHour, &h.ActiveSessions, &h.AvgProcessingTime, &errs); err != nil {
		return nil, fmt.Errorf("analytics store: system health: %w", err)
	}
	h.Status, h.ErrorRate = analytics.ClassifyHealth(h.EventsLastHour, errs, h.AvgProcessingTime)
	return &h, nil
}

// Cleanup implements [analytics.Querier].
func (s *Store) Cleanup(ctx context.Context, keepDays int) (int64, error) {
	if keepDays <= 0 {
		return 0, fmt.Errorf("analytics store: cleanup: keepDays must be positive, got %d", keepDays)
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM translation_events WHERE timestamp < now() - make_interval(days => $1)`, keepDays)
	if err != nil {
		return 0, fmt.Errorf("analytics store: cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

// collect runs sql and maps every row with fn. The result is never nil.
func collect[T any](ctx context.Context, pool *pgxpool.Pool, sql string, fn pgx.RowToFunc[T], args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, fn)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
