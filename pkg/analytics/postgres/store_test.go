package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/jargonaut/pkg/analytics"
	"github.com/MrWong99/jargonaut/pkg/analytics/postgres"
)

func newTestStore(t *testing.T) (*postgres.Store, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("JARGONAUT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("JARGONAUT_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS translation_events`); err != nil {
		t.Fatalf("drop: %v", err)
	}

	s, err := postgres.NewWithPool(ctx, pool)
	if err != nil {
		t.Fatalf("NewWithPool: %v", err)
	}
	return s, pool
}

func logAll(t *testing.T, s *postgres.Store, events ...analytics.Event) {
	t.Helper()
	for _, ev := range events {
		if err := s.LogTranslation(context.Background(), ev); err != nil {
			t.Fatalf("LogTranslation: %v", err)
		}
	}
}

func TestSessionAnalytics(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	start := time.Now().Add(-10 * time.Minute)

	logAll(t, s,
		analytics.Event{SessionID: "s1", Timestamp: start, Term: "a", Category: "DevOps", Confidence: 0.8, ProcessingTimeMS: 100, Success: true},
		analytics.Event{SessionID: "s1", Timestamp: start.Add(6 * time.Minute), Term: "b", Category: "Data", Confidence: 0.6, ProcessingTimeMS: 300, Success: false},
	)

	m, err := s.SessionAnalytics(ctx, "s1")
	if err != nil {
		t.Fatalf("SessionAnalytics: %v", err)
	}
	if m.TotalTranslations != 2 || m.SuccessRate != 0.5 || m.AvgProcessingTime != 200 {
		t.Errorf("metrics = %+v", m)
	}
	if len(m.CategoriesUsed) != 2 {
		t.Errorf("categories = %v", m.CategoriesUsed)
	}
	if m.DurationMinutes < 5.9 || m.DurationMinutes > 6.1 {
		t.Errorf("duration = %v", m.DurationMinutes)
	}

	empty, err := s.SessionAnalytics(ctx, "unknown")
	if err != nil {
		t.Fatalf("SessionAnalytics: %v", err)
	}
	if empty.TotalTranslations != 0 || empty.CategoriesUsed == nil {
		t.Errorf("unknown session = %+v", empty)
	}
}

func TestDashboardAndHealth(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	logAll(t, s,
		analytics.Event{SessionID: "s1", Term: "kafka", Category: "Data", Confidence: 0.9, ProcessingTimeMS: 1000, Success: true},
		analytics.Event{SessionID: "s2", Term: "kafka", Category: "Data", Confidence: 0.7, ProcessingTimeMS: 2000, Success: true},
		analytics.Event{SessionID: "s2", Term: "helm", Category: "DevOps", Confidence: 0.8, ProcessingTimeMS: 3000, Success: true},
	)

	d, err := s.Dashboard(ctx)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.TotalSessions != 2 || d.TotalTranslations != 3 || d.ActiveSessions != 2 {
		t.Errorf("dashboard = %+v", d)
	}
	if len(d.TopTerms) != 2 || d.TopTerms[0].Term != "kafka" || d.TopTerms[0].UsageCount != 2 {
		t.Errorf("top terms = %+v", d.TopTerms)
	}
	if len(d.Volume24h) == 0 {
		t.Error("volume should have at least one hour")
	}

	h, err := s.SystemHealth(ctx)
	if err != nil {
		t.Fatalf("SystemHealth: %v", err)
	}
	if h.Status != analytics.StatusHealthy || h.EventsLastHour != 3 {
		t.Errorf("health = %+v", h)
	}

	perf, err := s.Performance(ctx, 24)
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}
	if len(perf) == 0 || perf[0].MaxProcessingTime != 3000 {
		t.Errorf("performance = %+v", perf)
	}

	trends, err := s.CategoryTrends(ctx, 7)
	if err != nil {
		t.Fatalf("CategoryTrends: %v", err)
	}
	if len(trends) != 2 || trends[0].Category != "Data" {
		t.Errorf("trends = %+v", trends)
	}
}

func TestCleanup(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	logAll(t, s,
		analytics.Event{SessionID: "s", Term: "old", Timestamp: time.Now().AddDate(0, 0, -40), Success: true},
		analytics.Event{SessionID: "s", Term: "new", Success: true},
	)

	n, err := s.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if _, err := s.Cleanup(ctx, 0); err == nil {
		t.Error("expected error for non-positive retention")
	}
}
