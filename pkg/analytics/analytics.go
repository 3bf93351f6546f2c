// Package analytics records one event per translation and summarises them for
// dashboards.
//
// Writers implement [Logger]; the PostgreSQL store additionally implements
// [Querier]. [Fanout] sends each event to several loggers, which is how the
// AMQP publisher runs next to the database sink.
//
// Implementations:
//
//   - [github.com/MrWong99/jargonaut/pkg/analytics/postgres]: pgx-backed Logger + Querier
//   - [github.com/MrWong99/jargonaut/pkg/analytics/amqp]: RabbitMQ publishing Logger
//   - [github.com/MrWong99/jargonaut/pkg/analytics/mock]: test double
package analytics

import (
	"context"
	"errors"
	"time"
)

// Event is a single write-once translation event.
type Event struct {
	EventID          string    `json:"event_id"`
	SessionID        string    `json:"session_id"`
	Timestamp        time.Time `json:"timestamp"`
	Term             string    `json:"term"`
	Category         string    `json:"category"`
	Confidence       float64   `json:"confidence"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
	UserAgent        string    `json:"user_agent"`
	Success          bool      `json:"success"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

// Logger persists translation events. Implementations must be safe for
// concurrent use.
type Logger interface {
	LogTranslation(ctx context.Context, ev Event) error
}

// Querier answers the analytics read endpoints.
type Querier interface {
	SessionAnalytics(ctx context.Context, sessionID string) (*SessionMetrics, error)
	Dashboard(ctx context.Context) (*DashboardMetrics, error)
	Performance(ctx context.Context, hours int) ([]PerformanceBucket, error)
	CategoryTrends(ctx context.Context, days int) ([]CategoryTrend, error)
	SystemHealth(ctx context.Context) (*SystemHealth, error)

	// Cleanup deletes events older than keepDays and returns how many were
	// removed.
	Cleanup(ctx context.Context, keepDays int) (int64, error)
}

// SessionMetrics summarises every event of one session. An unknown session
// yields zero values.
type SessionMetrics struct {
	SessionID         string     `json:"session_id"`
	TotalTranslations int        `json:"total_translations"`
	AvgConfidence     float64    `json:"avg_confidence"`
	AvgProcessingTime float64    `json:"avg_processing_time"`
	CategoriesUsed    []string   `json:"categories_used"`
	SuccessRate       float64    `json:"success_rate"`
	DurationMinutes   float64    `json:"duration_minutes"`
	FirstActivity     *time.Time `json:"first_activity,omitempty"`
	LastActivity      *time.Time `json:"last_activity,omitempty"`
}

// CategoryStat is one row of the dashboard's top categories.
type CategoryStat struct {
	Category      string  `json:"category"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// TermStat is one row of the dashboard's top terms.
type TermStat struct {
	Term          string  `json:"term"`
	Category      string  `json:"category"`
	UsageCount    int     `json:"usage_count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// VolumePoint is the number of translations in one hour.
type VolumePoint struct {
	Hour         time.Time `json:"hour"`
	Translations int       `json:"translations"`
}

// DashboardMetrics covers the last 24 hours.
type DashboardMetrics struct {
	TotalSessions     int            `json:"total_sessions"`
	TotalTranslations int            `json:"total_translations"`
	AvgConfidence     float64        `json:"avg_confidence"`
	AvgProcessingTime float64        `json:"avg_processing_time"`
	SuccessRate       float64        `json:"success_rate"`
	TopCategories     []CategoryStat `json:"top_categories"`
	TopTerms          []TermStat     `json:"top_terms"`
	ActiveSessions    int            `json:"active_sessions"`
	Volume24h         []VolumePoint  `json:"translation_volume_24h"`
}

// PerformanceBucket aggregates one hour of events.
type PerformanceBucket struct {
	Hour              time.Time `json:"hour"`
	TotalRequests     int       `json:"total_requests"`
	AvgProcessingTime float64   `json:"avg_processing_time"`
	P95ProcessingTime float64   `json:"p95_processing_time"`
	MinProcessingTime float64   `json:"min_processing_time"`
	MaxProcessingTime float64   `json:"max_processing_time"`
	ErrorRate         float64   `json:"error_rate"`
	AvgConfidence     float64   `json:"avg_confidence"`
}

// CategoryTrend is the usage of one category on one day.
type CategoryTrend struct {
	Day           time.Time `json:"day"`
	Category      string    `json:"category"`
	UsageCount    int       `json:"usage_count"`
	AvgConfidence float64   `json:"avg_confidence"`
}

// Health states reported by [SystemHealth].
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusSlow     = "slow"
	StatusIdle     = "idle"
)

// SystemHealth summarises the last hour.
type SystemHealth struct {
	Status            string  `json:"status"`
	ErrorRate         float64 `json:"error_rate"`
	AvgProcessingTime float64 `json:"avg_processing_time"`
	ActiveSessions    int     `json:"active_sessions"`
	EventsLastHour    int     `json:"events_last_hour"`
}

// ClassifyHealth derives the health status from one hour of activity: an
// error rate above 10% is degraded, otherwise an average above five seconds
// is slow, otherwise no events is idle.
func ClassifyHealth(events, errs int, avgMS float64) (status string, errorRate float64) {
	errorRate = float64(errs) / float64(max(events, 1))
	switch {
	case errorRate > 0.1:
		return StatusDegraded, errorRate
	case avgMS > 5000:
		return StatusSlow, errorRate
	case events == 0:
		return StatusIdle, errorRate
	default:
		return StatusHealthy, errorRate
	}
}

// EmptySession returns the zero-valued metrics for sessionID.
func EmptySession(sessionID string) *SessionMetrics {
	return &SessionMetrics{SessionID: sessionID, CategoriesUsed: []string{}}
}

// EmptyDashboard returns dashboard metrics with every list non-nil.
func EmptyDashboard() *DashboardMetrics {
	return &DashboardMetrics{
		TopCategories: []CategoryStat{},
		TopTerms:      []TermStat{},
		Volume24h:     []VolumePoint{},
	}
}

// ── Fanout ───────────────────────────────────────────────────────────────────

// Fanout is a [Logger] that forwards each event to every wrapped logger.
// A failing logger does not stop the others; all errors are joined.
type Fanout []Logger

var _ Logger = Fanout(nil)

// LogTranslation implements [Logger].
func (f Fanout) LogTranslation(ctx context.Context, ev Event) error {
	var errs []error
	for _, l := range f {
		if err := l.LogTranslation(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
