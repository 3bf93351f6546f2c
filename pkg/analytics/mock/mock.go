// Package mock provides test doubles for the analytics.Logger and
// analytics.Querier interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jargonaut/pkg/analytics"
)

// Logger is a mock implementation of analytics.Logger.
type Logger struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from every LogTranslation call.
	Err error

	Events []analytics.Event
}

// LogTranslation records the event and returns Err.
func (l *Logger) LogTranslation(_ context.Context, ev analytics.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Events = append(l.Events, ev)
	return l.Err
}

// Logged returns a copy of the recorded events. Thread-safe.
func (l *Logger) Logged() []analytics.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]analytics.Event, len(l.Events))
	copy(out, l.Events)
	return out
}

// CallCount returns the number of LogTranslation calls. Thread-safe.
func (l *Logger) CallCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Events)
}

// Reset clears all recorded events. Thread-safe.
func (l *Logger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Events = nil
}

// Querier is a mock implementation of analytics.Querier. Each method returns
// its configured result and Err.
type Querier struct {
	mu sync.Mutex

	Err error

	SessionResult     *analytics.SessionMetrics
	DashboardResult   *analytics.DashboardMetrics
	PerformanceResult []analytics.PerformanceBucket
	TrendsResult      []analytics.CategoryTrend
	HealthResult      *analytics.SystemHealth
	CleanupResult     int64

	SessionCalls []string
	CleanupCalls []int
}

// SessionAnalytics records the call and returns SessionResult, Err.
func (q *Querier) SessionAnalytics(_ context.Context, sessionID string) (*analytics.SessionMetrics, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.SessionCalls = append(q.SessionCalls, sessionID)
	return q.SessionResult, q.Err
}

// Dashboard returns DashboardResult, Err.
func (q *Querier) Dashboard(context.Context) (*analytics.DashboardMetrics, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.DashboardResult, q.Err
}

// Performance returns PerformanceResult, Err.
func (q *Querier) Performance(context.Context, int) ([]analytics.PerformanceBucket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.PerformanceResult, q.Err
}

// CategoryTrends returns TrendsResult, Err.
func (q *Querier) CategoryTrends(context.Context, int) ([]analytics.CategoryTrend, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.TrendsResult, q.Err
}

// SystemHealth returns HealthResult, Err.
func (q *Querier) SystemHealth(context.Context) (*analytics.SystemHealth, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.HealthResult, q.Err
}

// Cleanup records the call and returns CleanupResult, Err.
func (q *Querier) Cleanup(_ context.Context, keepDays int) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.CleanupCalls = append(q.CleanupCalls, keepDays)
	return q.CleanupResult, q.Err
}

// Cleanups returns a copy of the recorded Cleanup arguments. Thread-safe.
func (q *Querier) Cleanups() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int, len(q.CleanupCalls))
	copy(out, q.CleanupCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (q *Querier) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.SessionCalls = nil
	q.CleanupCalls = nil
}

var (
	_ analytics.Logger  = (*Logger)(nil)
	_ analytics.Querier = (*Querier)(nil)
)
