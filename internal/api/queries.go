package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrWong99/jargonaut/internal/observe"
	"github.com/MrWong99/jargonaut/pkg/analytics"
	"github.com/MrWong99/jargonaut/pkg/knowledge"
	"github.com/MrWong99/jargonaut/pkg/types"
)

const (
	defaultSuggestLimit = 5
	defaultPopularLimit = 10
	defaultPerfHours    = 24
	defaultTrendDays    = 7
	maxQueryLimit       = 100

	analyticsUnavailable = "Analytics service not available"
)

// ── Terms ────────────────────────────────────────────────────────────────────

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	partial := strings.TrimSpace(r.PathValue("partial"))
	if partial == "" {
		writeError(w, http.StatusBadRequest, "partial term is required")
		return
	}
	out := []types.Suggestion{}
	if s.terms != nil {
		got, err := s.terms.Suggest(r.Context(), partial, min(queryInt(r, "limit", defaultSuggestLimit), maxQueryLimit))
		if err != nil {
			observe.Logger(r.Context()).Error("api: term suggestions failed", "err", err)
			writeError(w, http.StatusInternalServerError, "Term suggestions failed: "+err.Error())
			return
		}
		out = append(out, got...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": out})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	out := []knowledge.CategoryCount{}
	if s.terms != nil {
		got, err := s.terms.Categories(r.Context())
		if err != nil {
			observe.Logger(r.Context()).Error("api: listing categories failed", "err", err)
			writeError(w, http.StatusInternalServerError, "Category listing failed: "+err.Error())
			return
		}
		out = append(out, got...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	out := []types.Suggestion{}
	if s.terms != nil {
		got, err := s.terms.Popular(r.Context(), min(queryInt(r, "limit", defaultPopularLimit), maxQueryLimit))
		if err != nil {
			observe.Logger(r.Context()).Error("api: popular terms failed", "err", err)
			writeError(w, http.StatusInternalServerError, "Popular terms failed: "+err.Error())
			return
		}
		out = append(out, got...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"popular_terms": out})
}

// ── Analytics ────────────────────────────────────────────────────────────────
//
// The analytics routes never answer 5xx. Without a querier, or when a query
// fails, they return the zeroed shape plus a message.

// withMessage returns the JSON object of v with an extra "message" field.
func withMessage(v any, msg string) map[string]any {
	out := map[string]any{}
	if raw, err := json.Marshal(v); err == nil {
		_ = json.Unmarshal(raw, &out)
	}
	out["message"] = msg
	return out
}

func (s *Server) handleSessionAnalytics(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.analytics == nil {
		writeJSON(w, http.StatusOK, withMessage(analytics.EmptySession(id), analyticsUnavailable))
		return
	}
	m, err := s.analytics.SessionAnalytics(r.Context(), id)
	if err != nil || m == nil {
		msg := "no analytics for session"
		if err != nil {
			observe.Logger(r.Context()).Warn("api: session analytics failed", "session_id", id, "err", err)
			msg = "Analytics retrieval failed: " + err.Error()
		}
		writeJSON(w, http.StatusOK, withMessage(analytics.EmptySession(id), msg))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.analytics == nil {
		writeJSON(w, http.StatusOK, withMessage(analytics.EmptyDashboard(), analyticsUnavailable))
		return
	}
	m, err := s.analytics.Dashboard(r.Context())
	if err != nil || m == nil {
		msg := "no dashboard data"
		if err != nil {
			observe.Logger(r.Context()).Warn("api: dashboard metrics failed", "err", err)
			msg = "Dashboard metrics failed: " + err.Error()
		}
		writeJSON(w, http.StatusOK, withMessage(analytics.EmptyDashboard(), msg))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	hours := min(queryInt(r, "hours", defaultPerfHours), 24*30)
	body := map[string]any{"hours": hours, "performance": []analytics.PerformanceBucket{}}
	if s.analytics == nil {
		body["message"] = analyticsUnavailable
		writeJSON(w, http.StatusOK, body)
		return
	}
	buckets, err := s.analytics.Performance(r.Context(), hours)
	if err != nil {
		observe.Logger(r.Context()).Warn("api: performance metrics failed", "err", err)
		body["message"] = "Performance metrics failed: " + err.Error()
	} else if buckets != nil {
		body["performance"] = buckets
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCategoryTrends(w http.ResponseWriter, r *http.Request) {
	days := min(queryInt(r, "days", defaultTrendDays), 365)
	body := map[string]any{"days": days, "trends": []analytics.CategoryTrend{}}
	if s.analytics == nil {
		body["message"] = analyticsUnavailable
		writeJSON(w, http.StatusOK, body)
		return
	}
	trends, err := s.analytics.CategoryTrends(r.Context(), days)
	if err != nil {
		observe.Logger(r.Context()).Warn("api: category trends failed", "err", err)
		body["message"] = "Category trends failed: " + err.Error()
	} else if trends != nil {
		body["trends"] = trends
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	if s.analytics == nil {
		writeJSON(w, http.StatusOK, withMessage(&analytics.SystemHealth{Status: analytics.StatusIdle}, analyticsUnavailable))
		return
	}
	h, err := s.analytics.SystemHealth(r.Context())
	if err != nil || h == nil {
		msg := "no health data"
		if err != nil {
			observe.Logger(r.Context()).Warn("api: system health failed", "err", err)
			msg = "System health failed: " + err.Error()
		}
		writeJSON(w, http.StatusOK, withMessage(&analytics.SystemHealth{Status: analytics.StatusIdle}, msg))
		return
	}
	writeJSON(w, http.StatusOK, h)
}
