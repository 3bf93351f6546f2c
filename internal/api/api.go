// Package api serves the Jargonaut HTTP surface: the translation endpoint,
// the voice endpoints, term and analytics queries, session administration,
// the WebSocket channel and the operational endpoints.
//
// Every dependency except the translator is optional. A missing voice
// service answers 503 on the voice routes, and missing analytics answer with
// zeroed shapes so dashboards keep rendering.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MrWong99/jargonaut/internal/health"
	"github.com/MrWong99/jargonaut/internal/observe"
	"github.com/MrWong99/jargonaut/internal/session"
	"github.com/MrWong99/jargonaut/internal/session/wsconn"
	"github.com/MrWong99/jargonaut/internal/translate"
	"github.com/MrWong99/jargonaut/internal/voice"
	"github.com/MrWong99/jargonaut/pkg/analytics"
	"github.com/MrWong99/jargonaut/pkg/knowledge"
	"github.com/MrWong99/jargonaut/pkg/provider/stt"
	"github.com/MrWong99/jargonaut/pkg/types"
)

// Version is reported by the manifest.
const Version = "1.0.0"

// maxJSONBody caps request bodies other than file uploads. Base64 audio makes
// the transcribe body the largest of them.
const maxJSONBody = 16 << 20

// ── Dependencies ─────────────────────────────────────────────────────────────

// Translator runs the translation pipeline.
type Translator interface {
	Translate(ctx context.Context, req translate.Request) (*translate.Response, error)
}

// Voice is the subset of *voice.Service the voice routes use.
type Voice interface {
	HasTTS() bool
	HasSTT() bool
	Synthesize(ctx context.Context, text, style string, speed float64) (*voice.Speech, error)
	Voices(ctx context.Context) []voice.StyleVoice
	TTSProvider() string
	TranscribeJob(ctx context.Context, data []byte, opts stt.Options) (voice.Job, error)
	Jobs(limit int) []voice.Job
	Job(name string) (voice.Job, error)
	DeleteJob(name string) error
}

// Terms is the read side of the knowledge base. knowledge.Store satisfies it.
type Terms interface {
	Suggest(ctx context.Context, partial string, limit int) ([]types.Suggestion, error)
	Categories(ctx context.Context) ([]knowledge.CategoryCount, error)
	Popular(ctx context.Context, limit int) ([]types.Suggestion, error)
}

// Sessions is the subset of *session.Manager the session and WebSocket routes
// use.
type Sessions interface {
	wsconn.Sessions
	ActiveSessions(ctx context.Context) []session.Info
	Stats(ctx context.Context) session.Stats
	SendSystemNotification(ctx context.Context, text, level string) int
}

var (
	_ Voice    = (*voice.Service)(nil)
	_ Sessions = (*session.Manager)(nil)
)

// ── Server ───────────────────────────────────────────────────────────────────

// Option configures a [Server].
type Option func(*Server)

// WithVoice enables the voice routes.
func WithVoice(v Voice) Option { return func(s *Server) { s.voice = v } }

// WithTerms enables the term routes.
func WithTerms(t Terms) Option { return func(s *Server) { s.terms = t } }

// WithAnalytics enables the analytics routes.
func WithAnalytics(q analytics.Querier) Option { return func(s *Server) { s.analytics = q } }

// WithSessions enables the session routes and the WebSocket channel.
func WithSessions(m Sessions) Option { return func(s *Server) { s.sessions = m } }

// WithHealth registers /healthz and /readyz.
func WithHealth(h *health.Handler) Option { return func(s *Server) { s.health = h } }

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metricsHandler = h } }

// WithMetrics sets the instruments used by the request middleware.
func WithMetrics(m *observe.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithCORSOrigins sets the browser origins allowed to call the API.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithFeatures sets the feature list reported by the manifest.
func WithFeatures(features ...string) Option {
	return func(s *Server) { s.features = features }
}

// Server holds the route handlers. Build the http.Handler with [Server.Handler].
type Server struct {
	translator     Translator
	voice          Voice
	terms          Terms
	analytics      analytics.Querier
	sessions       Sessions
	health         *health.Handler
	metricsHandler http.Handler
	metrics        *observe.Metrics
	origins        []string
	features       []string
}

// New returns a Server around translator.
func New(translator Translator, opts ...Option) *Server {
	s := &Server{translator: translator}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed handler wrapped in CORS and request
// observability, outermost first.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleManifest)
	mux.HandleFunc("POST /api/translate", s.handleTranslate)

	mux.HandleFunc("POST /api/voice/synthesize", s.handleSynthesize)
	mux.HandleFunc("POST /api/voice/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /api/voice/transcribe-file", s.handleTranscribeFile)
	mux.HandleFunc("GET /api/voice/available-voices", s.handleVoices)
	mux.HandleFunc("GET /api/voice/transcription-jobs", s.handleJobs)
	mux.HandleFunc("GET /api/voice/transcription-job/{name}", s.handleJob)
	mux.HandleFunc("DELETE /api/voice/transcription-job/{name}", s.handleDeleteJob)

	mux.HandleFunc("GET /api/terms/suggest/{partial}", s.handleSuggest)
	mux.HandleFunc("GET /api/terms/categories", s.handleCategories)
	mux.HandleFunc("GET /api/terms/popular", s.handlePopular)

	mux.HandleFunc("GET /api/analytics/session/{id}", s.handleSessionAnalytics)
	mux.HandleFunc("GET /api/analytics/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/analytics/performance", s.handlePerformance)
	mux.HandleFunc("GET /api/analytics/categories", s.handleCategoryTrends)
	mux.HandleFunc("GET /api/analytics/health", s.handleSystemHealth)

	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/stats", s.handleSessionStats)
	mux.HandleFunc("POST /api/sessions/notify", s.handleNotify)

	if s.sessions != nil {
		mux.Handle("GET /ws/{session_id}", wsconn.Handler(s.sessions, wsconn.WithOriginPatterns(originHosts(s.origins)...)))
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	return CORS(s.origins)(observe.Middleware(s.metrics)(mux))
}

// ── Manifest ─────────────────────────────────────────────────────────────────

func (s *Server) handleManifest(w http.ResponseWriter, _ *http.Request) {
	features := s.features
	if features == nil {
		features = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":  "Jargonaut",
		"version":  Version,
		"status":   "operational",
		"features": features,
		"endpoints": map[string]string{
			"translate":  "POST /api/translate",
			"synthesize": "POST /api/voice/synthesize",
			"transcribe": "POST /api/voice/transcribe",
			"voices":     "GET /api/voice/available-voices",
			"suggest":    "GET /api/terms/suggest/{partial}",
			"dashboard":  "GET /api/analytics/dashboard",
			"sessions":   "GET /api/sessions",
			"websocket":  "GET /ws/{session_id}",
			"health":     "GET /healthz",
			"ready":      "GET /readyz",
			"metrics":    "GET /metrics",
		},
	})
}

// ── Translate ────────────────────────────────────────────────────────────────

type translateRequest struct {
	InputText       string `json:"input_text"`
	SessionID       string `json:"session_id"`
	BusinessContext string `json:"business_context"`
	UserAgent       string `json:"user_agent"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}

	resp, err := s.translator.Translate(r.Context(), translate.Request{
		Text:            req.InputText,
		SessionID:       req.SessionID,
		BusinessContext: req.BusinessContext,
		UserAgent:       req.UserAgent,
	})
	if err != nil {
		if errors.Is(err, translate.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		observe.Logger(r.Context()).Error("api: translation failed", "err", err)
		body := map[string]string{"error": "Translation failed: " + err.Error()}
		var oe *translate.OrchestrationError
		if errors.As(err, &oe) {
			body["stage"] = oe.Stage
		}
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("api: writing response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt returns the named query parameter, or def when it is absent or
// not a positive integer.
func queryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 1 {
		return def
	}
	return n
}
