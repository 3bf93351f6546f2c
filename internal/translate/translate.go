// Package translate implements the translation pipeline: knowledge lookup,
// conditional web search, analysis, persistence and analytics.
//
// [Orchestrator.Translate] runs the stages in order. Every stage reports a
// [StageResult]; the pipeline branches on its [Outcome] so that a failing
// lookup, search, analysis or embedding degrades the response instead of
// failing it. Only a persistence failure is fatal.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jargonaut/internal/observe"
	"github.com/MrWong99/jargonaut/pkg/analytics"
	"github.com/MrWong99/jargonaut/pkg/knowledge"
	"github.com/MrWong99/jargonaut/pkg/provider/embeddings"
	"github.com/MrWong99/jargonaut/pkg/provider/llm"
	"github.com/MrWong99/jargonaut/pkg/provider/search"
	"github.com/MrWong99/jargonaut/pkg/types"
)

// Source labels reported in [Response.Sources].
const (
	SourceKnowledgeBase = "internal_knowledge_base"
	SourceWebSearch     = "web_search"
	SourceAI            = "ai_analysis"
	SourceFallback      = "fallback"
)

// Request is one translation request. It is not retained after Translate
// returns.
type Request struct {
	Text            string
	SessionID       string
	BusinessContext string
	UserAgent       string
}

// Response is the result returned to callers.
type Response struct {
	SessionID      string    `json:"session_id"`
	Term           string    `json:"term"`
	Explanation    string    `json:"explanation"`
	Category       string    `json:"category"`
	Confidence     float64   `json:"confidence"`
	BusinessImpact string    `json:"business_impact"`
	RelatedTerms   []string  `json:"related_terms"`
	Sources        []string  `json:"sources"`
	ProcessingTime float64   `json:"processing_time"`
	Timestamp      time.Time `json:"timestamp"`

	TechnicalComplexity  string `json:"technical_complexity,omitempty"`
	ImplementationEffort string `json:"implementation_effort,omitempty"`
	StrategicValue       string `json:"strategic_value,omitempty"`
}

// Settings are the tunables of the pipeline. They may be replaced at runtime
// through [Orchestrator.UpdateSettings].
type Settings struct {
	// SearchFallbackThreshold: web search runs when there is no knowledge
	// match or the best match scores strictly below this value.
	SearchFallbackThreshold float64

	// MaxTextLength is the maximum input length in runes.
	MaxTextLength int

	Temperature float64
	MaxTokens   int

	// EmbeddingDimensions is the length of stored embeddings, including the
	// zero vector used when embedding fails.
	EmbeddingDimensions int

	// KnowledgeLimit caps the knowledge lookup.
	KnowledgeLimit int

	// SearchDepth is passed to the search provider.
	SearchDepth string
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		SearchFallbackThreshold: 0.8,
		MaxTextLength:           5000,
		Temperature:             0.7,
		MaxTokens:               4000,
		EmbeddingDimensions:     1024,
		KnowledgeLimit:          3,
		SearchDepth:             search.DepthAdvanced,
	}
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithSearch sets the web search provider. Without one, the fallback gate
// never calls out.
func WithSearch(p search.Provider) Option { return func(o *Orchestrator) { o.search = p } }

// WithLLM sets the analysis model. Without one, every request takes the
// degraded analysis path.
func WithLLM(p llm.Provider) Option { return func(o *Orchestrator) { o.llm = p } }

// WithEmbeddings sets the embedding provider. Without one, records are stored
// with a zero embedding.
func WithEmbeddings(p embeddings.Provider) Option { return func(o *Orchestrator) { o.embedder = p } }

// WithAnalytics sets the analytics sink.
func WithAnalytics(l analytics.Logger) Option { return func(o *Orchestrator) { o.analytics = l } }

// WithSettings overrides [DefaultSettings].
func WithSettings(s Settings) Option { return func(o *Orchestrator) { o.settings.Store(&s) } }

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// Orchestrator runs translations. It is safe for concurrent use.
type Orchestrator struct {
	store     knowledge.Store
	search    search.Provider
	llm       llm.Provider
	embedder  embeddings.Provider
	analytics analytics.Logger
	metrics   *observe.Metrics
	now       func() time.Time

	settings atomic.Pointer[Settings]
}

// New creates an Orchestrator backed by store, which serves both the lookup
// and the persistence stage.
func New(store knowledge.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{store: store, now: time.Now}
	def := DefaultSettings()
	o.settings.Store(&def)
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Settings returns the current settings.
func (o *Orchestrator) Settings() Settings { return *o.settings.Load() }

// UpdateSettings replaces the settings used by subsequent requests.
func (o *Orchestrator) UpdateSettings(s Settings) { o.settings.Store(&s) }

// SetSearchFallbackThreshold changes only the fallback threshold.
func (o *Orchestrator) SetSearchFallbackThreshold(v float64) {
	s := o.Settings()
	s.SearchFallbackThreshold = v
	o.UpdateSettings(s)
}

// NeedsWebSearch reports whether the fallback gate opens for matches, which
// must be sorted best first.
func NeedsWebSearch(matches []types.KnowledgeMatch, threshold float64) bool {
	return len(matches) == 0 || matches[0].Score < threshold
}

// Translate runs the pipeline for req. Validation failures wrap
// [ErrInvalidRequest]; every other failure is an [*OrchestrationError].
func (o *Orchestrator) Translate(ctx context.Context, req Request) (*Response, error) {
	cfg := o.Settings()

	term := strings.TrimSpace(req.Text)
	if err := validate(term, cfg.MaxTextLength); err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	start := o.now()
	ctx = observe.WithSession(ctx, sessionID)
	ctx, span := observe.StartSpan(ctx, "translate", trace.WithAttributes(attribute.String("term", term)))
	defer span.End()
	log := observe.Logger(ctx).With("term", term)

	// The embedding depends only on the term. A store that takes it is
	// searched with it so the provider sees one call per term; otherwise it
	// runs alongside the lookup, search and analysis stages.
	var (
		eg     errgroup.Group
		emb    StageResult[[]float32]
		lookup StageResult[[]types.KnowledgeMatch]
	)
	if es, ok := o.store.(knowledge.EmbeddedSearcher); ok && o.embedder != nil {
		emb = o.embed(ctx, term, cfg.EmbeddingDimensions)
		var query []float32
		if emb.Outcome == OutcomeSuccess {
			query = emb.Value
		}
		lookup = o.lookup(ctx, cfg.KnowledgeLimit, func(ctx context.Context) ([]types.KnowledgeMatch, error) {
			return es.SearchEmbedded(ctx, term, query, cfg.KnowledgeLimit)
		})
	} else {
		eg.Go(func() error {
			emb = o.embed(ctx, term, cfg.EmbeddingDimensions)
			return nil
		})
		lookup = o.lookup(ctx, cfg.KnowledgeLimit, func(ctx context.Context) ([]types.KnowledgeMatch, error) {
			return o.store.Search(ctx, term, cfg.KnowledgeLimit)
		})
	}
	if lookup.Outcome == OutcomeDegraded {
		log.Warn("knowledge lookup failed, continuing without matches", "err", lookup.Err)
	}

	web := skipped[[]types.WebResult](nil)
	if NeedsWebSearch(lookup.Value, cfg.SearchFallbackThreshold) {
		o.metrics.WebSearchFallbacks.Add(ctx, 1)
		web = o.webSearch(ctx, term, cfg.SearchDepth)
		if web.Outcome == OutcomeDegraded {
			log.Warn("web search failed, continuing without web context", "err", web.Err)
		}
	}

	analysis := o.analyse(ctx, term, lookup.Value, web.Value, req.BusinessContext, cfg)
	if analysis.Outcome == OutcomeDegraded {
		log.Warn("analysis degraded, using fallback explanation", "err", analysis.Err)
	}

	_ = eg.Wait()
	embedding := emb.Value
	if emb.Outcome == OutcomeDegraded {
		log.Warn("embedding failed, storing zero vector", "err", emb.Err)
	}

	var sources []string
	if analysis.Outcome == OutcomeSuccess {
		sources = successSources(len(lookup.Value), len(web.Value))
	} else {
		sources = []string{SourceFallback}
		embedding = make([]float32, cfg.EmbeddingDimensions)
	}

	a := analysis.Value
	elapsed := o.now().Sub(start)

	if err := o.persist(ctx, term, sessionID, a, embedding); err != nil {
		oe := &OrchestrationError{Stage: StagePersist, Err: err}
		span.RecordError(oe)
		span.SetStatus(codes.Error, oe.Error())
		o.metrics.RecordOutcome(ctx, OutcomeFailed.String())
		log.Error("persisting translation failed", "err", err)
		o.logEvent(ctx, analytics.Event{
			SessionID:        sessionID,
			Term:             term,
			Category:         a.Category,
			Confidence:       a.Confidence,
			ProcessingTimeMS: elapsed.Milliseconds(),
			UserAgent:        req.UserAgent,
			Success:          false,
			ErrorMessage:     oe.Error(),
		})
		return nil, oe
	}

	elapsed = o.now().Sub(start)
	o.logEvent(ctx, analytics.Event{
		SessionID:        sessionID,
		Term:             term,
		Category:         a.Category,
		Confidence:       a.Confidence,
		ProcessingTimeMS: elapsed.Milliseconds(),
		UserAgent:        req.UserAgent,
		Success:          true,
	})

	o.metrics.TranslateDuration.Record(ctx, elapsed.Seconds())
	o.metrics.RecordOutcome(ctx, analysis.Outcome.String())

	return &Response{
		SessionID:            sessionID,
		Term:                 term,
		Explanation:          a.Explanation,
		Category:             a.Category,
		Confidence:           a.Confidence,
		BusinessImpact:       a.BusinessImpact,
		RelatedTerms:         a.RelatedTerms,
		Sources:              sources,
		ProcessingTime:       float64(elapsed.Microseconds()) / 1000,
		Timestamp:            o.now().UTC(),
		TechnicalComplexity:  a.TechnicalComplexity,
		ImplementationEffort: a.ImplementationEffort,
		StrategicValue:       a.StrategicValue,
	}, nil
}

func validate(term string, maxLen int) error {
	var errs []error
	if term == "" {
		errs = append(errs, errors.New("text is required"))
	}
	if maxLen > 0 && utf8.RuneCountInString(term) > maxLen {
		errs = append(errs, fmt.Errorf("text exceeds %d characters", maxLen))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

func successSources(matches, results int) []string {
	var s []string
	if matches > 0 {
		s = append(s, SourceKnowledgeBase)
	}
	if results > 0 {
		s = append(s, SourceWebSearch)
	}
	return append(s, SourceAI)
}

// ── stages ───────────────────────────────────────────────────────────────────

// timed opens a span for stage and returns a function that records its
// latency and outcome.
func (o *Orchestrator) timed(ctx context.Context, stage string) (context.Context, func(Outcome, error)) {
	start := o.now()
	ctx, span := observe.StartSpan(ctx, "translate."+stage)
	return ctx, func(out Outcome, err error) {
		o.metrics.RecordStage(ctx, stage, o.now().Sub(start))
		span.SetAttributes(attribute.String("outcome", out.String()))
		if err != nil {
			span.RecordError(err)
			if out == OutcomeFailed {
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.End()
	}
}

func (o *Orchestrator) lookup(ctx context.Context, limit int, find func(context.Context) ([]types.KnowledgeMatch, error)) (res StageResult[[]types.KnowledgeMatch]) {
	ctx, done := o.timed(ctx, StageLookup)
	defer func() { done(res.Outcome, res.Err) }()

	matches, err := find(ctx)
	if err != nil {
		return degraded[[]types.KnowledgeMatch](nil, err)
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return succeeded(matches)
}

func (o *Orchestrator) webSearch(ctx context.Context, term, depth string) (res StageResult[[]types.WebResult]) {
	if o.search == nil {
		return skipped[[]types.WebResult](nil)
	}
	ctx, done := o.timed(ctx, StageSearch)
	defer func() { done(res.Outcome, res.Err) }()

	results, err := o.search.Search(ctx, term, search.Options{Depth: depth})
	if err != nil {
		o.metrics.RecordProviderError(ctx, "search", "search")
		return degraded[[]types.WebResult](nil, err)
	}
	return succeeded(results)
}

func (o *Orchestrator) analyse(ctx context.Context, term string, matches []types.KnowledgeMatch,
	results []types.WebResult, businessContext string, cfg Settings,
) (res StageResult[Analysis]) {
	ctx, done := o.timed(ctx, StageAnalysis)
	defer func() { done(res.Outcome, res.Err) }()

	if o.llm == nil {
		return degraded(DegradedAnalysis(term), errors.New("no analysis provider configured"))
	}

	prompt := BuildPrompt(term, matches, results, businessContext)
	resp, err := o.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: prompt}},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		o.metrics.RecordProviderRequest(ctx, o.llm.Model(), "llm", "error")
		o.metrics.RecordProviderError(ctx, o.llm.Model(), "llm")
		return degraded(DegradedAnalysis(term), err)
	}
	o.metrics.RecordProviderRequest(ctx, o.llm.Model(), "llm", "ok")
	if resp == nil {
		return degraded(DegradedAnalysis(term), errors.New("empty analysis response"))
	}

	a, err := ParseAnalysis(resp.Content)
	if err != nil {
		return degraded(DegradedAnalysis(term), fmt.Errorf("parse analysis: %w", err))
	}
	return succeeded(a)
}

// embed always returns a vector of length dims. Failures yield zeros.
func (o *Orchestrator) embed(ctx context.Context, term string, dims int) (res StageResult[[]float32]) {
	ctx, done := o.timed(ctx, StageEmbedding)
	defer func() { done(res.Outcome, res.Err) }()

	zero := make([]float32, dims)
	if o.embedder == nil {
		return degraded(zero, errors.New("no embedding provider configured"))
	}
	v, err := o.embedder.Embed(ctx, term)
	if err != nil {
		o.metrics.RecordProviderError(ctx, o.embedder.ModelID(), "embeddings")
		return degraded(zero, err)
	}
	if len(v) != dims {
		return degraded(zero, fmt.Errorf("embedding has %d dimensions, want %d", len(v), dims))
	}
	return succeeded(v)
}

func (o *Orchestrator) persist(ctx context.Context, term, sessionID string, a Analysis, embedding []float32) (err error) {
	ctx, done := o.timed(ctx, StagePersist)
	defer func() {
		out := OutcomeSuccess
		if err != nil {
			out = OutcomeFailed
		}
		done(out, err)
	}()

	return o.store.Upsert(ctx, knowledge.Record{
		Term:        term,
		DisplayTerm: term,
		Explanation: a.Explanation,
		Category:    a.Category,
		Confidence:  a.Confidence,
		Embedding:   embedding,
		Sessions:    []string{sessionID},
	})
}

// logEvent is best-effort: a failing sink is logged and otherwise ignored.
func (o *Orchestrator) logEvent(ctx context.Context, ev analytics.Event) {
	if o.analytics == nil {
		return
	}
	ev.EventID = uuid.NewString()
	ev.Timestamp = o.now().UTC()
	if err := o.analytics.LogTranslation(ctx, ev); err != nil {
		slog.Warn("analytics logging failed", "session_id", ev.SessionID, "err", err)
	}
}
