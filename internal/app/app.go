// Package app wires all Jargonaut subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and drives the background loops, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithKnowledgeStore,
// WithAnalytics, etc.). When an option is not provided, New creates real
// implementations from the config: PostgreSQL stores when a DSN is set, the
// in-memory knowledge store otherwise.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/jargonaut/internal/api"
	"github.com/MrWong99/jargonaut/internal/config"
	"github.com/MrWong99/jargonaut/internal/health"
	"github.com/MrWong99/jargonaut/internal/observe"
	"github.com/MrWong99/jargonaut/internal/session"
	"github.com/MrWong99/jargonaut/internal/transcript/llmcorrect"
	"github.com/MrWong99/jargonaut/internal/translate"
	"github.com/MrWong99/jargonaut/internal/voice"
	"github.com/MrWong99/jargonaut/pkg/analytics"
	"github.com/MrWong99/jargonaut/pkg/analytics/amqp"
	analyticspg "github.com/MrWong99/jargonaut/pkg/analytics/postgres"
	"github.com/MrWong99/jargonaut/pkg/knowledge"
	"github.com/MrWong99/jargonaut/pkg/knowledge/memory"
	knowledgepg "github.com/MrWong99/jargonaut/pkg/knowledge/postgres"
	"github.com/MrWong99/jargonaut/pkg/provider/embeddings"
	"github.com/MrWong99/jargonaut/pkg/provider/llm"
	"github.com/MrWong99/jargonaut/pkg/provider/search"
	"github.com/MrWong99/jargonaut/pkg/provider/search/cache"
	"github.com/MrWong99/jargonaut/pkg/provider/stt"
	"github.com/MrWong99/jargonaut/pkg/provider/tts"
)

// readHeaderTimeout bounds slow clients on the HTTP server.
const readHeaderTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
	STT        stt.Provider
	TTS        tts.Provider
	Search     search.Provider

	// Names holds the configured provider name per kind ("llm", "stt", ...).
	// It labels provider metrics and the voice catalogue.
	Names map[string]string

	// Checkers report provider health on /readyz, e.g. circuit breaker state.
	Checkers []health.Checker
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	level          *slog.LevelVar
	configPath     string
	listener       net.Listener

	// Subsystems, initialised in New and torn down in Shutdown.
	knowledge    knowledge.Store
	analyticsLog analytics.Logger
	querier      analytics.Querier
	search       search.Provider
	orchestrator *translate.Orchestrator
	voice        *voice.Service
	sessions     *session.Manager
	watcher      *config.Watcher
	handler      http.Handler
	server       *http.Server

	checkers []health.Checker

	// timing holds the hot-reloadable session intervals; retime wakes the
	// housekeeping loop when they change.
	timing atomic.Pointer[config.SessionConfig]
	retime chan struct{}

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithKnowledgeStore injects a knowledge store instead of creating one from config.
func WithKnowledgeStore(s knowledge.Store) Option {
	return func(a *App) { a.knowledge = s }
}

// WithAnalytics injects the analytics sink and query side. Either may be nil.
func WithAnalytics(l analytics.Logger, q analytics.Querier) Option {
	return func(a *App) {
		a.analyticsLog = l
		a.querier = q
	}
}

// WithMetrics sets the instruments shared by every subsystem.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets configuration reloads change the log level of the
// logger built around lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithConfigWatcher polls path while Run is active and applies
// hot-reloadable changes.
func WithConfigWatcher(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithListener makes Run serve on l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		retime:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	sc := cfg.Session
	a.timing.Store(&sc)
	a.checkers = append(a.checkers, providers.Checkers...)

	// ── 1. Knowledge store ───────────────────────────────────────────────
	if err := a.initKnowledge(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init knowledge: %w", err)
	}

	// ── 2. Web search + cache ────────────────────────────────────────────
	if err := a.initSearch(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init search: %w", err)
	}

	// ── 3. Analytics ─────────────────────────────────────────────────────
	if err := a.initAnalytics(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init analytics: %w", err)
	}

	// ── 4. Translation orchestrator ──────────────────────────────────────
	a.initOrchestrator()

	// ── 5. Voice ─────────────────────────────────────────────────────────
	a.initVoice()

	// ── 6. Session manager ───────────────────────────────────────────────
	a.initSessions()

	// ── 7. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.ApplyConfig)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
	}

	// ── 8. HTTP surface ──────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initKnowledge connects the pgvector store, or falls back to memory when no
// DSN is configured.
func (a *App) initKnowledge(ctx context.Context) error {
	if a.knowledge != nil {
		return nil
	}
	kc := a.cfg.Knowledge
	if kc.PostgresDSN == "" {
		var opts []memory.Option
		if a.providers.Embeddings != nil {
			opts = append(opts, memory.WithEmbedder(a.providers.Embeddings))
		}
		if kc.SimilarityThreshold > 0 {
			opts = append(opts, memory.WithSimilarityThreshold(kc.SimilarityThreshold))
		}
		a.knowledge = memory.New(opts...)
		slog.Warn("using in-memory knowledge store; translations are lost on restart")
		return nil
	}

	var opts []knowledgepg.Option
	if a.providers.Embeddings != nil {
		opts = append(opts, knowledgepg.WithEmbedder(a.providers.Embeddings))
	}
	if kc.SimilarityThreshold > 0 {
		opts = append(opts, knowledgepg.WithSimilarityThreshold(kc.SimilarityThreshold))
	}
	store, err := knowledgepg.New(ctx, kc.PostgresDSN, kc.EmbeddingDimensions, opts...)
	if err != nil {
		return err
	}
	a.knowledge = store
	a.checkers = append(a.checkers, health.Checker{Name: "knowledge", Check: store.Ping})
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	slog.Info("knowledge store connected", "backend", "postgres", "dimensions", kc.EmbeddingDimensions)
	return nil
}

// initSearch puts the Redis cache in front of the search provider when
// configured. A cache that cannot be reached at startup is still installed;
// it degrades to pass-through until Redis comes back.
func (a *App) initSearch(ctx context.Context) error {
	a.search = a.providers.Search
	url := a.cfg.Search.Cache.RedisURL
	if a.search == nil || url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return fmt.Errorf("parse search.cache.redis_url: %w", err)
	}
	client := redis.NewClient(opts)
	c := cache.New(a.search, client, cache.WithTTL(a.cfg.Search.Cache.TTL))
	if err := c.Ping(ctx); err != nil {
		slog.Warn("search cache unreachable, continuing without caching until it recovers", "err", err)
	}
	a.search = c
	a.checkers = append(a.checkers, health.Checker{Name: "search_cache", Check: c.Ping, Optional: true})
	a.closers = append(a.closers, client.Close)
	return nil
}

// initAnalytics builds the event sinks: PostgreSQL for queries and AMQP for
// downstream consumers. Injected values take precedence.
func (a *App) initAnalytics(ctx context.Context) error {
	if a.analyticsLog != nil || a.querier != nil {
		return nil
	}
	ac := a.cfg.Analytics
	var sinks analytics.Fanout

	if ac.PostgresDSN != "" {
		store, err := analyticspg.New(ctx, ac.PostgresDSN)
		if err != nil {
			return err
		}
		sinks = append(sinks, store)
		a.querier = store
		a.checkers = append(a.checkers, health.Checker{Name: "analytics", Check: store.Ping, Optional: true})
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	}

	if ac.AMQP.URL != "" {
		pub, err := amqp.NewPublisher(ac.AMQP.URL, ac.AMQP.Queue)
		if err != nil {
			return err
		}
		sinks = append(sinks, pub)
		a.checkers = append(a.checkers, health.Checker{Name: "analytics_amqp", Check: pub.Ping, Optional: true})
		a.closers = append(a.closers, pub.Close)
	}

	switch len(sinks) {
	case 0:
		slog.Info("analytics disabled; dashboards report zeroed metrics")
	case 1:
		a.analyticsLog = sinks[0]
	default:
		a.analyticsLog = sinks
	}
	return nil
}

func (a *App) initOrchestrator() {
	opts := []translate.Option{
		translate.WithSettings(translateSettings(a.cfg)),
		translate.WithMetrics(a.metrics),
	}
	if a.search != nil {
		opts = append(opts, translate.WithSearch(a.search))
	}
	if a.providers.LLM != nil {
		opts = append(opts, translate.WithLLM(a.providers.LLM))
	}
	if a.providers.Embeddings != nil {
		opts = append(opts, translate.WithEmbeddings(a.providers.Embeddings))
	}
	if a.analyticsLog != nil {
		opts = append(opts, translate.WithAnalytics(a.analyticsLog))
	}
	a.orchestrator = translate.New(a.knowledge, opts...)
}

func (a *App) initVoice() {
	vc := a.cfg.Voice
	opts := []voice.Option{
		voice.WithStyles(vc.Styles),
		voice.WithDefaultStyle(vc.DefaultStyle),
		voice.WithMaxTextLength(vc.MaxTextLength),
		voice.WithJobLimit(vc.JobLimit),
		voice.WithGlossary(vc.Glossary),
		voice.WithTermSource(a.knowledge),
		voice.WithMetrics(a.metrics),
	}
	if a.providers.TTS != nil {
		opts = append(opts, voice.WithTTS(a.providers.TTS, a.providers.Names["tts"]))
	}
	if a.providers.STT != nil {
		opts = append(opts, voice.WithSTT(a.providers.STT, a.providers.Names["stt"]))
	}
	if vc.LLMCorrection && a.providers.LLM != nil {
		opts = append(opts, voice.WithRefiner(llmcorrect.New(a.providers.LLM)))
	}
	a.voice = voice.New(opts...)
}

func (a *App) initSessions() {
	sc := a.cfg.Session
	opts := []session.Option{
		session.WithSendBuffer(sc.SendBuffer),
		session.WithTaskBuffer(sc.TaskBuffer),
		session.WithAudioBuffer(sc.AudioBuffer),
		session.WithPartialThreshold(sc.PartialThresholdBytes),
		session.WithMetrics(a.metrics),
	}
	if a.voice.HasSTT() {
		opts = append(opts, session.WithTranscriber(a.voice))
	}
	a.sessions = session.NewManager(a.orchestrator, opts...)
}

func (a *App) initHTTP() {
	opts := []api.Option{
		api.WithVoice(a.voice),
		api.WithTerms(a.knowledge),
		api.WithSessions(a.sessions),
		api.WithHealth(health.New(a.checkers...)),
		api.WithMetrics(a.metrics),
		api.WithCORSOrigins(a.cfg.Server.CORSOrigins...),
		api.WithFeatures(a.features()...),
	}
	if a.querier != nil {
		opts = append(opts, api.WithAnalytics(a.querier))
	}
	if a.metricsHandler != nil {
		opts = append(opts, api.WithMetricsHandler(a.metricsHandler))
	}
	a.handler = api.New(a.orchestrator, opts...).Handler()
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// features lists the capabilities reported by the API manifest.
func (a *App) features() []string {
	f := []string{"translation", "knowledge_base", "realtime_sessions"}
	if a.search != nil {
		f = append(f, "web_search")
	}
	if a.voice.HasTTS() {
		f = append(f, "voice_synthesis")
	}
	if a.voice.HasSTT() {
		f = append(f, "speech_to_text", "glossary_correction")
	}
	if a.querier != nil {
		f = append(f, "analytics")
	}
	return f
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Orchestrator returns the translation pipeline.
func (a *App) Orchestrator() *translate.Orchestrator { return a.orchestrator }

// Voice returns the voice service.
func (a *App) Voice() *voice.Service { return a.voice }

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server and then runs the closers in order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("http server shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New managed to open before failing.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		_ = closer()
	}
	a.closers = nil
}

// translateSettings maps the configuration onto orchestrator settings.
func translateSettings(cfg *config.Config) translate.Settings {
	s := translate.DefaultSettings()
	tc := cfg.Translation
	s.SearchFallbackThreshold = tc.SearchFallbackThreshold
	s.MaxTextLength = tc.MaxTextLength
	s.Temperature = tc.Temperature
	s.MaxTokens = tc.MaxTokens
	s.EmbeddingDimensions = cfg.Knowledge.EmbeddingDimensions
	if cfg.Search.Depth != "" {
		s.SearchDepth = cfg.Search.Depth
	}
	return s
}
