// Command jargonaut is the main entry point for the Jargonaut translation
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/jargonaut/internal/api"
	"github.com/MrWong99/jargonaut/internal/app"
	"github.com/MrWong99/jargonaut/internal/config"
	"github.com/MrWong99/jargonaut/internal/health"
	"github.com/MrWong99/jargonaut/internal/observe"
	"github.com/MrWong99/jargonaut/internal/resilience"
	"github.com/MrWong99/jargonaut/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/jargonaut/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/jargonaut/pkg/provider/embeddings/openai"
	"github.com/MrWong99/jargonaut/pkg/provider/llm"
	"github.com/MrWong99/jargonaut/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/jargonaut/pkg/provider/llm/openai"
	"github.com/MrWong99/jargonaut/pkg/provider/search"
	"github.com/MrWong99/jargonaut/pkg/provider/search/tavily"
	"github.com/MrWong99/jargonaut/pkg/provider/stt"
	"github.com/MrWong99/jargonaut/pkg/provider/stt/deepgram"
	nullstt "github.com/MrWong99/jargonaut/pkg/provider/stt/null"
	oastt "github.com/MrWong99/jargonaut/pkg/provider/stt/openai"
	"github.com/MrWong99/jargonaut/pkg/provider/stt/whisper"
	"github.com/MrWong99/jargonaut/pkg/provider/tts"
	"github.com/MrWong99/jargonaut/pkg/provider/tts/coqui"
	"github.com/MrWong99/jargonaut/pkg/provider/tts/elevenlabs"
	nulltts "github.com/MrWong99/jargonaut/pkg/provider/tts/null"
	oatts "github.com/MrWong99/jargonaut/pkg/provider/tts/openai"
)

// shutdownTimeout bounds the graceful shutdown after a signal.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload hot-reloadable settings when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "jargonaut: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "jargonaut: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := &slog.LevelVar{}
	slog.SetDefault(newLogger(cfg.Server.LogLevel, level))

	slog.Info("jargonaut starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: api.Version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	opts := []app.Option{
		app.WithLevelVar(level),
		app.WithMetricsHandler(telemetry.Handler()),
	}
	if *watch {
		opts = append(opts, app.WithConfigWatcher(*configPath))
	}
	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// The any-llm-go backends share the same pattern: optional APIKey plus
	// optional BaseURL. ollama is local and never needs a key.
	for _, backend := range anyllm.SupportedBackends {
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && backend != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// openai-native talks to the Chat Completions API directly and can force
	// JSON output, which keeps analysis replies parseable.
	reg.RegisterLLM("openai-native", func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []oallm.Option{oallm.WithJSONMode(optBool(entry.Options, "json_mode", true))}
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────
	dims := cfg.Knowledge.EmbeddingDimensions

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		opts := []oaembed.Option{oaembed.WithDimensions(dims)}
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		opts := []ollamaembed.Option{ollamaembed.WithDimensions(dims)}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, ollamaembed.WithTimeout(d))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.Model != "" {
			opts = append(opts, oastt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		return oastt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("null", func(config.ProviderEntry) (stt.Provider, error) {
		return nullstt.New(), nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if entry.Model != "" {
			opts = append(opts, oatts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(entry.BaseURL))
		}
		return oatts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("null", func(config.ProviderEntry) (tts.Provider, error) {
		return nulltts.New(), nil
	})

	// ── Search ────────────────────────────────────────────────────────────────

	reg.RegisterSearch("tavily", func(entry config.ProviderEntry) (search.Provider, error) {
		var opts []tavily.Option
		if entry.BaseURL != "" {
			opts = append(opts, tavily.WithEndpoint(entry.BaseURL))
		}
		if len(cfg.Search.TrustedDomains) > 0 {
			opts = append(opts, tavily.WithTrustedDomains(cfg.Search.TrustedDomains))
		}
		if cfg.Search.MaxResults > 0 {
			opts = append(opts, tavily.WithMaxResults(cfg.Search.MaxResults))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, tavily.WithTimeout(d))
		}
		return tavily.New(entry.APIKey, opts...)
	})

	for _, kind := range []string{"llm", "embeddings", "stt", "tts", "search"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// Providers with fallbacks are wrapped in a circuit-breaking chain.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	pc := cfg.Providers
	ps := &app.Providers{Names: make(map[string]string)}

	llmChain, err := buildChain("llm", pc.LLM, pc.LLMFallbacks, reg.CreateLLM)
	if err != nil {
		return nil, err
	}
	if llmChain != nil {
		ps.LLM = wrapChain(ps, "llm", llmChain, func(c *resilience.Chain[llm.Provider]) llm.Provider { return resilience.LLM{Chain: c} })
		ps.Names["llm"] = pc.LLM.Name
	}

	sttChain, err := buildChain("stt", pc.STT, pc.STTFallbacks, reg.CreateSTT)
	if err != nil {
		return nil, err
	}
	if sttChain != nil {
		ps.STT = wrapChain(ps, "stt", sttChain, func(c *resilience.Chain[stt.Provider]) stt.Provider { return resilience.STT{Chain: c} })
		ps.Names["stt"] = pc.STT.Name
	}

	ttsChain, err := buildChain("tts", pc.TTS, pc.TTSFallbacks, reg.CreateTTS)
	if err != nil {
		return nil, err
	}
	if ttsChain != nil {
		ps.TTS = wrapChain(ps, "tts", ttsChain, func(c *resilience.Chain[tts.Provider]) tts.Provider { return resilience.TTS{Chain: c} })
		ps.Names["tts"] = pc.TTS.Name
	}

	if emb, err := createOne("embeddings", pc.Embeddings, reg.CreateEmbeddings); err != nil {
		return nil, err
	} else if emb != nil {
		ps.Embeddings = emb
		ps.Names["embeddings"] = pc.Embeddings.Name
	}

	if s, err := createOne("search", pc.Search, reg.CreateSearch); err != nil {
		return nil, err
	} else if s != nil {
		ps.Search = s
		ps.Names["search"] = pc.Search.Name
	}

	return ps, nil
}

// createOne builds a single provider. An unregistered name is logged and
// skipped so that a typo does not prevent startup.
func createOne[T comparable](kind string, entry config.ProviderEntry, create func(config.ProviderEntry) (T, error)) (T, error) {
	var zero T
	if entry.Name == "" {
		return zero, nil
	}
	p, err := create(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not registered, skipping", "kind", kind, "name", entry.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model)
	return p, nil
}

// buildChain creates the primary provider and its fallbacks. It returns nil
// when the primary is not configured or not registered.
func buildChain[T comparable](kind string, primary config.ProviderEntry, fallbacks []config.ProviderEntry,
	create func(config.ProviderEntry) (T, error)) (*resilience.Chain[T], error) {
	var zero T
	p, err := createOne(kind, primary, create)
	if err != nil || p == zero {
		return nil, err
	}
	chain := resilience.NewChain(primary.Name, p)
	for _, fb := range fallbacks {
		f, err := createOne(kind, fb, create)
		if err != nil {
			return nil, err
		}
		if f != zero {
			chain.With(fb.Name, f)
		}
	}
	return chain, nil
}

// wrapChain returns the bare primary when there is no fallback. Otherwise it
// wraps the chain and registers a readiness check on its breakers.
func wrapChain[T any](ps *app.Providers, kind string, c *resilience.Chain[T], wrap func(*resilience.Chain[T]) T) T {
	if c.Len() == 1 {
		return c.Primary()
	}
	ps.Checkers = append(ps.Checkers, health.Checker{
		Name:     kind,
		Optional: true,
		Check: func(context.Context) error {
			if !c.Available() {
				return fmt.Errorf("all %d %s providers are failing: %v", c.Len(), kind, c.Status())
			}
			return nil
		},
	})
	slog.Info("provider fallback chain", "kind", kind, "entries", c.Len())
	return wrap(c)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Jargonaut startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Search", cfg.Providers.Search.Name, "")
	printRow("Knowledge", backend(cfg.Knowledge.PostgresDSN, "postgres", "memory"))
	printRow("Analytics", backend(cfg.Analytics.PostgresDSN, "postgres", "(disabled)"))
	printRow("Event queue", backend(cfg.Analytics.AMQP.URL, cfg.Analytics.AMQP.Queue, "(disabled)"))
	printRow("Search cache", backend(cfg.Search.Cache.RedisURL, "redis", "(disabled)"))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

func backend(setting, on, off string) string {
	if setting == "" {
		return off
	}
	return on
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger returns a text logger whose level follows lv. lv starts at level
// and is updated on config reloads.
func newLogger(level config.LogLevel, lv *slog.LevelVar) *slog.Logger {
	switch level {
	case config.LogDebug:
		lv.Set(slog.LevelDebug)
	case config.LogWarn:
		lv.Set(slog.LevelWarn)
	case config.LogError:
		lv.Set(slog.LevelError)
	default:
		lv.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optBool extracts a bool option, returning def when it is absent or not a bool.
func optBool(opts map[string]any, key string, def bool) bool {
	b, ok := opts[key].(bool)
	if !ok {
		return def
	}
	return b
}

// optDuration parses a duration option such as "30s". Invalid values are
// ignored.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
