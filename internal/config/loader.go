package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "openai-native"},
	"embeddings": {"openai", "ollama"},
	"stt":        {"whisper", "deepgram", "openai", "null"},
	"tts":        {"elevenlabs", "coqui", "openai", "null"},
	"search":     {"tavily"},
}

// KnownVoiceStyles are the styles every TTS provider mapping starts from.
var KnownVoiceStyles = []string{"professional_female", "professional_male", "conversational_female", "conversational_male"}

// Documented defaults.
const (
	DefaultListenAddr              = ":8000"
	DefaultEmbeddingDimensions     = 1024
	DefaultSearchDepth             = "advanced"
	DefaultSearchCacheTTL          = time.Hour
	DefaultRetentionDays           = 30
	DefaultAMQPQueue               = "jargonaut.translation_events"
	DefaultSearchFallbackThreshold = 0.8
	DefaultMaxTextLength           = 5000
	DefaultTemperature             = 0.7
	DefaultMaxTokens               = 4000
	DefaultInactiveTimeout         = 30 * time.Minute
	DefaultCleanupInterval         = 60 * time.Second
	DefaultPingInterval            = 30 * time.Second
	DefaultSendBuffer              = 64
	DefaultTaskBuffer              = 16
	DefaultAudioBuffer             = 32
	DefaultPartialThresholdBytes   = 4096
	DefaultVoiceStyle              = "professional_female"
	DefaultGlossaryRefresh         = 5 * time.Minute
	DefaultJobLimit                = 100
)

// DefaultCORSOrigins are the development front-end origins.
var DefaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:3001"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. ${VAR} references are expanded from the environment
// before decoding. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field with its documented default.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, DefaultListenAddr)
	setDefault(&cfg.Server.LogLevel, LogInfo)
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = slices.Clone(DefaultCORSOrigins)
	}

	setDefault(&cfg.Knowledge.EmbeddingDimensions, DefaultEmbeddingDimensions)

	setDefault(&cfg.Search.Depth, DefaultSearchDepth)
	setDefault(&cfg.Search.Cache.TTL, DefaultSearchCacheTTL)

	setDefault(&cfg.Analytics.RetentionDays, DefaultRetentionDays)
	setDefault(&cfg.Analytics.AMQP.Queue, DefaultAMQPQueue)

	setDefault(&cfg.Translation.SearchFallbackThreshold, DefaultSearchFallbackThreshold)
	setDefault(&cfg.Translation.MaxTextLength, DefaultMaxTextLength)
	setDefault(&cfg.Translation.Temperature, DefaultTemperature)
	setDefault(&cfg.Translation.MaxTokens, DefaultMaxTokens)

	s := &cfg.Session
	setDefault(&s.InactiveTimeout, DefaultInactiveTimeout)
	setDefault(&s.CleanupInterval, DefaultCleanupInterval)
	setDefault(&s.PingInterval, DefaultPingInterval)
	setDefault(&s.SendBuffer, DefaultSendBuffer)
	setDefault(&s.TaskBuffer, DefaultTaskBuffer)
	setDefault(&s.AudioBuffer, DefaultAudioBuffer)
	setDefault(&s.PartialThresholdBytes, DefaultPartialThresholdBytes)

	v := &cfg.Voice
	setDefault(&v.DefaultStyle, DefaultVoiceStyle)
	setDefault(&v.MaxTextLength, DefaultMaxTextLength)
	setDefault(&v.GlossaryRefresh, DefaultGlossaryRefresh)
	setDefault(&v.JobLimit, DefaultJobLimit)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		fail("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		fail("server.tls requires both cert_file and key_file")
	}

	// Providers
	p := cfg.Providers
	validateProviderName("llm", p.LLM.Name)
	validateProviderName("embeddings", p.Embeddings.Name)
	validateProviderName("stt", p.STT.Name)
	validateProviderName("tts", p.TTS.Name)
	validateProviderName("search", p.Search.Name)
	for kind, list := range map[string][]ProviderEntry{"llm": p.LLMFallbacks, "stt": p.STTFallbacks, "tts": p.TTSFallbacks} {
		for i, e := range list {
			if e.Name == "" {
				fail("providers.%s_fallbacks[%d].name is required", kind, i)
				continue
			}
			validateProviderName(kind, e.Name)
		}
	}
	if len(p.LLMFallbacks) > 0 && p.LLM.Name == "" {
		fail("providers.llm_fallbacks requires providers.llm")
	}
	if len(p.STTFallbacks) > 0 && p.STT.Name == "" {
		fail("providers.stt_fallbacks requires providers.stt")
	}
	if len(p.TTSFallbacks) > 0 && p.TTS.Name == "" {
		fail("providers.tts_fallbacks requires providers.tts")
	}
	if p.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; every translation will use the fallback analysis")
	}

	// Knowledge
	if cfg.Knowledge.EmbeddingDimensions < 0 {
		fail("knowledge.embedding_dimensions must be positive, got %d", cfg.Knowledge.EmbeddingDimensions)
	}
	if t := cfg.Knowledge.SimilarityThreshold; t < 0 || t > 1 {
		fail("knowledge.similarity_threshold %.2f is out of range [0, 1]", t)
	}
	if cfg.Knowledge.PostgresDSN == "" {
		slog.Warn("knowledge.postgres_dsn is empty; translations are kept in memory only")
	}

	// Search
	if d := cfg.Search.Depth; d != "basic" && d != "advanced" {
		fail("search.depth %q is invalid; valid values: basic, advanced", d)
	}
	if cfg.Search.MaxResults < 0 {
		fail("search.max_results must not be negative")
	}
	if cfg.Search.Cache.RedisURL != "" && p.Search.Name == "" {
		slog.Warn("search.cache.redis_url is set but providers.search is not configured; the cache is unused")
	}

	// Analytics
	if cfg.Analytics.RetentionDays < 1 {
		fail("analytics.retention_days must be at least 1, got %d", cfg.Analytics.RetentionDays)
	}

	// Translation
	tr := cfg.Translation
	if tr.SearchFallbackThreshold < 0 || tr.SearchFallbackThreshold > 1 {
		fail("translation.search_fallback_threshold %.2f is out of range [0, 1]", tr.SearchFallbackThreshold)
	}
	if tr.MaxTextLength < 1 {
		fail("translation.max_text_length must be positive")
	}
	if tr.Temperature < 0 || tr.Temperature > 2 {
		fail("translation.temperature %.2f is out of range [0, 2]", tr.Temperature)
	}
	if tr.MaxTokens < 1 {
		fail("translation.max_tokens must be positive")
	}

	// Session
	s := cfg.Session
	for name, d := range map[string]time.Duration{
		"inactive_timeout": s.InactiveTimeout,
		"cleanup_interval": s.CleanupInterval,
		"ping_interval":    s.PingInterval,
	} {
		if d <= 0 {
			fail("session.%s must be positive, got %s", name, d)
		}
	}
	for name, n := range map[string]int{
		"send_buffer":             s.SendBuffer,
		"task_buffer":             s.TaskBuffer,
		"audio_buffer":            s.AudioBuffer,
		"partial_threshold_bytes": s.PartialThresholdBytes,
	} {
		if n < 1 {
			fail("session.%s must be positive, got %d", name, n)
		}
	}

	// Voice
	v := cfg.Voice
	if _, ok := v.Styles[v.DefaultStyle]; !ok && !slices.Contains(KnownVoiceStyles, v.DefaultStyle) {
		fail("voice.default_style %q is neither a built-in style nor listed in voice.styles", v.DefaultStyle)
	}
	for style, id := range v.Styles {
		if id == "" {
			fail("voice.styles.%s has an empty voice ID", style)
		}
	}
	if v.MaxTextLength < 1 {
		fail("voice.max_text_length must be positive")
	}
	if v.GlossaryRefresh <= 0 {
		fail("voice.glossary_refresh must be positive")
	}
	if v.LLMCorrection && p.LLM.Name == "" {
		fail("voice.llm_correction requires providers.llm")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
