// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the Jargonaut server.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Knowledge   KnowledgeConfig   `yaml:"knowledge"`
	Search      SearchConfig      `yaml:"search"`
	Analytics   AnalyticsConfig   `yaml:"analytics"`
	Translation TranslationConfig `yaml:"translation"`
	Session     SessionConfig     `yaml:"session"`
	Voice       VoiceConfig       `yaml:"voice"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// CORSOrigins lists the browser origins allowed to call the API and open
	// WebSocket sessions. Credentials are allowed for these origins.
	CORSOrigins []string `yaml:"cors_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation backs each
// capability. Each entry selects a named provider registered in the
// [Registry]. The fallback lists are tried in order when the primary fails.
type ProvidersConfig struct {
	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	Embeddings   ProviderEntry   `yaml:"embeddings"`
	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
	TTS          ProviderEntry   `yaml:"tts"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
	Search       ProviderEntry   `yaml:"search"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "tavily").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any. Use a
	// ${ENV_VAR} reference to keep it out of the file.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// KnowledgeConfig configures the translation knowledge base.
type KnowledgeConfig struct {
	// PostgresDSN selects the pgvector-backed store. When empty the in-memory
	// store is used and nothing survives a restart.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the length of stored embeddings. Must match the
	// model configured in providers.embeddings.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`

	// SimilarityThreshold is the minimum score of a vector match. Zero keeps
	// the store default.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// SearchConfig tunes the web search fallback.
type SearchConfig struct {
	// Depth is "basic" or "advanced".
	Depth string `yaml:"depth"`

	// MaxResults caps the raw results requested from the provider.
	MaxResults int `yaml:"max_results"`

	// TrustedDomains restricts results to these documentation hosts. Empty
	// keeps the provider's built-in list.
	TrustedDomains []string `yaml:"trusted_domains"`

	Cache SearchCacheConfig `yaml:"cache"`
}

// SearchCacheConfig enables the Redis result cache.
type SearchCacheConfig struct {
	// RedisURL enables caching when set (e.g., "redis://localhost:6379/0").
	RedisURL string `yaml:"redis_url"`

	// TTL is how long a cached result set stays valid.
	TTL time.Duration `yaml:"ttl"`
}

// AnalyticsConfig configures translation event sinks.
type AnalyticsConfig struct {
	// PostgresDSN enables the queryable event store. Without it the analytics
	// endpoints answer with zeroed shapes.
	PostgresDSN string `yaml:"postgres_dsn"`

	// RetentionDays is how long events are kept. Older events are deleted
	// once a day.
	RetentionDays int `yaml:"retention_days"`

	AMQP AMQPConfig `yaml:"amqp"`
}

// AMQPConfig enables publishing every translation event to a queue.
type AMQPConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// TranslationConfig holds the hot-reloadable pipeline tunables.
type TranslationConfig struct {
	// SearchFallbackThreshold: web search runs when the best knowledge match
	// scores strictly below this value.
	SearchFallbackThreshold float64 `yaml:"search_fallback_threshold"`

	// MaxTextLength is the maximum term length in runes.
	MaxTextLength int `yaml:"max_text_length"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// SessionConfig tunes the real-time session manager.
type SessionConfig struct {
	// InactiveTimeout disconnects sessions idle for longer. Hot-reloadable.
	InactiveTimeout time.Duration `yaml:"inactive_timeout"`

	// CleanupInterval is how often inactive sessions are swept. Hot-reloadable.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// PingInterval is how often every session receives a ping. Hot-reloadable.
	PingInterval time.Duration `yaml:"ping_interval"`

	SendBuffer            int `yaml:"send_buffer"`
	TaskBuffer            int `yaml:"task_buffer"`
	AudioBuffer           int `yaml:"audio_buffer"`
	PartialThresholdBytes int `yaml:"partial_threshold_bytes"`
}

// VoiceConfig configures synthesis styles and transcript correction.
type VoiceConfig struct {
	// DefaultStyle is used for unknown or empty style names.
	DefaultStyle string `yaml:"default_style"`

	// Styles overrides or extends the style to provider voice ID mapping.
	Styles map[string]string `yaml:"styles"`

	// MaxTextLength is the synthesis text limit in runes.
	MaxTextLength int `yaml:"max_text_length"`

	// Glossary lists technical terms that transcripts are corrected towards,
	// in addition to the most popular knowledge-base terms. Hot-reloadable.
	Glossary []string `yaml:"glossary"`

	// GlossaryRefresh is how often popular terms are reloaded.
	GlossaryRefresh time.Duration `yaml:"glossary_refresh"`

	// LLMCorrection adds a language-model pass after glossary correction.
	// Requires providers.llm.
	LLMCorrection bool `yaml:"llm_correction"`

	// JobLimit bounds the transcription job registry.
	JobLimit int `yaml:"job_limit"`
}
