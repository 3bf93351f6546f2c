// Package types defines the shared types used across Jargonaut packages.
//
// These types are exchanged between providers, the knowledge store, and the
// translation orchestrator. Each package defines its own domain types; only
// cross-cutting structures live here to avoid circular imports.
package types

import "time"

// KnowledgeMatch is a ranked candidate returned by a knowledge lookup.
type KnowledgeMatch struct {
	// Term is the stored display form of the matched term.
	Term string `json:"term"`

	// Explanation is the business-friendly explanation stored for Term.
	Explanation string `json:"explanation"`

	// Category is the technical category (e.g., "Architecture", "DevOps").
	Category string `json:"category"`

	// Score is the similarity between the query and Term in the range [0, 1].
	// 1.0 means an exact (case-insensitive) match.
	Score float64 `json:"score"`
}

// WebResult is a single ranked document returned by a web search provider.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`

	// Score is the provider-computed relevance of this result to the search
	// term, in the range [0, 1].
	Score float64 `json:"score"`

	// SourceType classifies the origin (e.g., "documentation", "qa_forum").
	SourceType string `json:"source_type"`

	// PublishedDate is passed through verbatim when the provider reports it.
	PublishedDate string `json:"published_date,omitempty"`
}

// Suggestion is a term suggested for a partial user input.
type Suggestion struct {
	Term       string  `json:"term"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`

	// UsageCount is the number of distinct sessions that contributed to the
	// stored translation.
	UsageCount int `json:"usage_count"`
}

// Transcript is a speech-to-text result.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score in [0, 1].
	Confidence float64

	// Language is the BCP-47 language code the provider detected or was told
	// to use. May be empty.
	Language string

	// IsFinal is false for windowed partial results emitted while a stream
	// is still receiving audio.
	IsFinal bool

	// Duration is the length of the transcribed audio when the provider
	// reports it.
	Duration time.Duration
}

// Message is a single chat message sent to an LLM.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text body of the message.
	Content string
}
