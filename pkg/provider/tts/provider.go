// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, a local
// Coqui server, or OpenAI) and returns one complete encoded audio file per
// request. Explanations are short enough that streaming adds nothing for the
// HTTP callers that download the result as an attachment.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/jargonaut/pkg/audio"
)

// Voice selects a provider voice and its delivery.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"voice_id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// Style is the Jargonaut voice style this voice is mapped from (e.g.,
	// "professional_female"). Empty for catalogue entries.
	Style string `json:"style,omitempty"`

	// Speed is the speaking rate multiplier (0.5–2.0, 1.0 = default). Zero
	// means the provider default.
	Speed float64 `json:"-"`
}

// Audio is a complete synthesised utterance.
type Audio struct {
	// Data is the encoded file content.
	Data []byte

	// Format is the container of Data.
	Format audio.Format
}

// NewAudio wraps data and sniffs its format.
func NewAudio(data []byte) *Audio {
	return &Audio{Data: data, Format: audio.DetectFormat(data)}
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with voice and returns the encoded audio.
	// Returns an error if the backend rejects the request or ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice Voice) (*Audio, error)

	// Voices returns the provider's voice catalogue.
	Voices(ctx context.Context) ([]Voice, error)
}
