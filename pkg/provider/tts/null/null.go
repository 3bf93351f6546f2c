// Package null provides a TTS provider that renders silence. It is selected
// with providers.tts.name: null for development setups without a speech
// backend, and it is never used as an implicit fallback.
package null

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/jargonaut/pkg/audio"
	"github.com/MrWong99/jargonaut/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	sampleRate  = 16000
	perRune     = 50 * time.Millisecond
	minDuration = 250 * time.Millisecond
	maxDuration = 30 * time.Second
)

// Provider synthesises a silent mono WAV whose length grows with the text.
type Provider struct{}

// New returns a null Provider.
func New() *Provider { return &Provider{} }

// Synthesize implements tts.Provider.
func (*Provider) Synthesize(_ context.Context, text string, _ tts.Voice) (*tts.Audio, error) {
	return &tts.Audio{Data: audio.Silence(Duration(text), sampleRate), Format: audio.FormatWAV}, nil
}

// Voices implements tts.Provider.
func (*Provider) Voices(context.Context) ([]tts.Voice, error) {
	return []tts.Voice{{ID: "silence", Name: "Silence"}}, nil
}

// Duration returns the playback length Synthesize produces for text.
func Duration(text string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(text)) * perRune
	return min(max(d, minDuration), maxDuration)
}
