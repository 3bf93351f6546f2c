// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., a local Whisper server,
// Deepgram, or OpenAI) and turns one encoded audio file into a transcript.
// Streaming callers in the session layer window their audio and call
// Transcribe once per window, so providers never hold per-stream state.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/jargonaut/pkg/audio"
	"github.com/MrWong99/jargonaut/pkg/types"
)

// Options carries per-request recognition hints.
type Options struct {
	// LanguageCode is the BCP-47 tag to recognise (e.g., "en-US"). Empty lets
	// the provider auto-detect, if supported.
	LanguageCode string

	// MediaFormat is the container of the submitted audio. Empty means the
	// provider sniffs the payload.
	MediaFormat audio.Format

	// Keywords are vocabulary hints, typically glossary terms, that raise the
	// recognition probability of uncommon technical words. Providers without
	// hint support ignore them.
	Keywords []string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognises speech in data. The returned transcript is always
	// final. Returns an error if the backend rejects the audio or ctx is
	// cancelled.
	Transcribe(ctx context.Context, data []byte, opts Options) (types.Transcript, error)
}

// Format returns opts.MediaFormat, or the sniffed format of data when unset.
func (o Options) Format(data []byte) audio.Format {
	if o.MediaFormat != "" {
		return o.MediaFormat
	}
	return audio.DetectFormat(data)
}

// BaseLanguage reduces a BCP-47 tag such as "en-US" to its primary subtag
// ("en"), which is what most engines expect.
func BaseLanguage(code string) string {
	for i := 0; i < len(code); i++ {
		if code[i] == '-' || code[i] == '_' {
			return code[:i]
		}
	}
	return code
}
