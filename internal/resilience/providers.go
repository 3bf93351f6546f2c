package resilience

import (
	"context"

	"github.com/MrWong99/jargonaut/pkg/provider/llm"
	"github.com/MrWong99/jargonaut/pkg/provider/stt"
	"github.com/MrWong99/jargonaut/pkg/provider/tts"
	"github.com/MrWong99/jargonaut/pkg/types"
)

// LLM is an [llm.Provider] that fails over along a chain.
type LLM struct{ *Chain[llm.Provider] }

var _ llm.Provider = LLM{}

// Complete implements [llm.Provider].
func (l LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(ctx, l.Chain, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Model returns the primary provider's model.
func (l LLM) Model() string { return l.Primary().Model() }

// TTS is a [tts.Provider] that fails over along a chain.
type TTS struct{ *Chain[tts.Provider] }

var _ tts.Provider = TTS{}

// Synthesize implements [tts.Provider].
func (t TTS) Synthesize(ctx context.Context, text string, voice tts.Voice) (*tts.Audio, error) {
	return Call(ctx, t.Chain, func(ctx context.Context, p tts.Provider) (*tts.Audio, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// Voices implements [tts.Provider].
func (t TTS) Voices(ctx context.Context) ([]tts.Voice, error) {
	return Call(ctx, t.Chain, func(ctx context.Context, p tts.Provider) ([]tts.Voice, error) {
		return p.Voices(ctx)
	})
}

// STT is an [stt.Provider] that fails over along a chain.
type STT struct{ *Chain[stt.Provider] }

var _ stt.Provider = STT{}

// Transcribe implements [stt.Provider].
func (s STT) Transcribe(ctx context.Context, data []byte, opts stt.Options) (types.Transcript, error) {
	return Call(ctx, s.Chain, func(ctx context.Context, p stt.Provider) (types.Transcript, error) {
		return p.Transcribe(ctx, data, opts)
	})
}
