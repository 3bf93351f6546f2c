// Package openai provides a TTS provider backed by the OpenAI speech endpoint
// (POST /v1/audio/speech) through the official openai-go SDK.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/jargonaut/pkg/audio"
	"github.com/MrWong99/jargonaut/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const defaultModel = "gpt-4o-mini-tts"

// builtinVoices is the fixed OpenAI voice catalogue. The API has no listing
// endpoint.
var builtinVoices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

// Option configures a Provider.
type Option func(*config)

type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// WithBaseURL overrides the API base URL (must end in "/v1/").
func WithBaseURL(u string) Option { return func(c *config) { c.baseURL = u } }

// WithModel selects the speech model (e.g., "tts-1", "tts-1-hd").
func WithModel(m string) Option { return func(c *config) { c.model = m } }

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// Provider implements tts.Provider for OpenAI speech synthesis.
type Provider struct {
	client oai.Client
	model  string
}

// New constructs an OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// Synthesize implements tts.Provider. The response is always MP3.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (*tts.Audio, error) {
	id := voice.ID
	if id == "" {
		id = "alloy"
	}
	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(id),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if voice.Speed > 0 {
		params.Speed = oai.Float(voice.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("openai tts: empty audio response")
	}
	return &tts.Audio{Data: data, Format: audio.FormatMP3}, nil
}

// Voices implements tts.Provider.
func (p *Provider) Voices(context.Context) ([]tts.Voice, error) {
	out := make([]tts.Voice, len(builtinVoices))
	for i, v := range builtinVoices {
		out[i] = tts.Voice{ID: v, Name: v}
	}
	return out, nil
}
