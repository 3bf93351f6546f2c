// Package openai provides an STT provider backed by the OpenAI transcription
// endpoint (POST /v1/audio/transcriptions) through the openai-go SDK.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/jargonaut/pkg/provider/stt"
	"github.com/MrWong99/jargonaut/pkg/types"
)

var _ stt.Provider = (*Provider)(nil)

const (
	defaultModel = "whisper-1"

	// nominalConfidence is reported because the JSON response carries no score.
	nominalConfidence = 0.9
)

// Option configures a Provider.
type Option func(*config)

type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// WithBaseURL overrides the API base URL (must end in "/v1/").
func WithBaseURL(u string) Option { return func(c *config) { c.baseURL = u } }

// WithModel selects the transcription model (e.g., "gpt-4o-mini-transcribe").
func WithModel(m string) Option { return func(c *config) { c.model = m } }

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// Provider implements stt.Provider for OpenAI transcription.
type Provider struct {
	client oai.Client
	model  string
}

// New constructs an OpenAI STT Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
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

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, data []byte, opts stt.Options) (types.Transcript, error) {
	format := opts.Format(data)
	lang := stt.BaseLanguage(opts.LanguageCode)

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(p.model),
		File:  oai.File(bytes.NewReader(data), "audio."+format.Extension(), format.ContentType()),
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}
	if len(opts.Keywords) > 0 {
		params.Prompt = oai.String(strings.Join(opts.Keywords, ", "))
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("openai stt: transcription: %w", err)
	}
	return types.Transcript{
		Text:       strings.TrimSpace(resp.Text),
		Confidence: nominalConfidence,
		Language:   lang,
		IsFinal:    true,
	}, nil
}
