// Package whisper provides an STT provider backed by a whisper.cpp HTTP server
// (the "server" example binary shipped with whisper.cpp).
//
// Each call to Transcribe uploads the audio as multipart/form-data to
// POST {serverURL}/inference and reads the JSON {"text": "..."} response.
// whisper.cpp does not report a confidence score, so the transcript carries a
// fixed nominal confidence.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithModel("base.en"))
//	if err != nil { ... }
//	tr, err := p.Transcribe(ctx, wav, stt.Options{LanguageCode: "en-US"})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/jargonaut/pkg/audio"
	"github.com/MrWong99/jargonaut/pkg/provider/stt"
	"github.com/MrWong99/jargonaut/pkg/types"
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

const (
	defaultTimeout = 60 * time.Second

	// nominalConfidence stands in for the score whisper.cpp does not return.
	nominalConfidence = 0.9
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model name sent as the "model" form field. The
// whisper.cpp server uses the model it was started with and treats this as a
// label.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language hint used when a request carries none.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements stt.Provider using a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new whisper.cpp Provider. serverURL must be non-empty
// (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, data []byte, opts stt.Options) (types.Transcript, error) {
	format := opts.Format(data)
	lang := stt.BaseLanguage(opts.LanguageCode)
	if lang == "" {
		lang = p.language
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio."+format.Extension())
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: write audio data: %w", err)
	}

	fields := map[string]string{
		"language":        lang,
		"model":           p.model,
		"response_format": "json",
	}
	if len(opts.Keywords) > 0 {
		// whisper.cpp biases decoding towards words in the initial prompt.
		fields["prompt"] = strings.Join(opts.Keywords, ", ")
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return types.Transcript{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}
	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if result.Error != "" {
		return types.Transcript{}, fmt.Errorf("whisper: server error: %s", result.Error)
	}

	tr := types.Transcript{
		Text:       strings.TrimSpace(result.Text),
		Confidence: nominalConfidence,
		Language:   lang,
		IsFinal:    true,
	}
	if format == audio.FormatWAV {
		if info, err := audio.ParseWAV(data); err == nil {
			tr.Duration = info.Duration()
		}
	}
	return tr, nil
}
