// Package llmcorrect asks a language model to repair technical terms that the
// phonetic pass could not resolve, such as acronyms spelled out letter by
// letter ("kay eight ess") or product names split across unrelated words.
//
// The model returns the corrected text plus the substitutions it claims to
// have made. Only the declared substitutions are applied to the original text,
// and only when the replacement is a glossary term that also appears in the
// model's corrected text. Any other edit the model made is discarded.
package llmcorrect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/jargonaut/internal/transcript"
	"github.com/MrWong99/jargonaut/pkg/provider/llm"
	"github.com/MrWong99/jargonaut/pkg/types"
)

// Method is recorded on every correction this package produces.
const Method = "llm"

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 1000
)

const systemPrompt = `You correct speech-to-text transcripts of business conversations about software and infrastructure.

Fix ONLY words that are misheard versions of the technical terms listed below. Leave every other word, the grammar and the punctuation exactly as they are. If you are unsure, change nothing.

Known terms:
%s
Respond with a single JSON object and nothing else:
{"corrected_text": "<full transcript>", "corrections": [{"original": "<misheard words>", "corrected": "<known term>", "confidence": <0.0-1.0>}]}`

// Option configures a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the sampling temperature. Default 0.1.
func WithTemperature(t float64) Option {
	return func(c *Corrector) { c.temperature = t }
}

// WithMaxTokens caps the completion length. Default 1000.
func WithMaxTokens(n int) Option {
	return func(c *Corrector) { c.maxTokens = n }
}

// Corrector is safe for concurrent use.
type Corrector struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

// New returns a Corrector backed by p.
func New(p llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{llm: p, temperature: defaultTemperature, maxTokens: defaultMaxTokens}
	for _, o := range opts {
		o(c)
	}
	return c
}

type reply struct {
	CorrectedText string `json:"corrected_text"`
	Corrections   []struct {
		Original   string  `json:"original"`
		Corrected  string  `json:"corrected"`
		Confidence float64 `json:"confidence"`
	} `json:"corrections"`
}

// Refine returns text with verified term corrections applied. An empty
// glossary or text skips the model. A reply that cannot be parsed leaves the
// text unchanged without an error; provider failures are returned.
func (c *Corrector) Refine(ctx context.Context, text string, glossary []string) (string, []transcript.Correction, error) {
	if strings.TrimSpace(text) == "" || len(glossary) == 0 {
		return text, nil, nil
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(systemPrompt, bulletList(glossary)),
		Messages:     []types.Message{{Role: "user", Content: text}},
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
	})
	if err != nil {
		return text, nil, fmt.Errorf("llmcorrect: complete: %w", err)
	}
	if resp == nil {
		return text, nil, nil
	}
	r, err := parseReply(resp.Content)
	if err != nil || r.CorrectedText == "" {
		return text, nil, nil
	}

	known := make(map[string]struct{}, len(glossary))
	for _, g := range glossary {
		known[normalize(g)] = struct{}{}
	}
	decls := make([]declaration, 0, len(r.Corrections))
	for _, d := range r.Corrections {
		if strings.EqualFold(d.Original, d.Corrected) {
			continue
		}
		decls = append(decls, declaration{
			from:       tokens(d.Original),
			to:         trimPunct(strings.TrimSpace(d.Corrected)),
			confidence: min(max(d.Confidence, 0), 1),
		})
	}
	out, fixes := apply(text, r.CorrectedText, decls, known)
	return out, fixes, nil
}

func parseReply(content string) (reply, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return reply{}, errors.New("no JSON object in reply")
	}
	var r reply
	if err := json.Unmarshal([]byte(content[start:end+1]), &r); err != nil {
		return reply{}, err
	}
	return r, nil
}

func bulletList(terms []string) string {
	var sb strings.Builder
	for _, t := range terms {
		sb.WriteString("- ")
		sb.WriteString(t)
		sb.WriteByte('\n')
	}
	return sb.String()
}
