package llmcorrect_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/jargonaut/internal/transcript/llmcorrect"
	"github.com/MrWong99/jargonaut/pkg/provider/llm"
	"github.com/MrWong99/jargonaut/pkg/provider/llm/mock"
)

var glossary = []string{"Kubernetes", "Service Mesh", "PostgreSQL"}

func replying(content string) *mock.Provider {
	return &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: content}}
}

func TestRefine_PromptCarriesGlossary(t *testing.T) {
	t.Parallel()

	prov := replying(`{"corrected_text": "x", "corrections": []}`)
	c := llmcorrect.New(prov, llmcorrect.WithTemperature(0.2), llmcorrect.WithMaxTokens(50))
	if _, _, err := c.Refine(context.Background(), "we need a service match", glossary); err != nil {
		t.Fatal(err)
	}

	calls := prov.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	req := calls[0].Req
	for _, term := range glossary {
		if !strings.Contains(req.SystemPrompt, "- "+term+"\n") {
			t.Errorf("system prompt missing %q", term)
		}
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "we need a service match" {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.Temperature != 0.2 || req.MaxTokens != 50 {
		t.Errorf("temperature/max tokens = %v/%d", req.Temperature, req.MaxTokens)
	}
}

func TestRefine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		reply string
		want  string
		fixes int
	}{
		{
			name:  "declared term correction",
			text:  "we need a service match in front",
			reply: `{"corrected_text": "we need a Service Mesh in front", "corrections": [{"original": "service match", "corrected": "Service Mesh", "confidence": 0.9}]}`,
			want:  "we need a Service Mesh in front",
			fixes: 1,
		},
		{
			name:  "spelled out acronym with punctuation",
			text:  "deploy it on cooper nettys.",
			reply: "Sure:\n```json\n{\"corrected_text\": \"deploy it on Kubernetes.\", \"corrections\": [{\"original\": \"cooper nettys\", \"corrected\": \"Kubernetes\", \"confidence\": 0.8}]}\n```",
			want:  "deploy it on Kubernetes.",
			fixes: 1,
		},
		{
			name:  "undeclared rewrite reverted",
			text:  "the database is slow",
			reply: `{"corrected_text": "the PostgreSQL is slow", "corrections": []}`,
			want:  "the database is slow",
		},
		{
			name:  "declared but not a glossary term",
			text:  "we use cafka for events",
			reply: `{"corrected_text": "we use Kafka for events", "corrections": [{"original": "cafka", "corrected": "Kafka", "confidence": 0.9}]}`,
			want:  "we use cafka for events",
		},
		{
			name:  "style edits to anchored words dropped",
			text:  "We need a service match, ok",
			reply: `{"corrected_text": "we need a Service Mesh, OK", "corrections": [{"original": "service match,", "corrected": "Service Mesh,", "confidence": 0.9}]}`,
			want:  "We need a Service Mesh, ok",
			fixes: 1,
		},
		{
			name:  "unparseable reply",
			text:  "service match",
			reply: "I cannot help with that",
			want:  "service match",
		},
		{
			name:  "empty corrected text",
			text:  "service match",
			reply: `{"corrected_text": "", "corrections": []}`,
			want:  "service match",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, fixes, err := llmcorrect.New(replying(tc.reply)).Refine(context.Background(), tc.text, glossary)
			if err != nil {
				t.Fatalf("Refine: %v", err)
			}
			if got != tc.want {
				t.Errorf("text = %q, want %q", got, tc.want)
			}
			if len(fixes) != tc.fixes {
				t.Fatalf("fixes = %+v, want %d", fixes, tc.fixes)
			}
			for _, f := range fixes {
				if f.Method != llmcorrect.Method || f.Confidence <= 0 || f.Confidence > 1 {
					t.Errorf("fix = %+v", f)
				}
			}
		})
	}
}

func TestRefine_SkipsModel(t *testing.T) {
	t.Parallel()

	prov := replying(`{}`)
	c := llmcorrect.New(prov)
	if got, _, _ := c.Refine(context.Background(), "   ", glossary); got != "   " {
		t.Errorf("blank text = %q", got)
	}
	if got, _, _ := c.Refine(context.Background(), "service match", nil); got != "service match" {
		t.Errorf("no glossary = %q", got)
	}
	if prov.CallCount() != 0 {
		t.Errorf("model called %d times", prov.CallCount())
	}
}

func TestRefine_ProviderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limited")
	c := llmcorrect.New(&mock.Provider{CompleteErr: boom})
	got, fixes, err := c.Refine(context.Background(), "service match", glossary)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if got != "service match" || fixes != nil {
		t.Errorf("got %q, %+v", got, fixes)
	}
}
