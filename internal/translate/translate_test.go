package translate_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/jargonaut/internal/observe"
	"github.com/MrWong99/jargonaut/internal/translate"
	analyticsmock "github.com/MrWong99/jargonaut/pkg/analytics/mock"
	"github.com/MrWong99/jargonaut/pkg/knowledge/memory"
	knowledgemock "github.com/MrWong99/jargonaut/pkg/knowledge/mock"
	embmock "github.com/MrWong99/jargonaut/pkg/provider/embeddings/mock"
	"github.com/MrWong99/jargonaut/pkg/provider/llm"
	llmmock "github.com/MrWong99/jargonaut/pkg/provider/llm/mock"
	searchmock "github.com/MrWong99/jargonaut/pkg/provider/search/mock"
	"github.com/MrWong99/jargonaut/pkg/types"
)

const validAnalysis = `Here you go:
{
  "explanation": "Microservices split an application into small services.",
  "category": "Architecture",
  "confidence": 0.85,
  "business_impact": "Teams ship independently.",
  "related_terms": ["API Gateway", 42, "Service Mesh"],
  "technical_complexity": "high"
}
Thanks.`

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func llmReturning(content string) *llmmock.Provider {
	return &llmmock.Provider{
		ModelName:        "test-model",
		CompleteResponse: &llm.CompletionResponse{Content: content},
	}
}

func TestTranslate_SearchFallbackGate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		matches    []types.KnowledgeMatch
		wantSearch bool
	}{
		{"no matches", nil, true},
		{"top exactly at threshold", []types.KnowledgeMatch{{Term: "k8s", Score: 0.8}}, false},
		{"top just below threshold", []types.KnowledgeMatch{{Term: "k8s", Score: 0.79999}}, true},
		{"exact match", []types.KnowledgeMatch{{Term: "k8s", Score: 1.0}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := &knowledgemock.Store{SearchResult: tc.matches}
			web := &searchmock.Provider{}
			o := translate.New(store,
				translate.WithSearch(web),
				translate.WithLLM(llmReturning(validAnalysis)),
				translate.WithMetrics(testMetrics(t)),
			)
			if _, err := o.Translate(context.Background(), translate.Request{Text: "k8s"}); err != nil {
				t.Fatalf("Translate: %v", err)
			}
			got := web.CallCount() == 1
			if got != tc.wantSearch {
				t.Errorf("search called = %v, want %v", got, tc.wantSearch)
			}
			if tc.wantSearch && web.Calls()[0].Opts.Depth != "advanced" {
				t.Errorf("depth = %q", web.Calls()[0].Opts.Depth)
			}
		})
	}
}

func TestTranslate_ThresholdIsHotReloadable(t *testing.T) {
	t.Parallel()

	store := &knowledgemock.Store{SearchResult: []types.KnowledgeMatch{{Term: "x", Score: 0.85}}}
	web := &searchmock.Provider{}
	o := translate.New(store, translate.WithSearch(web), translate.WithMetrics(testMetrics(t)))

	_, _ = o.Translate(context.Background(), translate.Request{Text: "x"})
	o.SetSearchFallbackThreshold(0.9)
	_, _ = o.Translate(context.Background(), translate.Request{Text: "x"})

	if web.CallCount() != 1 {
		t.Errorf("search calls = %d, want 1 (only after raising the threshold)", web.CallCount())
	}
}

func TestTranslate_UpsertTwiceKeepsOneRecord(t *testing.T) {
	t.Parallel()

	store := memory.New()
	lm := llmReturning(validAnalysis)
	o := translate.New(store, translate.WithLLM(lm), translate.WithMetrics(testMetrics(t)))
	ctx := context.Background()

	if _, err := o.Translate(ctx, translate.Request{Text: "Service Mesh", SessionID: "a"}); err != nil {
		t.Fatal(err)
	}
	lm.CompleteResponse = &llm.CompletionResponse{Content: strings.Replace(validAnalysis,
		"Microservices split an application into small services.", "updated", 1)}
	if _, err := o.Translate(ctx, translate.Request{Text: "service mesh", SessionID: "b"}); err != nil {
		t.Fatal(err)
	}

	if store.Len() != 1 {
		t.Fatalf("records = %d, want 1", store.Len())
	}
	rec, err := store.Get(ctx, "service mesh")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Explanation != "updated" {
		t.Errorf("explanation = %q", rec.Explanation)
	}
	if len(rec.Sessions) != 2 {
		t.Errorf("sessions = %v", rec.Sessions)
	}
}

func TestTranslate_DegradedAnalysis(t *testing.T) {
	t.Parallel()

	cases := map[string]*llmmock.Provider{
		"provider error":          {CompleteErr: errors.New("rate limited")},
		"unparseable output":      llmReturning("I cannot help with that"),
		"missing business impact": llmReturning(`{"explanation":"e","category":"c","confidence":0.9}`),
		"no provider":             nil,
	}
	for name, lm := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := &knowledgemock.Store{}
			opts := []translate.Option{
				translate.WithMetrics(testMetrics(t)),
				translate.WithEmbeddings(&embmock.Provider{DimensionsValue: 8}),
				translate.WithSettings(withDims(8)),
			}
			if lm != nil {
				opts = append(opts, translate.WithLLM(lm))
			}
			o := translate.New(store, opts...)

			resp, err := o.Translate(context.Background(), translate.Request{Text: "Quantum Mesh"})
			if err != nil {
				t.Fatalf("Translate: %v", err)
			}
			if resp.Category != "Technology" || resp.Confidence != 0.5 {
				t.Errorf("category = %q confidence = %v", resp.Category, resp.Confidence)
			}
			if len(resp.Sources) != 1 || resp.Sources[0] != "fallback" {
				t.Errorf("sources = %v", resp.Sources)
			}
			if !strings.HasPrefix(resp.Explanation, "'Quantum Mesh' is a technical term") {
				t.Errorf("explanation = %q", resp.Explanation)
			}
			if resp.RelatedTerms == nil || len(resp.RelatedTerms) != 0 {
				t.Errorf("related terms = %v", resp.RelatedTerms)
			}

			ups := store.Upserts()
			if len(ups) != 1 {
				t.Fatalf("upserts = %d", len(ups))
			}
			if len(ups[0].Embedding) != 8 {
				t.Fatalf("embedding len = %d, want 8", len(ups[0].Embedding))
			}
			for _, v := range ups[0].Embedding {
				if v != 0 {
					t.Fatalf("embedding = %v, want zeros", ups[0].Embedding)
				}
			}
		})
	}
}

func withDims(n int) translate.Settings {
	s := translate.DefaultSettings()
	s.EmbeddingDimensions = n
	return s
}

func TestTranslate_EmbeddingFailureZeroesOnlyEmbedding(t *testing.T) {
	t.Parallel()

	store := &knowledgemock.Store{}
	o := translate.New(store,
		translate.WithLLM(llmReturning(validAnalysis)),
		translate.WithEmbeddings(&embmock.Provider{DimensionsValue: 3}), // wrong length
		translate.WithSettings(withDims(4)),
		translate.WithMetrics(testMetrics(t)),
	)
	resp, err := o.Translate(context.Background(), translate.Request{Text: "microservices"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Category != "Architecture" {
		t.Errorf("analysis should survive embedding failure, got %q", resp.Category)
	}
	if emb := store.Upserts()[0].Embedding; len(emb) != 4 || emb[0] != 0 {
		t.Errorf("embedding = %v", emb)
	}
}

func TestTranslate_ConfidenceClamped(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]float64{"1.7": 1.0, "-0.2": 0.0} {
		content := strings.Replace(validAnalysis, "0.85", raw, 1)
		o := translate.New(&knowledgemock.Store{}, translate.WithLLM(llmReturning(content)), translate.WithMetrics(testMetrics(t)))
		resp, err := o.Translate(context.Background(), translate.Request{Text: "x"})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Confidence != want {
			t.Errorf("confidence %s -> %v, want %v", raw, resp.Confidence, want)
		}
	}
}

func TestTranslate_AnalyticsFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	al := &analyticsmock.Logger{Err: errors.New("clickhouse gone")}
	o := translate.New(&knowledgemock.Store{},
		translate.WithLLM(llmReturning(validAnalysis)),
		translate.WithAnalytics(al),
		translate.WithMetrics(testMetrics(t)),
	)
	resp, err := o.Translate(context.Background(), translate.Request{Text: "x", UserAgent: "curl"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if resp.Explanation == "" {
		t.Error("empty explanation")
	}
	evs := al.Logged()
	if len(evs) != 1 || !evs[0].Success || evs[0].UserAgent != "curl" {
		t.Errorf("events = %+v", evs)
	}
}

func TestTranslate_PersistFailure(t *testing.T) {
	t.Parallel()

	dbErr := errors.New("connection reset")
	al := &analyticsmock.Logger{}
	o := translate.New(&knowledgemock.Store{UpsertErr: dbErr},
		translate.WithLLM(llmReturning(validAnalysis)),
		translate.WithAnalytics(al),
		translate.WithMetrics(testMetrics(t)),
	)
	_, err := o.Translate(context.Background(), translate.Request{Text: "x"})

	var oe *translate.OrchestrationError
	if !errors.As(err, &oe) || oe.Stage != translate.StagePersist {
		t.Fatalf("err = %v, want persist OrchestrationError", err)
	}
	if !errors.Is(err, dbErr) {
		t.Error("OrchestrationError must unwrap to the store error")
	}
	evs := al.Logged()
	if len(evs) != 1 || evs[0].Success || evs[0].ErrorMessage == "" {
		t.Errorf("events = %+v, want one failed event", evs)
	}
}

func TestTranslate_Validation(t *testing.T) {
	t.Parallel()

	store := &knowledgemock.Store{}
	s := translate.DefaultSettings()
	s.MaxTextLength = 5
	o := translate.New(store, translate.WithSettings(s), translate.WithMetrics(testMetrics(t)))

	for _, text := range []string{"", "   ", "toolong"} {
		if _, err := o.Translate(context.Background(), translate.Request{Text: text}); !errors.Is(err, translate.ErrInvalidRequest) {
			t.Errorf("Translate(%q) err = %v, want ErrInvalidRequest", text, err)
		}
	}
	if len(store.Searches()) != 0 || len(store.Upserts()) != 0 {
		t.Error("validation failure must not touch the store")
	}
	if _, err := o.Translate(context.Background(), translate.Request{Text: "äöüß"}); err != nil {
		t.Errorf("4 runes should pass a 5 rune limit: %v", err)
	}
}

func TestTranslate_GeneratesSessionIDOnce(t *testing.T) {
	t.Parallel()

	store := &knowledgemock.Store{}
	al := &analyticsmock.Logger{}
	o := translate.New(store, translate.WithAnalytics(al), translate.WithMetrics(testMetrics(t)))

	resp, err := o.Translate(context.Background(), translate.Request{Text: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(resp.SessionID); err != nil {
		t.Fatalf("session id %q is not a UUID", resp.SessionID)
	}
	if got := store.Upserts()[0].Sessions; len(got) != 1 || got[0] != resp.SessionID {
		t.Errorf("stored sessions = %v, want [%s]", got, resp.SessionID)
	}
	if al.Logged()[0].SessionID != resp.SessionID {
		t.Error("analytics saw a different session id")
	}
}

func TestTranslate_EndToEndWithEmptyKnowledgeBase(t *testing.T) {
	t.Parallel()

	store := memory.New()
	web := &searchmock.Provider{Results: []types.WebResult{
		{Title: "Microservices Guide", Snippet: "Small independently deployable services.", Score: 0.9},
	}}
	var prompt string
	lm := &llmmock.Provider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			prompt = req.Messages[0].Content
			if req.Temperature != 0.7 || req.MaxTokens != 4000 {
				t.Errorf("temperature = %v max tokens = %d", req.Temperature, req.MaxTokens)
			}
			return &llm.CompletionResponse{Content: validAnalysis}, nil
		},
	}
	o := translate.New(store,
		translate.WithSearch(web),
		translate.WithLLM(lm),
		translate.WithEmbeddings(&embmock.Provider{DimensionsValue: 1024}),
		translate.WithMetrics(testMetrics(t)),
	)

	resp, err := o.Translate(context.Background(), translate.Request{Text: "microservices architecture"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if web.CallCount() != 1 {
		t.Errorf("search calls = %d", web.CallCount())
	}
	if !strings.Contains(prompt, "CURRENT WEB CONTEXT:\n1. Microservices Guide: Small independently deployable services.") {
		t.Errorf("prompt lacks web context:\n%s", prompt)
	}
	if resp.Explanation == "" || resp.Confidence < 0.7 || resp.Confidence > 0.98 {
		t.Errorf("response = %+v", resp)
	}
	if want := []string{"web_search", "ai_analysis"}; strings.Join(resp.Sources, ",") != strings.Join(want, ",") {
		t.Errorf("sources = %v, want %v", resp.Sources, want)
	}
	if len(resp.RelatedTerms) != 2 {
		t.Errorf("related terms = %v (non-strings dropped)", resp.RelatedTerms)
	}
	if resp.TechnicalComplexity != "high" || resp.StrategicValue != "tactical" {
		t.Errorf("supplementary = %q %q", resp.TechnicalComplexity, resp.StrategicValue)
	}
	if _, err := store.Get(context.Background(), "Microservices Architecture"); err != nil {
		t.Errorf("record not stored: %v", err)
	}
}

func TestTranslate_EmbedsOncePerTranslation(t *testing.T) {
	t.Parallel()

	emb := &embmock.Provider{DimensionsValue: 1024}
	store := memory.New(memory.WithEmbedder(emb))
	o := translate.New(store,
		translate.WithLLM(llmReturning(validAnalysis)),
		translate.WithEmbeddings(emb),
		translate.WithMetrics(testMetrics(t)),
	)

	for i := range 2 {
		if _, err := o.Translate(context.Background(), translate.Request{Text: "Service Mesh"}); err != nil {
			t.Fatalf("Translate #%d: %v", i+1, err)
		}
		if n := emb.CallCount(); n != i+1 {
			t.Fatalf("embed calls after translation #%d = %d, want %d", i+1, n, i+1)
		}
	}
}

func TestTranslate_LookupFailureDegrades(t *testing.T) {
	t.Parallel()

	web := &searchmock.Provider{Err: errors.New("tavily 500")}
	o := translate.New(&knowledgemock.Store{SearchErr: errors.New("db timeout")},
		translate.WithSearch(web),
		translate.WithLLM(llmReturning(validAnalysis)),
		translate.WithMetrics(testMetrics(t)),
	)
	resp, err := o.Translate(context.Background(), translate.Request{Text: "x"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if web.CallCount() != 1 {
		t.Error("lookup failure should count as no matches and open the gate")
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "ai_analysis" {
		t.Errorf("sources = %v", resp.Sources)
	}
}
