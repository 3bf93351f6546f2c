package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/jargonaut/pkg/provider/embeddings/openai"
)

func TestNew_Dimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		model   string
		dims    int
		want    int
		wantErr bool
	}{
		{name: "default model native size", model: "", want: 1536},
		{name: "shortened large", model: "text-embedding-3-large", dims: 1024, want: 1024},
		{name: "too many dims", model: "text-embedding-3-small", dims: 4096, wantErr: true},
		{name: "ada cannot shorten", model: "text-embedding-ada-002", dims: 1024, wantErr: true},
		{name: "unknown model without dims", model: "my-embedder", wantErr: true},
		{name: "unknown model with dims", model: "my-embedder", dims: 384, want: 384},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var opts []openai.Option
			if tt.dims > 0 {
				opts = append(opts, openai.WithDimensions(tt.dims))
			}
			p, err := openai.New("sk-test", tt.model, opts...)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.Dimensions() != tt.want {
				t.Errorf("Dimensions() = %d, want %d", p.Dimensions(), tt.want)
			}
		})
	}
}

func TestEmbed_SendsDimensions(t *testing.T) {
	t.Parallel()

	var gotDims float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotDims, _ = req["dimensions"].(float64)

		vals := make([]string, 4)
		for i := range vals {
			vals[i] = "0.25"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"object":"list","model":"text-embedding-3-small","data":[{"object":"embedding","index":0,"embedding":[%s]}],"usage":{"prompt_tokens":2,"total_tokens":2}}`,
			strings.Join(vals, ","))
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", "text-embedding-3-small",
		openai.WithBaseURL(srv.URL+"/v1/"),
		openai.WithDimensions(4),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vec, err := p.Embed(context.Background(), "service mesh")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 4 || vec[0] != 0.25 {
		t.Errorf("vec = %v", vec)
	}
	if gotDims != 4 {
		t.Errorf("dimensions sent = %v, want 4", gotDims)
	}
}
