package elevenlabs_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/jargonaut/pkg/audio"
	"github.com/MrWong99/jargonaut/pkg/provider/tts"
	"github.com/MrWong99/jargonaut/pkg/provider/tts/elevenlabs"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := elevenlabs.New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestSynthesize_PostsTextAndVoiceSettings(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/text-to-speech/voice-123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("output_format"); got != "mp3_44100_128" {
			t.Errorf("output_format = %q", got)
		}
		if got := r.Header.Get("xi-api-key"); got != "secret" {
			t.Errorf("xi-api-key = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake-mp3"))
	}))
	defer srv.Close()

	p, err := elevenlabs.New("secret", elevenlabs.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := p.Synthesize(context.Background(), "Kubernetes orchestrates containers.", tts.Voice{ID: "voice-123", Speed: 1.25})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(out.Data) != "ID3fake-mp3" {
		t.Errorf("data = %q", out.Data)
	}
	if out.Format != audio.FormatMP3 {
		t.Errorf("format = %q, want mp3", out.Format)
	}

	if gotBody["text"] != "Kubernetes orchestrates containers." {
		t.Errorf("text = %v", gotBody["text"])
	}
	if gotBody["model_id"] != "eleven_multilingual_v2" {
		t.Errorf("model_id = %v", gotBody["model_id"])
	}
	vs, ok := gotBody["voice_settings"].(map[string]any)
	if !ok {
		t.Fatalf("voice_settings missing: %v", gotBody)
	}
	if vs["stability"] != 0.5 || vs["similarity_boost"] != 0.75 || vs["speed"] != 1.25 {
		t.Errorf("voice_settings = %v", vs)
	}
}

func TestSynthesize_EmptyVoiceID(t *testing.T) {
	t.Parallel()

	p, _ := elevenlabs.New("k")
	if _, err := p.Synthesize(context.Background(), "hi", tts.Voice{}); err == nil {
		t.Fatal("expected error for empty voice ID")
	}
}

func TestSynthesize_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := elevenlabs.New("k", elevenlabs.WithBaseURL(srv.URL))
	if _, err := p.Synthesize(context.Background(), "hi", tts.Voice{ID: "v"}); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"a1","name":"Aria","category":"premade"},{"voice_id":"b2","name":"Bill"}]}`))
	}))
	defer srv.Close()

	p, _ := elevenlabs.New("k", elevenlabs.WithBaseURL(srv.URL))
	voices, err := p.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	if voices[0].ID != "a1" || voices[0].Name != "Aria" {
		t.Errorf("voices[0] = %+v", voices[0])
	}
}
