package api_test

import (
	"bytes"
	"encoding/base64"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/MrWong99/jargonaut/internal/api"
	"github.com/MrWong99/jargonaut/internal/voice"
	"github.com/MrWong99/jargonaut/pkg/audio"
	sttmock "github.com/MrWong99/jargonaut/pkg/provider/stt/mock"
	"github.com/MrWong99/jargonaut/pkg/provider/tts"
	ttsmock "github.com/MrWong99/jargonaut/pkg/provider/tts/mock"
	"github.com/MrWong99/jargonaut/pkg/types"
)

func voiceHandler(t *testing.T, ttsP *ttsmock.Provider, sttP *sttmock.Provider) http.Handler {
	t.Helper()
	var opts []voice.Option
	if ttsP != nil {
		opts = append(opts, voice.WithTTS(ttsP, "mock"))
	}
	if sttP != nil {
		opts = append(opts, voice.WithSTT(sttP, "mock"))
	}
	return newHandler(t, nil, api.WithVoice(voice.New(opts...)))
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		result   *tts.Audio
		wantType string
		wantFile string
	}{
		{"wav", nil, "audio/wav", "attachment; filename=speech.wav"},
		{"mp3", &tts.Audio{Data: []byte{0xff, 0xfb, 0x90, 0x00}}, "audio/mpeg", "attachment; filename=speech.mp3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			prov := &ttsmock.Provider{SynthesizeResult: tc.result}
			rec := do(t, voiceHandler(t, prov, nil), "POST", "/api/voice/synthesize",
				map[string]any{"text": "Kubernetes orchestrates containers", "voice_style": "professional_male", "speed": 3})
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
			}
			if got := rec.Header().Get("Content-Type"); got != tc.wantType {
				t.Errorf("Content-Type = %q, want %q", got, tc.wantType)
			}
			if got := rec.Header().Get("Content-Disposition"); got != tc.wantFile {
				t.Errorf("Content-Disposition = %q", got)
			}
			if got := rec.Header().Get("Content-Length"); got != strconv.Itoa(rec.Body.Len()) {
				t.Errorf("Content-Length = %q, body %d bytes", got, rec.Body.Len())
			}
			v := prov.SynthesizeCalls[0].Voice
			if v.ID != "atlas" || v.Speed != voice.MaxSpeed {
				t.Errorf("voice = %+v", v)
			}
		})
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()

	if rec := do(t, voiceHandler(t, &ttsmock.Provider{}, nil), "POST", "/api/voice/synthesize", map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing text = %d", rec.Code)
	}
	if rec := do(t, voiceHandler(t, nil, nil), "POST", "/api/voice/synthesize", map[string]any{"text": "hi"}); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no tts = %d", rec.Code)
	}
	if rec := do(t, newHandler(t, nil), "POST", "/api/voice/synthesize", map[string]any{"text": "hi"}); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no voice service = %d", rec.Code)
	}
	failing := &ttsmock.Provider{SynthesizeErr: errors.New("quota exceeded")}
	if rec := do(t, voiceHandler(t, failing, nil), "POST", "/api/voice/synthesize", map[string]any{"text": "hi"}); rec.Code != http.StatusInternalServerError {
		t.Errorf("provider failure = %d", rec.Code)
	}
}

func wavBase64() string {
	return base64.StdEncoding.EncodeToString(audio.EncodeWAV(make([]byte, 320), 16000, 1))
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	prov := &sttmock.Provider{Result: types.Transcript{Text: "deploy to production", Confidence: 0.93}}
	h := voiceHandler(t, nil, prov)
	rec := do(t, h, "POST", "/api/voice/transcribe", map[string]string{"audio_data": wavBase64()})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	if body["status"] != "completed" || body["text"] != "deploy to production" || body["confidence"] != 0.93 {
		t.Errorf("body = %v", body)
	}
	if body["language_code"] != "en-US" || body["media_format"] != "wav" {
		t.Errorf("defaults = %v/%v", body["language_code"], body["media_format"])
	}
	name, _ := body["transcription_job_name"].(string)
	if name == "" {
		t.Fatal("missing job name")
	}

	// The job is listed, fetched and deleted through the job routes.
	list := decode(t, do(t, h, "GET", "/api/voice/transcription-jobs?max_results=5", nil))
	if list["count"] != float64(1) {
		t.Errorf("jobs = %v", list)
	}
	if rec := do(t, h, "GET", "/api/voice/transcription-job/"+name, nil); rec.Code != http.StatusOK || decode(t, rec)["name"] != name {
		t.Errorf("get job = %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, "DELETE", "/api/voice/transcription-job/"+name, nil); rec.Code != http.StatusOK {
		t.Errorf("delete job = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/voice/transcription-job/"+name, nil); rec.Code != http.StatusNotFound {
		t.Errorf("deleted job = %d", rec.Code)
	}
	if rec := do(t, h, "DELETE", "/api/voice/transcription-job/"+name, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d", rec.Code)
	}
}

func TestTranscribe_MediaFormatCaseInsensitive(t *testing.T) {
	t.Parallel()

	prov := &sttmock.Provider{Result: types.Transcript{Text: "ok"}}
	h := voiceHandler(t, nil, prov)
	rec := do(t, h, "POST", "/api/voice/transcribe", map[string]string{"audio_data": wavBase64(), "media_format": "WAV"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := decode(t, rec)["media_format"]; got != "wav" {
		t.Errorf("media_format = %v, want wav", got)
	}
	if opts := prov.TranscribeCalls[0].Opts; opts.MediaFormat != audio.FormatWAV {
		t.Errorf("stt options = %+v", opts)
	}
}

func TestTranscribe_Failures(t *testing.T) {
	t.Parallel()

	if rec := do(t, voiceHandler(t, nil, &sttmock.Provider{}), "POST", "/api/voice/transcribe", map[string]string{"audio_data": "!!not base64!!"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad base64 = %d", rec.Code)
	}
	if rec := do(t, voiceHandler(t, nil, nil), "POST", "/api/voice/transcribe", map[string]string{"audio_data": wavBase64()}); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no stt = %d", rec.Code)
	}

	failing := &sttmock.Provider{Err: errors.New("engine crashed")}
	rec := do(t, voiceHandler(t, nil, failing), "POST", "/api/voice/transcribe", map[string]string{"audio_data": wavBase64()})
	if rec.Code != http.StatusOK {
		t.Fatalf("recognition failure status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "failed" || body["error"] == nil {
		t.Errorf("body = %v", body)
	}
}

func TestTranscribeFile(t *testing.T) {
	t.Parallel()

	prov := &sttmock.Provider{Result: types.Transcript{Text: "hello", Confidence: 0.9}}
	h := voiceHandler(t, nil, prov)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "standup.mp3")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte{0xff, 0xfb, 0x90, 0x00, 0x01})
	_ = mw.WriteField("language_code", "de-DE")
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/api/voice/transcribe-file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	if body["media_format"] != "mp3" || body["language_code"] != "de-DE" || body["text"] != "hello" {
		t.Errorf("body = %v", body)
	}
	if opts := prov.TranscribeCalls[0].Opts; opts.MediaFormat != audio.FormatMP3 || opts.LanguageCode != "de-DE" {
		t.Errorf("stt options = %+v", opts)
	}
}

func TestTranscribeFile_MissingFile(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("language_code", "en-US")
	_ = mw.Close()
	req := httptest.NewRequest("POST", "/api/voice/transcribe-file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	voiceHandler(t, nil, &sttmock.Provider{}).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestAvailableVoices(t *testing.T) {
	t.Parallel()

	prov := &ttsmock.Provider{VoicesResult: []tts.Voice{{ID: "aurora", Name: "Aurora (warm)"}}}
	rec := do(t, voiceHandler(t, prov, nil), "GET", "/api/voice/available-voices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	voices, _ := body["voices"].([]any)
	if len(voices) != len(voice.DefaultStyles) || body["provider"] != "mock" {
		t.Fatalf("body = %v", body)
	}
	found := false
	for _, v := range voices {
		m := v.(map[string]any)
		if m["style"] == "professional_female" {
			found = m["voice_id"] == "aurora" && m["name"] == "Aurora (warm)"
		}
	}
	if !found {
		t.Errorf("professional_female not mapped to the catalogue name: %v", voices)
	}
}
