package api

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/jargonaut/internal/observe"
	"github.com/MrWong99/jargonaut/internal/voice"
	"github.com/MrWong99/jargonaut/pkg/audio"
	"github.com/MrWong99/jargonaut/pkg/provider/stt"
)

// maxUploadBytes caps /api/voice/transcribe-file uploads.
const maxUploadBytes = 10 << 20

const (
	defaultMediaFormat = audio.FormatWAV
	defaultJobList     = 10
)

type synthesizeRequest struct {
	Text       string  `json:"text"`
	VoiceStyle string  `json:"voice_style"`
	Speed      float64 `json:"speed"`
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	if s.voice == nil || !s.voice.HasTTS() {
		writeError(w, http.StatusServiceUnavailable, "Voice synthesis service not available")
		return
	}
	if req.VoiceStyle == "" {
		req.VoiceStyle = voice.DefaultStyle
	}

	speech, err := s.voice.Synthesize(r.Context(), req.Text, req.VoiceStyle, req.Speed)
	switch {
	case errors.Is(err, voice.ErrEmptyText), errors.Is(err, voice.ErrTextTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		observe.Logger(r.Context()).Error("api: speech synthesis failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Speech synthesis failed: "+err.Error())
		return
	}

	h := w.Header()
	h.Set("Content-Type", speech.ContentType())
	h.Set("Content-Disposition", "attachment; filename="+speech.Filename())
	h.Set("Content-Length", strconv.Itoa(len(speech.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(speech.Data)
}

type transcribeRequest struct {
	AudioData    string `json:"audio_data"`
	LanguageCode string `json:"language_code"`
	MediaFormat  string `json:"media_format"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AudioData == "" {
		writeError(w, http.StatusBadRequest, "audio_data is required")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid base64 audio data")
		return
	}
	format := audio.Format(strings.ToLower(req.MediaFormat))
	if format == "" {
		format = defaultMediaFormat
	}
	s.transcribe(w, r, data, req.LanguageCode, format)
}

func (s *Server) handleTranscribeFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	if hdr.Size > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds 10 MiB")
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return
	}
	if len(data) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds 10 MiB")
		return
	}

	format := audio.Format(strings.ToLower(r.FormValue("media_format")))
	if format == "" {
		format = audio.FormatFromFilename(hdr.Filename)
	}
	s.transcribe(w, r, data, r.FormValue("language_code"), format)
}

// transcribe runs one transcription job. Recognition failures are reported
// in a 200 body with status "failed", matching the job record.
func (s *Server) transcribe(w http.ResponseWriter, r *http.Request, data []byte, lang string, format audio.Format) {
	if s.voice == nil || !s.voice.HasSTT() {
		writeError(w, http.StatusServiceUnavailable, "Speech-to-text service not available")
		return
	}
	if lang == "" {
		lang = voice.DefaultLanguage
	}

	job, err := s.voice.TranscribeJob(r.Context(), data, stt.Options{LanguageCode: lang, MediaFormat: format})
	if errors.Is(err, voice.ErrEmptyAudio) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		observe.Logger(r.Context()).Warn("api: transcription failed", "job", job.Name, "err", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"error":                  "Transcription failed: " + err.Error(),
			"status":                 voice.JobFailed,
			"transcription_job_name": job.Name,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":                   job.Text,
		"confidence":             job.Confidence,
		"language_code":          job.LanguageCode,
		"media_format":           job.MediaFormat,
		"transcription_job_name": job.Name,
		"status":                 job.Status,
		"corrections":            job.Corrections,
	})
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if s.voice == nil {
		writeError(w, http.StatusServiceUnavailable, "Voice synthesis service not available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"voices":   s.voice.Voices(r.Context()),
		"provider": s.voice.TTSProvider(),
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.voice == nil {
		writeError(w, http.StatusServiceUnavailable, "Speech-to-text service not available")
		return
	}
	jobs := s.voice.Jobs(queryInt(r, "max_results", defaultJobList))
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if s.voice == nil {
		writeError(w, http.StatusServiceUnavailable, "Speech-to-text service not available")
		return
	}
	job, err := s.voice.Job(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if s.voice == nil {
		writeError(w, http.StatusServiceUnavailable, "Speech-to-text service not available")
		return
	}
	name := r.PathValue("name")
	if err := s.voice.DeleteJob(name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "transcription_job_name": name})
}
