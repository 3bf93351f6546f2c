package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/jargonaut/internal/observe"
	"github.com/MrWong99/jargonaut/internal/translate"
	"github.com/MrWong99/jargonaut/pkg/audio"
	"github.com/MrWong99/jargonaut/pkg/provider/stt"
	"github.com/MrWong99/jargonaut/pkg/types"
)

var errNoTranscriber = errors.New("no speech-to-text provider configured")

// worker handles the tasks of one session. It is only used from that
// session's work goroutine.
type worker struct {
	m      *Manager
	id     string
	quit   <-chan struct{}
	stream *stream
}

func (w *worker) send(ctx context.Context, msg Message) {
	w.m.SendPersonal(ctx, w.id, msg)
}

func (w *worker) fail(ctx context.Context, text string) {
	w.send(ctx, errorMessage(text))
}

func (w *worker) handle(ctx context.Context, tk task) {
	ctx = observe.WithSession(ctx, w.id)
	log := observe.Logger(ctx).With("type", tk.typ)
	switch tk.typ {
	case "translate":
		var d translateData
		if err := decodeData(tk.data, &d); err != nil {
			w.fail(ctx, "Invalid message format")
			return
		}
		w.translate(ctx, d.Text, d.Context)

	case "voice_input":
		var d voiceInputData
		if err := decodeData(tk.data, &d); err != nil {
			w.fail(ctx, "Invalid message format")
			return
		}
		w.voiceInput(ctx, d)

	case "start_transcription":
		var d streamData
		if err := decodeData(tk.data, &d); err != nil {
			w.fail(ctx, "Invalid message format")
			return
		}
		w.startStream(ctx, d)

	case "audio_chunk":
		var d audioChunkData
		if err := decodeData(tk.data, &d); err != nil {
			w.fail(ctx, "Invalid message format")
			return
		}
		chunk, err := base64.StdEncoding.DecodeString(d.Audio)
		if err != nil {
			w.fail(ctx, fmt.Sprintf("Invalid audio data: %v", err))
			return
		}
		if w.stream == nil {
			log.Debug("session: audio chunk without active transcription, ignoring", "bytes", len(chunk))
			return
		}
		select {
		case w.stream.audio <- chunk:
		case <-w.quit:
		}

	case "stop_transcription":
		w.stopStream(ctx)

	case "ping":
		w.send(ctx, timestamped("pong", w.m.now().UTC()))

	default:
		log.Debug("session: ignoring unknown message type")
	}
}

// decodeData decodes a frame's data object. Missing data decodes to the zero
// value.
func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func (w *worker) translate(ctx context.Context, text, businessContext string) {
	if strings.TrimSpace(text) == "" {
		w.fail(ctx, "Text is required for translation")
		return
	}
	w.m.SetStatus(ctx, w.id, StatusProcessing)
	w.send(ctx, statusMessage(StatusProcessing, "Analyzing technical terminology..."))

	resp, err := w.m.translator.Translate(ctx, translate.Request{
		Text:            text,
		SessionID:       w.id,
		BusinessContext: businessContext,
	})
	if err != nil {
		observe.Logger(ctx).Warn("session: translation failed", "err", err)
		w.fail(ctx, fmt.Sprintf("Translation failed: %v", err))
	} else {
		w.send(ctx, Message{"type": "translation_complete", "data": resp})
	}
	w.m.SetStatus(ctx, w.id, StatusIdle)
}

func (w *worker) voiceInput(ctx context.Context, d voiceInputData) {
	text := d.Text
	if d.Audio != "" {
		data, err := base64.StdEncoding.DecodeString(d.Audio)
		if err != nil {
			w.fail(ctx, fmt.Sprintf("Invalid audio data: %v", err))
			return
		}
		tr, err := w.transcribe(ctx, data, d.LanguageCode, d.MediaFormat)
		if err != nil {
			w.fail(ctx, fmt.Sprintf("Transcription failed: %v", err))
			return
		}
		w.send(ctx, Message{"type": "transcription_complete", "text": tr.Text, "confidence": tr.Confidence})
		text = tr.Text
	}

	w.translate(ctx, text, d.Context)

	if d.SynthesizeResponse {
		w.send(ctx, statusMessage(StatusSynthesizing, "Generating voice response..."))
	}
}

func (w *worker) transcribe(ctx context.Context, data []byte, lang, format string) (types.Transcript, error) {
	if w.m.transcriber == nil {
		return types.Transcript{}, errNoTranscriber
	}
	return w.m.transcriber.Transcribe(ctx, data, stt.Options{
		LanguageCode: lang,
		MediaFormat:  audio.Format(strings.ToLower(format)),
	})
}

// ── Transcription stream ──────────────────────────────────────────────────────

// stream accumulates audio chunks and emits a partial transcription each time
// the buffer exceeds the partial threshold.
type stream struct {
	audio  chan []byte
	done   chan struct{}
	lang   string
	format string
}

func (w *worker) startStream(ctx context.Context, d streamData) {
	if w.stream == nil {
		if w.m.transcriber == nil {
			w.fail(ctx, fmt.Sprintf("Transcription failed: %v", errNoTranscriber))
			return
		}
		st := &stream{
			audio:  make(chan []byte, w.m.audioBuffer),
			done:   make(chan struct{}),
			lang:   d.LanguageCode,
			format: d.MediaFormat,
		}
		w.stream = st
		w.m.workers.Add(1)
		go w.runStream(ctx, st)
		w.m.SetStatus(ctx, w.id, StatusListening)
	}
	w.send(ctx, Message{"type": "transcription_started", "session_id": w.id})
}

// stopStream closes the audio channel, waits for the final flush and returns
// the session to idle.
func (w *worker) stopStream(ctx context.Context) {
	if w.stream == nil {
		return
	}
	w.closeStream()
	w.m.SetStatus(ctx, w.id, StatusIdle)
}

func (w *worker) closeStream() {
	if w.stream == nil {
		return
	}
	close(w.stream.audio)
	<-w.stream.done
	w.stream = nil
}

func (w *worker) runStream(ctx context.Context, st *stream) {
	defer w.m.workers.Done()
	defer close(st.done)

	var buf []byte
	emit := func(final bool) {
		data := buf
		buf = nil
		tr, err := w.transcribe(ctx, data, st.lang, st.format)
		if err != nil {
			observe.Logger(ctx).Warn("session: partial transcription failed", "err", err)
			w.fail(ctx, fmt.Sprintf("Transcription failed: %v", err))
			return
		}
		w.send(ctx, Message{
			"type":       "partial_transcription",
			"text":       tr.Text,
			"confidence": tr.Confidence,
			"is_final":   final,
		})
	}

	quit := func() bool {
		select {
		case <-w.quit:
			return true
		default:
			return false
		}
	}

	// After quit the remaining chunks are drained without transcribing.
	for chunk := range st.audio {
		if quit() {
			buf = nil
			continue
		}
		buf = append(buf, chunk...)
		if len(buf) > w.m.partialThreshold {
			emit(false)
		}
	}

	if len(buf) > 0 && !quit() {
		emit(true)
	}
}
