package session

import (
	"encoding/json"
	"time"
)

// Message is one outbound JSON frame. The "type" key is always present; the
// remaining keys depend on the type.
type Message map[string]any

// Type returns the frame's type.
func (m Message) Type() string {
	t, _ := m["type"].(string)
	return t
}

// Notification builds a system_notification frame.
func Notification(text, level string, ts time.Time) Message {
	if level == "" {
		level = "info"
	}
	return Message{"type": "system_notification", "message": text, "level": level, "timestamp": ts}
}

func errorMessage(text string) Message {
	return Message{"type": "error", "message": text}
}

func statusMessage(status, text string) Message {
	return Message{"type": "status", "status": status, "message": text}
}

func timestamped(typ string, ts time.Time) Message {
	return Message{"type": typ, "timestamp": ts}
}

// envelope is the inbound frame shape.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type translateData struct {
	Text    string `json:"text"`
	Context string `json:"context"`
}

type voiceInputData struct {
	Text               string `json:"text"`
	Audio              string `json:"audio"`
	LanguageCode       string `json:"language_code"`
	MediaFormat        string `json:"media_format"`
	Context            string `json:"context"`
	SynthesizeResponse bool   `json:"synthesize_response"`
}

type streamData struct {
	LanguageCode string `json:"language_code"`
	MediaFormat  string `json:"media_format"`
}

type audioChunkData struct {
	Audio string `json:"audio"`
}
