// Package session manages the real-time client channel: the table of
// connected sessions, the broadcast groups they belong to, and the message
// state machine that turns inbound frames into translations and
// transcriptions.
//
// A [Manager] owns all session state from a single event loop started with
// [Manager.Run]. Every exported method sends a command into that loop and
// waits for its reply, so no caller ever touches the table directly. Each
// session additionally owns three bounded queues:
//
//   - an outbound queue drained by one writer goroutine that calls [Conn.Write];
//   - a task queue drained by one worker goroutine, so messages for one
//     session are handled strictly in arrival order while different sessions
//     proceed concurrently;
//   - an audio channel feeding the transcription stream while one is active.
//
// A full outbound queue or a failed write disconnects the session. A full task
// queue rejects the message with an error frame and keeps the connection open.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/jargonaut/internal/translate"
	"github.com/MrWong99/jargonaut/pkg/provider/stt"
	"github.com/MrWong99/jargonaut/pkg/types"
)

// Sentinel errors returned by [Manager] methods.
var (
	// ErrSessionExists is returned by Connect when the id is already live.
	ErrSessionExists = errors.New("session: session already connected")

	// ErrSessionNotFound is returned by Dispatch for an unknown id.
	ErrSessionNotFound = errors.New("session: session not found")

	// ErrBusy is returned by Dispatch when the session's task queue is full.
	ErrBusy = errors.New("session: session busy")

	// ErrStopped is returned when the event loop is no longer running.
	ErrStopped = errors.New("session: manager stopped")
)

// Session statuses.
const (
	StatusConnected    = "connected"
	StatusIdle         = "idle"
	StatusProcessing   = "processing"
	StatusListening    = "listening"
	StatusSynthesizing = "synthesizing"
)

// Broadcast groups.
const (
	GroupActive     = "active_sessions"
	GroupListening  = "listening"
	GroupProcessing = "processing"
)

// Default queue sizes.
const (
	DefaultSendBuffer       = 64
	DefaultTaskBuffer       = 16
	DefaultAudioBuffer      = 32
	DefaultPartialThreshold = 4096
)

// Conn is one client transport. Write must be safe to call from a single
// goroutine while Close is called from another.
type Conn interface {
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

// Translator runs the translation pipeline for one request.
type Translator interface {
	Translate(ctx context.Context, req translate.Request) (*translate.Response, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, opts stt.Options) (types.Transcript, error)
}

// Info describes one live session.
type Info struct {
	SessionID    string    `json:"session_id"`
	Status       string    `json:"status"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	Groups       []string  `json:"groups"`
}

// Stats summarises the live session table.
type Stats struct {
	TotalActive            int            `json:"total_active_connections"`
	GroupCounts            map[string]int `json:"group_counts"`
	AverageSessionDuration float64        `json:"average_session_duration"`
	OldestConnection       *time.Time     `json:"oldest_connection"`
}
