// Package wsconn serves the session channel over WebSockets using
// github.com/coder/websocket.
//
// [Handler] upgrades GET /ws/{session_id}, attaches the connection to a
// [Sessions] implementation (normally *session.Manager) and pumps every inbound
// text frame into the returned handle until the peer goes away. The handle
// keeps a socket the server already dropped from reaching a reconnected
// session with the same id. A failing Dispatch never
// closes the socket; only a read error or an unknown session ends the loop.
package wsconn

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/MrWong99/jargonaut/internal/session"
)

// DefaultReadLimit caps a single inbound frame. Audio arrives base64 encoded
// inside JSON, so the limit is well above the library default of 32 KiB.
const DefaultReadLimit = 16 << 20

// Sessions is the subset of *session.Manager the handler needs.
type Sessions interface {
	Attach(ctx context.Context, id string, conn session.Conn) (*session.Handle, error)
}

// Conn adapts a *websocket.Conn to [session.Conn].
type Conn struct {
	ws *websocket.Conn
}

// Write sends data as one text frame.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// Close performs the closing handshake with a normal closure status.
func (c *Conn) Close(reason string) error {
	return c.ws.Close(websocket.StatusNormalClosure, reason)
}

var _ session.Conn = (*Conn)(nil)

// Option configures [Handler].
type Option func(*handler)

// WithOriginPatterns sets the host patterns allowed to open a socket from a
// browser. See [websocket.AcceptOptions].
func WithOriginPatterns(patterns ...string) Option {
	return func(h *handler) { h.origins = patterns }
}

// WithReadLimit overrides [DefaultReadLimit].
func WithReadLimit(n int64) Option {
	return func(h *handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

type handler struct {
	sessions  Sessions
	origins   []string
	readLimit int64
}

// Handler returns an http.Handler for a route carrying a {session_id} path
// wildcard.
func Handler(s Sessions, opts ...Option) http.Handler {
	h := &handler{sessions: s, readLimit: DefaultReadLimit}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	if id == "" {
		http.Error(w, `{"error":"session id is required"}`, http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("wsconn: accept failed", "session_id", id, "err", err)
		return
	}
	ws.SetReadLimit(h.readLimit)

	ctx := r.Context()
	sess, err := h.sessions.Attach(ctx, id, &Conn{ws: ws})
	if err != nil {
		slog.Warn("wsconn: connect rejected", "session_id", id, "err", err)
		status := websocket.StatusInternalError
		if errors.Is(err, session.ErrSessionExists) {
			status = websocket.StatusPolicyViolation
		}
		_ = ws.Close(status, "session unavailable")
		return
	}
	defer sess.Disconnect(context.WithoutCancel(ctx))

	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				slog.Debug("wsconn: peer closed", "session_id", id, "status", status)
			} else {
				slog.Debug("wsconn: read failed", "session_id", id, "err", err)
			}
			return
		}
		if typ != websocket.MessageText {
			slog.Debug("wsconn: ignoring binary frame", "session_id", id, "bytes", len(data))
			continue
		}
		if err := sess.Dispatch(ctx, data); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrStopped) {
				return
			}
			slog.Debug("wsconn: dispatch failed", "session_id", id, "err", err)
		}
	}
}
