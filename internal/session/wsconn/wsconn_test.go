package wsconn_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/jargonaut/internal/session"
	"github.com/MrWong99/jargonaut/internal/session/mock"
	"github.com/MrWong99/jargonaut/internal/session/wsconn"
)

func startServer(t *testing.T) (*session.Manager, string) {
	t.Helper()
	m := session.NewManager(&mock.Translator{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()

	mux := http.NewServeMux()
	mux.Handle("GET /ws/{session_id}", wsconn.Handler(m))
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return m, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readType(t *testing.T, ctx context.Context, c *websocket.Conn, want string) map[string]any {
	t.Helper()
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			t.Fatalf("read waiting for %s: %v", want, err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg["type"] == want {
			return msg
		}
	}
}

func TestHandler_RoundTrip(t *testing.T) {
	t.Parallel()
	m, base := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, base+"/ws/alpha", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if got := readType(t, ctx, c, "connection_established"); got["session_id"] != "alpha" {
		t.Errorf("welcome = %v", got)
	}

	// A broken frame is answered without closing the socket.
	if err := c.Write(ctx, websocket.MessageText, []byte("{oops")); err != nil {
		t.Fatal(err)
	}
	readType(t, ctx, c, "error")

	if err := c.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	readType(t, ctx, c, "pong")

	if n := len(m.ActiveSessions(ctx)); n != 1 {
		t.Fatalf("active = %d, want 1", n)
	}

	_ = c.Close(websocket.StatusNormalClosure, "bye")
	deadline := time.Now().Add(2 * time.Second)
	for len(m.ActiveSessions(ctx)) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session still registered after client close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandler_DuplicateSessionRejected(t *testing.T) {
	t.Parallel()
	_, base := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, _, err := websocket.Dial(ctx, base+"/ws/dup", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer first.CloseNow()
	readType(t, ctx, first, "connection_established")

	second, _, err := websocket.Dial(ctx, base+"/ws/dup", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer second.CloseNow()

	_, _, err = second.Read(ctx)
	if status := websocket.CloseStatus(err); status != websocket.StatusPolicyViolation {
		t.Errorf("close status = %v (err %v), want policy violation", status, err)
	}
}

func TestHandler_StaleSocketCannotEvictSuccessor(t *testing.T) {
	t.Parallel()
	m := session.NewManager(&mock.Translator{})
	runCtx, stop := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = m.Run(runCtx)
	}()

	exited := make(chan struct{}, 2)
	ws := wsconn.Handler(m)
	mux := http.NewServeMux()
	mux.Handle("GET /ws/{session_id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() { exited <- struct{}{} }()
		ws.ServeHTTP(w, r)
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		stop()
		<-stopped
	})
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The first client never reads, so the server side close handshake stalls.
	old, _, err := websocket.Dial(ctx, base+"/ws/a", nil)
	if err != nil {
		t.Fatalf("dial old: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(m.ActiveSessions(ctx)) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("first connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Disconnect(ctx, "a")

	next, _, err := websocket.Dial(ctx, base+"/ws/a", nil)
	if err != nil {
		t.Fatalf("dial successor: %v", err)
	}
	defer next.CloseNow()
	readType(t, ctx, next, "connection_established")

	// Frames still arriving on the dropped socket must not reach the successor.
	_ = old.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`))
	old.CloseNow()

	select {
	case <-exited:
	case <-ctx.Done():
		t.Fatal("old handler did not exit")
	}

	if n := len(m.ActiveSessions(ctx)); n != 1 {
		t.Fatalf("active after old handler exit = %d, want 1", n)
	}
	if err := next.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	readType(t, ctx, next, "pong")
}
