package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/jargonaut/internal/api"
	"github.com/MrWong99/jargonaut/internal/session"
	"github.com/MrWong99/jargonaut/internal/session/mock"
)

func runManager(t *testing.T) *session.Manager {
	t.Helper()
	m := session.NewManager(&mock.Translator{}, session.WithMetrics(testMetrics(t)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m
}

func TestSessions_ListStatsNotify(t *testing.T) {
	t.Parallel()

	m := runManager(t)
	conn := &mock.Conn{}
	if err := m.Connect(context.Background(), "s-1", conn); err != nil {
		t.Fatal(err)
	}
	h := newHandler(t, nil, api.WithSessions(m))

	list := decode(t, do(t, h, "GET", "/api/sessions", nil))
	if list["count"] != float64(1) {
		t.Errorf("sessions = %v", list)
	}
	stats := decode(t, do(t, h, "GET", "/api/sessions/stats", nil))
	if stats["total_active_connections"] != float64(1) {
		t.Errorf("stats = %v", stats)
	}

	rec := do(t, h, "POST", "/api/sessions/notify", map[string]string{"message": "maintenance at 18:00", "level": "warning"})
	if rec.Code != http.StatusOK || decode(t, rec)["delivered"] != float64(1) {
		t.Fatalf("notify = %d %s", rec.Code, rec.Body)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(conn.OfType("system_notification")) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := conn.OfType("system_notification")
	if len(got) != 1 || got[0]["message"] != "maintenance at 18:00" || got[0]["level"] != "warning" {
		t.Errorf("notifications = %v", got)
	}
}

func TestSessions_NotifyValidation(t *testing.T) {
	t.Parallel()

	h := newHandler(t, nil, api.WithSessions(runManager(t)))
	for _, body := range []map[string]string{
		{"message": "  "},
		{"message": "hi", "level": "panic"},
	} {
		if rec := do(t, h, "POST", "/api/sessions/notify", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%v status = %d", body, rec.Code)
		}
	}
	if rec := do(t, newHandler(t, nil), "POST", "/api/sessions/notify", map[string]string{"message": "hi"}); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("without manager = %d", rec.Code)
	}
}

func TestSessions_WithoutManager(t *testing.T) {
	t.Parallel()

	h := newHandler(t, nil)
	if body := decode(t, do(t, h, "GET", "/api/sessions", nil)); body["count"] != float64(0) {
		t.Errorf("sessions = %v", body)
	}
	if rec := do(t, h, "GET", "/api/sessions/stats", nil); rec.Code != http.StatusOK {
		t.Errorf("stats status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/ws/s-1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("ws without manager = %d", rec.Code)
	}
}

func TestWebSocket_ThroughMiddleware(t *testing.T) {
	t.Parallel()

	m := runManager(t)
	srv := httptest.NewServer(newHandler(t, nil, api.WithSessions(m), api.WithCORSOrigins("http://localhost:3000")))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/s-ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.CloseNow()

	_, data, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"connection_established"`) {
		t.Errorf("first frame = %s", data)
	}

	if err := ws.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for pong: %v", err)
		}
		if strings.Contains(string(data), `"pong"`) {
			break
		}
	}
}
