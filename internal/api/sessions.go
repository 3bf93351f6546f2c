package api

import (
	"net/http"
	"strings"

	"github.com/MrWong99/jargonaut/internal/session"
)

// Notification levels accepted by /api/sessions/notify.
var notifyLevels = map[string]bool{"info": true, "warning": true, "error": true, "success": true}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	list := []session.Info{}
	if s.sessions != nil {
		list = append(list, s.sessions.ActiveSessions(r.Context())...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list, "count": len(list)})
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSON(w, http.StatusOK, session.Stats{GroupCounts: map[string]int{}})
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Stats(r.Context()))
}

type notifyRequest struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.Level == "" {
		req.Level = "info"
	}
	if !notifyLevels[req.Level] {
		writeError(w, http.StatusBadRequest, "level must be one of info, warning, error, success")
		return
	}
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "Session manager not available")
		return
	}
	n := s.sessions.SendSystemNotification(r.Context(), req.Message, req.Level)
	writeJSON(w, http.StatusOK, map[string]any{"delivered": n, "level": req.Level})
}
