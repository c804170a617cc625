package api

import (
	"net/http"
	"strconv"
	"time"
)

// handleHealth reports service and dependency status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	status := http.StatusOK
	checks := map[string]string{}

	if s.pingDB != nil {
		if err := s.pingDB(); err != nil {
			checks["database"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	if s.busHealth != nil {
		if err := s.busHealth.Health(); err != nil {
			// The event bus is advisory; its loss does not fail readiness.
			checks["events"] = "degraded"
		} else {
			checks["events"] = "ok"
		}
	}

	body := map[string]interface{}{
		"status": "ok",
		"checks": checks,
	}
	if status != http.StatusOK {
		body["status"] = "unhealthy"
	}
	s.respondJSON(w, status, body)
}

// handleLogs returns recent application log entries
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.logs == nil {
		s.respondError(w, http.StatusNotFound, "logging is not configured")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	entries := s.logs.GetRecent(limit, r.URL.Query().Get("level"), r.URL.Query().Get("source"), time.Time{}, time.Time{})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"logs": entries})
}
