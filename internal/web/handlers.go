package web

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/tablestore/internal/logging"
)

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{Status: "ok", Timestamp: time.Now().UTC()})
}

// handleReady checks the database and reports upload load.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
		"database":  "ok",
		"uploads":   s.service.UploadLimiter().Status(),
	}
	status := http.StatusOK

	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			resp["status"] = "not_ready"
			resp["database"] = "unreachable"
			status = http.StatusServiceUnavailable
			logging.FromContext(r.Context()).Warn("readiness check failed", "error", err)
		}
	}
	writeJSONStatus(w, status, resp)
}
