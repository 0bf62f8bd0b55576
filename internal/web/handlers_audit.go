package web

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/tablestore/internal/core"
)

// handleAuditLog lists audit entries, newest first. Query parameters:
// action, resourceId, since (RFC 3339 or YYYY-MM-DD), limit, offset.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := core.AuditFilter{
		Action:     core.AuditAction(q.Get("action")),
		ResourceID: q.Get("resourceId"),
		Limit:      parseIntParam(r, "limit", 0),
		Offset:     parseIntParam(r, "offset", 0),
	}
	if since := q.Get("since"); since != "" {
		t, err := parseSince(since)
		if err != nil {
			s.respondError(w, r, core.Validation("since must be RFC 3339 or YYYY-MM-DD"))
			return
		}
		filter.Since = t
	}

	entries, err := s.service.ListAudit(r.Context(), actor, filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"entries": entries})
}

func parseSince(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
