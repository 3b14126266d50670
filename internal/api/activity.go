package api

import (
	"net/http"

	"github.com/nerrad567/mqtt-inspect/internal/audit"
)

// handleListActivity returns journal entries, most recent first.
//
// Query parameters:
//   - action: filter by action (filter.apply, rule.save, mqtt.publish, ...)
//   - subject: filter by rule name or topic
//   - limit: max results (default 20, max 200)
func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "activity journal is not configured")
		return
	}

	limit, ok := limitParam(r, audit.DefaultLimit)
	if !ok {
		writeBadRequest(w, "limit must be a positive integer")
		return
	}

	q := r.URL.Query()
	entries, err := s.journal.List(r.Context(), audit.Filter{
		Action:  q.Get("action"),
		Subject: q.Get("subject"),
		Limit:   limit,
	})
	if err != nil {
		s.logger.Error("failed to list activity", "error", err)
		writeInternalError(w, "failed to list activity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"activity": entries,
		"count":    len(entries),
	})
}
