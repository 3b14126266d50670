package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nerrad567/mqtt-inspect/internal/audit"
)

// publishRequest is the body of POST /publish.
type publishRequest struct {
	Topic    string `json:"topic"`
	Payload  string `json:"payload"`
	QoS      byte   `json:"qos"`
	Retained bool   `json:"retained"`
}

// handlePublish sends a message to the broker (or the demo loopback).
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		writeUnavailable(w, "publishing is not available")
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	switch {
	case req.Topic == "":
		writeBadRequest(w, "topic is required")
		return
	case strings.ContainsAny(req.Topic, "+#"):
		writeBadRequest(w, "cannot publish to a wildcard topic")
		return
	case req.QoS > 2: //nolint:mnd // MQTT QoS levels 0-2
		writeBadRequest(w, "qos must be 0, 1 or 2")
		return
	}

	if err := s.publisher.Publish(req.Topic, []byte(req.Payload), req.QoS, req.Retained); err != nil {
		s.logger.Warn("publish failed", "topic", req.Topic, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, "publish failed: "+err.Error())
		return
	}

	s.journalEntry(r.Context(), audit.ActionPublish, req.Topic, fmt.Sprintf("%d bytes qos %d", len(req.Payload), req.QoS))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"topic": req.Topic,
		"size":  len(req.Payload),
	})
}
