package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mqtt-inspect/internal/history"
	"github.com/nerrad567/mqtt-inspect/internal/topic"
)

// defaultListLimit applies when a history listing has no limit parameter.
const defaultListLimit = 20

// messageList is the response body of history listings.
type messageList struct {
	Messages []history.Record `json:"messages"`
	Count    int              `json:"count"`
}

func toRecords(entries []history.Entry) []history.Record {
	records := make([]history.Record, len(entries))
	for i, e := range entries {
		records[i] = e.Record()
	}
	return records
}

// limitParam reads a positive "limit" query parameter. ok is false when
// the parameter is present but not a positive integer.
func limitParam(r *http.Request, def int) (limit int, ok bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// handleListMessages returns the most recent messages, oldest first.
//
// Query parameters:
//   - limit: number of messages (default 20)
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(r, defaultListLimit)
	if !ok {
		writeBadRequest(w, "limit must be a positive integer")
		return
	}

	entries, err := s.store.Last(r.Context(), limit)
	if err != nil {
		writeInternalError(w, "history unavailable")
		return
	}
	records := toRecords(entries)
	writeJSON(w, http.StatusOK, messageList{Messages: records, Count: len(records)})
}

// handleLatestMessage returns the most recent message.
func (s *Server) handleLatestMessage(w http.ResponseWriter, r *http.Request) {
	entry, ok, err := s.store.Latest(r.Context())
	if err != nil {
		writeInternalError(w, "history unavailable")
		return
	}
	if !ok {
		writeNotFound(w, "no messages stored")
		return
	}
	writeJSON(w, http.StatusOK, entry.Record())
}

// handleGetMessage returns one message by id.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "message id must be an integer")
		return
	}

	entry, ok, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeInternalError(w, "history unavailable")
		return
	}
	if !ok {
		writeNotFound(w, "no message with id "+strconv.FormatInt(id, 10))
		return
	}
	writeJSON(w, http.StatusOK, entry.Record())
}

// handleSearchMessages returns messages whose topic matches a pattern.
//
// Query parameters:
//   - pattern: MQTT topic filter (required)
//   - limit: maximum matches (default all)
func (s *Server) handleSearchMessages(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if err := topic.ValidatePattern(pattern); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	limit, ok := limitParam(r, 0)
	if !ok {
		writeBadRequest(w, "limit must be a positive integer")
		return
	}

	entries, err := s.store.Search(r.Context(), pattern, limit)
	if err != nil {
		writeInternalError(w, "history unavailable")
		return
	}
	records := toRecords(entries)
	writeJSON(w, http.StatusOK, messageList{Messages: records, Count: len(records)})
}

// handleExportMessages returns history in export form.
//
// Query parameters:
//   - limit: most recent n messages (default all)
func (s *Server) handleExportMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(r, 0)
	if !ok {
		writeBadRequest(w, "limit must be a positive integer")
		return
	}

	records, err := s.store.Export(r.Context(), limit)
	if err != nil {
		writeInternalError(w, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleClearMessages empties the history. Message ids keep counting.
func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		writeInternalError(w, "history unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
