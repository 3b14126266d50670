package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/mqtt-inspect/internal/audit"
	"github.com/nerrad567/mqtt-inspect/internal/message"
	"github.com/nerrad567/mqtt-inspect/internal/rule"
)

// filterView describes the active rule.
type filterView struct {
	Active bool     `json:"active"`
	Rule   string   `json:"rule,omitempty"`
	Select []string `json:"select,omitempty"`
	From   string   `json:"from,omitempty"`
	Where  string   `json:"where,omitempty"`
}

func newFilterView(def *rule.Definition) filterView {
	if def == nil {
		return filterView{}
	}
	v := filterView{
		Active: true,
		Rule:   def.String(),
		Select: def.Select,
		From:   def.From,
	}
	if def.Where != nil {
		v.Where = def.Where.String()
	}
	return v
}

// filterRequest is the body of PUT /filter.
type filterRequest struct {
	Rule string `json:"rule"`
}

// handleGetFilter returns the active rule.
func (s *Server) handleGetFilter(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newFilterView(s.engine.Current()))
}

// handleSetFilter parses and activates a rule. On a syntax error the
// previous rule stays active.
func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	def, err := s.engine.Apply(req.Rule)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	s.journalEntry(r.Context(), audit.ActionFilterApply, "", def.String())
	writeJSON(w, http.StatusOK, newFilterView(def))
}

// handleClearFilter removes the active rule.
func (s *Server) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	s.engine.Clear()
	s.journalEntry(r.Context(), audit.ActionFilterClear, "", "")
	w.WriteHeader(http.StatusNoContent)
}

// checkRequest is the body of POST /filter/check.
type checkRequest struct {
	Rule    string `json:"rule"`
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// checkResponse reports how a rule treats a sample message.
type checkResponse struct {
	Filter filterView     `json:"filter"`
	Match  bool           `json:"match"`
	Output map[string]any `json:"output,omitempty"`
}

// handleCheckFilter evaluates a rule against a sample message without
// touching the active rule.
func (s *Server) handleCheckFilter(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Topic == "" {
		writeBadRequest(w, "topic is required")
		return
	}

	def, err := rule.Parse(req.Rule)
	if err != nil {
		writeRuleError(w, err)
		return
	}

	msg := message.FromMQTT(message.TypeSimulated, "api", req.Topic, []byte(req.Payload), 0, false)
	resp := checkResponse{Filter: newFilterView(def), Match: def.Matches(msg, nil)}
	if resp.Match {
		resp.Output = def.Project(msg)
	}
	writeJSON(w, http.StatusOK, resp)
}

// statsView is the response body of GET /stats.
type statsView struct {
	rule.Stats
	Stored   int        `json:"stored"`
	Capacity int        `json:"capacity"`
	LatestID int64      `json:"latest_id"`
	Filter   filterView `json:"filter"`
}

// handleStats returns filter counters and history occupancy.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		writeInternalError(w, "history unavailable")
		return
	}
	latest, _, err := s.store.LatestID(r.Context())
	if err != nil {
		writeInternalError(w, "history unavailable")
		return
	}

	writeJSON(w, http.StatusOK, statsView{
		Stats:    s.engine.Stats(),
		Stored:   count,
		Capacity: s.store.Capacity(),
		LatestID: latest,
		Filter:   newFilterView(s.engine.Current()),
	})
}
