package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mqtt-inspect/internal/audit"
)

// saveRuleRequest is the body of POST /rules.
type saveRuleRequest struct {
	Name      string `json:"name"`
	Rule      string `json:"rule"`
	Overwrite bool   `json:"overwrite"`
}

// rulesAvailable writes a 503 and returns false when saved rules are off.
func (s *Server) rulesAvailable(w http.ResponseWriter) bool {
	if s.rules == nil {
		writeUnavailable(w, "saved rules are not configured")
		return false
	}
	return true
}

// handleListRules returns every saved rule.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	if !s.rulesAvailable(w) {
		return
	}
	saved, err := s.rules.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list saved rules", "error", err)
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": saved,
		"count": len(saved),
	})
}

// handleSaveRule stores a rule under a name. The rule must parse.
func (s *Server) handleSaveRule(w http.ResponseWriter, r *http.Request) {
	if !s.rulesAvailable(w) {
		return
	}

	var req saveRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	saved, err := s.rules.Save(r.Context(), req.Name, req.Rule, req.Overwrite)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	s.journalEntry(r.Context(), audit.ActionRuleSave, saved.Name, saved.Query)
	writeJSON(w, http.StatusCreated, saved)
}

// handleGetRule returns one saved rule.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	if !s.rulesAvailable(w) {
		return
	}
	saved, err := s.rules.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleDeleteRule removes a saved rule.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if !s.rulesAvailable(w) {
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.rules.Delete(r.Context(), name); err != nil {
		writeRuleError(w, err)
		return
	}
	s.journalEntry(r.Context(), audit.ActionRuleDelete, name, "")
	w.WriteHeader(http.StatusNoContent)
}

// handleLoadRule activates a saved rule.
func (s *Server) handleLoadRule(w http.ResponseWriter, r *http.Request) {
	if !s.rulesAvailable(w) {
		return
	}
	name := chi.URLParam(r, "name")
	saved, err := s.rules.Get(r.Context(), name)
	if err != nil {
		writeRuleError(w, err)
		return
	}

	def, err := s.engine.Apply(saved.Query)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	s.journalEntry(r.Context(), audit.ActionRuleLoad, name, def.String())
	writeJSON(w, http.StatusOK, newFilterView(def))
}
