package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mqtt-inspect/internal/auth"
	"github.com/nerrad567/mqtt-inspect/internal/webui"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/metrics", s.handleMetrics)

			// Message history
			r.Route("/messages", func(r chi.Router) {
				r.With(s.require(auth.PermHistoryRead)).Get("/", s.handleListMessages)
				r.With(s.require(auth.PermHistoryClear)).Delete("/", s.handleClearMessages)
				r.With(s.require(auth.PermHistoryRead)).Get("/latest", s.handleLatestMessage)
				r.With(s.require(auth.PermHistoryRead)).Get("/search", s.handleSearchMessages)
				r.With(s.require(auth.PermHistoryRead)).Get("/export", s.handleExportMessages)
				r.With(s.require(auth.PermHistoryRead)).Get("/{id}", s.handleGetMessage)
			})

			// Active filter
			r.Route("/filter", func(r chi.Router) {
				r.With(s.require(auth.PermFilterRead)).Get("/", s.handleGetFilter)
				r.With(s.require(auth.PermFilterWrite)).Put("/", s.handleSetFilter)
				r.With(s.require(auth.PermFilterWrite)).Delete("/", s.handleClearFilter)
				r.With(s.require(auth.PermFilterRead)).Post("/check", s.handleCheckFilter)
			})
			r.With(s.require(auth.PermFilterRead)).Get("/stats", s.handleStats)

			// Saved rules
			r.Route("/rules", func(r chi.Router) {
				r.With(s.require(auth.PermRulesRead)).Get("/", s.handleListRules)
				r.With(s.require(auth.PermRulesWrite)).Post("/", s.handleSaveRule)

				r.Route("/{name}", func(r chi.Router) {
					r.With(s.require(auth.PermRulesRead)).Get("/", s.handleGetRule)
					r.With(s.require(auth.PermRulesWrite)).Delete("/", s.handleDeleteRule)
					r.With(s.require(auth.PermFilterWrite)).Post("/load", s.handleLoadRule)
				})
			})

			r.With(s.require(auth.PermActivityRead)).Get("/activity", s.handleListActivity)
			r.With(s.require(auth.PermPublish)).Post("/publish", s.handlePublish)
		})
	})

	// Browser viewer. It calls the API like any other client.
	if s.cfg.UI.Enabled {
		r.Handle("/*", webui.Handler(s.cfg.UI.Dir))
	}

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
