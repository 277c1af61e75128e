package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", h.HandleGetSummary)
		r.Get("/state", h.HandleGetState)
		r.Post("/actions", h.HandleCommitAction)
		r.Post("/actions/validate", h.HandleValidateAction)
	})
}
