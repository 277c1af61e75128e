package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all session routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.HandleGetStatus)
		r.Post("/phone", h.HandleSubmitPhone)
		r.Post("/questionnaire", h.HandleSubmitQuestionnaire)
		r.Get("/proposal", h.HandleGetProposal)
		r.Post("/proposal/accept", h.HandleAcceptProposal)
		r.Post("/consent", h.HandleGiveConsent)
		r.Post("/fund", h.HandleFund)

		r.Route("/drafts", func(r chi.Router) {
			r.Post("/", h.HandleCreateDraft)
			r.Get("/current", h.HandleGetCurrentDraft)
			r.Get("/{id}/preview", func(w http.ResponseWriter, r *http.Request) {
				h.HandlePreviewDraft(w, r, chi.URLParam(r, "id"))
			})
			r.Post("/{id}/confirm", func(w http.ResponseWriter, r *http.Request) {
				h.HandleConfirmDraft(w, r, chi.URLParam(r, "id"))
			})
			r.Post("/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
				h.HandleCancelDraft(w, r, chi.URLParam(r, "id"))
			})
		})
	})
}
