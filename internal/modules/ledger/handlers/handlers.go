// Package handlers provides HTTP handlers for ledger queries.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/modules/ledger"
)

// Handler handles ledger HTTP requests
type Handler struct {
	service *ledger.Service
	log     zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(service *ledger.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "ledger").Logger(),
	}
}

// HandleGetEntries handles GET /api/ledger/entries
func (h *Handler) HandleGetEntries(w http.ResponseWriter, r *http.Request) {
	limit := 50 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset > 0 {
			offset = parsedOffset
		}
	}

	actionType := r.URL.Query().Get("action_type")

	entries, err := h.service.History(actionType, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query ledger entries")
		http.Error(w, "Failed to query ledger entries", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"entries": entries,
			"count":   len(entries),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetEntryByID handles GET /api/ledger/entries/{id}
func (h *Handler) HandleGetEntryByID(w http.ResponseWriter, r *http.Request, id string) {
	entry, err := h.service.Entry(id)
	if err != nil {
		h.log.Error().Err(err).Str("entry_id", id).Msg("Failed to query ledger entry")
		http.Error(w, "Failed to query ledger entry", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "Entry not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"data": entry,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetSummary handles GET /api/ledger/summary
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.Count()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count ledger entries")
		http.Error(w, "Failed to count ledger entries", http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"total_entries": count,
	}

	last, err := h.service.Last()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query last ledger entry")
		http.Error(w, "Failed to query last ledger entry", http.StatusInternalServerError)
		return
	}
	if last != nil {
		data["last_action_type"] = last.ActionType
		data["last_boundary"] = last.BoundaryAfter
		data["last_recorded_at"] = last.CreatedAt.Format(time.RFC3339)
	}

	response := map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
