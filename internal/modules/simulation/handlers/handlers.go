// Package handlers provides HTTP handlers for simulation runs.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/modules/simulation"
)

// Handler handles simulation HTTP requests
type Handler struct {
	simulator *simulation.Simulator
	log       zerolog.Logger
}

// NewHandler creates a new simulation handler
func NewHandler(simulator *simulation.Simulator, log zerolog.Logger) *Handler {
	return &Handler{
		simulator: simulator,
		log:       log.With().Str("handler", "simulation").Logger(),
	}
}

// HandleListScenarios handles GET /api/simulation/scenarios
func (h *Handler) HandleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios := simulation.Scenarios()

	names := make([]map[string]interface{}, 0, len(scenarios))
	for _, sc := range scenarios {
		names = append(names, map[string]interface{}{
			"name": sc.Name,
			"days": sc.Days,
		})
	}

	h.writeJSON(w, http.StatusOK, h.envelope(map[string]interface{}{
		"scenarios": names,
		"count":     len(names),
	}))
}

// HandleRun handles POST /api/simulation/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scenario string             `json:"scenario"`
		Amount   float64            `json:"amount"`
		Split    domain.TargetSplit `json:"split"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sc, err := simulation.ScenarioByName(req.Scenario)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.simulator.Run(sc, req.Amount, req.Split)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, h.envelope(report))
}

func (h *Handler) envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
