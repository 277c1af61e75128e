// Package handlers provides HTTP handlers for portfolio state and actions.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/modules/portfolio"
	"github.com/blumarkets/strata/internal/modules/validation"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service *portfolio.Service
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolio.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// actionRequest is the wire form of an action. action_type selects which of
// the remaining fields are meaningful.
type actionRequest struct {
	ActionType  string  `json:"action_type"`
	Amount      int64   `json:"amount"`
	AssetID     string  `json:"asset_id"`
	Side        string  `json:"side"`
	Months      int     `json:"months"`
	LoanToValue float64 `json:"loan_to_value"`
}

// parseAction converts a wire action request into a typed action.
func parseAction(req actionRequest) (validation.Action, error) {
	switch validation.ActionType(req.ActionType) {
	case validation.ActionAddFunds:
		return validation.AddFunds{Amount: req.Amount}, nil
	case validation.ActionTrade:
		return validation.Trade{AssetID: req.AssetID, Side: domain.Side(req.Side), Amount: req.Amount}, nil
	case validation.ActionRebalance:
		return validation.Rebalance{}, nil
	case validation.ActionProtect:
		return validation.Protect{AssetID: req.AssetID, Months: req.Months}, nil
	case validation.ActionBorrow:
		return validation.Borrow{AssetID: req.AssetID, Amount: req.Amount, LoanToValue: req.LoanToValue}, nil
	case validation.ActionRepayLoan:
		return validation.RepayLoan{}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", req.ActionType)
	}
}

// HandleGetSummary handles GET /api/portfolio
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summarize()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build portfolio summary")
		http.Error(w, "Failed to build portfolio summary", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, h.envelope(summary))
}

// HandleGetState handles GET /api/portfolio/state
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.CurrentState()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load portfolio state")
		http.Error(w, "Failed to load portfolio state", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, h.envelope(st))
}

// HandleValidateAction handles POST /api/portfolio/actions/validate
func (h *Handler) HandleValidateAction(w http.ResponseWriter, r *http.Request) {
	action, ok := h.decodeAction(w, r)
	if !ok {
		return
	}

	res, err := h.service.Preview(action)
	if err != nil {
		h.log.Warn().Err(err).Msg("Action validation rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, h.envelope(res))
}

// HandleCommitAction handles POST /api/portfolio/actions
func (h *Handler) HandleCommitAction(w http.ResponseWriter, r *http.Request) {
	action, ok := h.decodeAction(w, r)
	if !ok {
		return
	}

	res, err := h.service.Commit(action)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to commit action")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := http.StatusOK
	if !res.Validation.Allowed {
		status = http.StatusUnprocessableEntity
	}

	h.writeJSON(w, status, h.envelope(res))
}

func (h *Handler) decodeAction(w http.ResponseWriter, r *http.Request) (validation.Action, bool) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return nil, false
	}

	action, err := parseAction(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	return action, true
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
