// Package handlers provides HTTP handlers for onboarding and the
// draft/confirm action flow.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/modules/session"
	"github.com/blumarkets/strata/internal/modules/validation"
)

// Handler handles session HTTP requests
type Handler struct {
	service *session.Service
	flow    *session.Flow
	log     zerolog.Logger
}

// NewHandler creates a new session handler
func NewHandler(service *session.Service, flow *session.Flow, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		flow:    flow,
		log:     log.With().Str("handler", "session").Logger(),
	}
}

// HandleGetStatus handles GET /api/session
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	acc, err := h.service.Status()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load session status")
		http.Error(w, "Failed to load session status", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, h.envelope(acc))
}

// HandleSubmitPhone handles POST /api/session/phone
func (h *Handler) HandleSubmitPhone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	acc, err := h.service.SubmitPhone(req.Phone)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, h.envelope(acc))
}

// HandleSubmitQuestionnaire handles POST /api/session/questionnaire
func (h *Handler) HandleSubmitQuestionnaire(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answers []int `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	proposal, err := h.service.SubmitQuestionnaire(req.Answers)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, h.envelope(proposal))
}

// HandleGetProposal handles GET /api/session/proposal
func (h *Handler) HandleGetProposal(w http.ResponseWriter, r *http.Request) {
	proposal, err := h.service.GetProposal()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, h.envelope(proposal))
}

// HandleAcceptProposal handles POST /api/session/proposal/accept
func (h *Handler) HandleAcceptProposal(w http.ResponseWriter, r *http.Request) {
	if err := h.service.AcceptProposal(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, h.envelope(map[string]string{"stage": string(session.StageConsent)}))
}

// HandleGiveConsent handles POST /api/session/consent
func (h *Handler) HandleGiveConsent(w http.ResponseWriter, r *http.Request) {
	if err := h.service.GiveConsent(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, h.envelope(map[string]string{"stage": string(session.StageFunding)}))
}

// HandleFund handles POST /api/session/fund
func (h *Handler) HandleFund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	st, err := h.service.Fund(req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, h.envelope(st))
}

// draftRequest is the wire form of a draftable action.
type draftRequest struct {
	ActionType  string  `json:"action_type"`
	Amount      int64   `json:"amount"`
	AssetID     string  `json:"asset_id"`
	Side        string  `json:"side"`
	Months      int     `json:"months"`
	LoanToValue float64 `json:"loan_to_value"`
}

func parseDraftAction(req draftRequest) (validation.Action, error) {
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

// HandleCreateDraft handles POST /api/session/drafts
func (h *Handler) HandleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	action, err := parseDraftAction(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	draft, res, err := h.flow.Draft(action)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, h.envelope(map[string]interface{}{
		"draft":      draft,
		"validation": res,
	}))
}

// HandleGetCurrentDraft handles GET /api/session/drafts/current
func (h *Handler) HandleGetCurrentDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.flow.Current()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load current draft")
		http.Error(w, "Failed to load current draft", http.StatusInternalServerError)
		return
	}
	if draft == nil {
		http.Error(w, "No pending draft", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, h.envelope(draft))
}

// HandlePreviewDraft handles GET /api/session/drafts/{id}/preview
func (h *Handler) HandlePreviewDraft(w http.ResponseWriter, r *http.Request, id string) {
	res, err := h.flow.Preview(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, h.envelope(res))
}

// HandleConfirmDraft handles POST /api/session/drafts/{id}/confirm
func (h *Handler) HandleConfirmDraft(w http.ResponseWriter, r *http.Request, id string) {
	res, err := h.flow.Confirm(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	status := http.StatusOK
	if !res.Validation.Allowed {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, h.envelope(res))
}

// HandleCancelDraft handles POST /api/session/drafts/{id}/cancel
func (h *Handler) HandleCancelDraft(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.flow.Cancel(id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, h.envelope(map[string]string{"status": string(session.DraftCancelled)}))
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
