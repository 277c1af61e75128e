package session

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/modules/portfolio"
	"github.com/blumarkets/strata/internal/modules/validation"
)

// Flow runs the two-phase draft/confirm cycle for portfolio actions. A draft
// captures the validation verdict and a hash of the state it was validated
// against; confirmation refuses to apply a draft once the state has moved.
type Flow struct {
	repo         *Repository
	portfolioSvc *portfolio.Service
	clock        domain.Clock
	log          zerolog.Logger
}

// NewFlow creates a draft/confirm flow.
func NewFlow(repo *Repository, portfolioSvc *portfolio.Service, clock domain.Clock, log zerolog.Logger) *Flow {
	return &Flow{
		repo:         repo,
		portfolioSvc: portfolioSvc,
		clock:        clock,
		log:          log.With().Str("service", "session_flow").Logger(),
	}
}

// Draft validates an action and stores it for confirmation. Only one draft
// can be in flight; a new draft replaces the previous one.
func (f *Flow) Draft(action validation.Action) (*Draft, validation.Result, error) {
	acc, err := f.repo.GetAccount()
	if err != nil {
		return nil, validation.Result{}, err
	}
	if err := requireStage(acc.Stage, StageActive); err != nil {
		return nil, validation.Result{}, err
	}

	st, err := f.portfolioSvc.CurrentState()
	if err != nil {
		return nil, validation.Result{}, err
	}

	res, err := f.portfolioSvc.Preview(action)
	if err != nil {
		return nil, validation.Result{}, err
	}

	draft := Draft{
		ID:         uuid.New().String(),
		ActionType: string(action.Type()),
		Params:     paramsOf(action),
		StateHash:  HashState(st),
		Status:     DraftPending,
		CreatedAt:  f.clock(),
	}
	if err := f.repo.SaveDraft(draft); err != nil {
		return nil, validation.Result{}, err
	}

	f.log.Info().
		Str("draft_id", draft.ID).
		Str("action_type", draft.ActionType).
		Bool("allowed", res.Allowed).
		Msg("Drafted action")

	return &draft, res, nil
}

// Preview re-validates a draft against current state without committing.
func (f *Flow) Preview(id string) (validation.Result, error) {
	draft, err := f.repo.GetDraft(id)
	if err != nil {
		return validation.Result{}, err
	}
	if draft == nil {
		return validation.Result{}, fmt.Errorf("draft %s not found", id)
	}

	action, err := actionOf(draft.ActionType, draft.Params)
	if err != nil {
		return validation.Result{}, err
	}

	return f.portfolioSvc.Preview(action)
}

// Confirm applies a pending draft. If the portfolio state changed since the
// draft was validated, the draft goes stale and nothing is applied; the
// client has to draft again against the state it can actually see.
func (f *Flow) Confirm(id string) (portfolio.CommitResult, error) {
	draft, err := f.repo.GetDraft(id)
	if err != nil {
		return portfolio.CommitResult{}, err
	}
	if draft == nil {
		return portfolio.CommitResult{}, fmt.Errorf("draft %s not found", id)
	}
	if draft.Status != DraftPending {
		return portfolio.CommitResult{}, fmt.Errorf("draft %s is %s, not pending", id, draft.Status)
	}

	st, err := f.portfolioSvc.CurrentState()
	if err != nil {
		return portfolio.CommitResult{}, err
	}
	if HashState(st) != draft.StateHash {
		if err := f.repo.SetDraftStatus(id, DraftStale); err != nil {
			return portfolio.CommitResult{}, err
		}
		return portfolio.CommitResult{}, fmt.Errorf("draft %s is stale: portfolio state changed since drafting", id)
	}

	action, err := actionOf(draft.ActionType, draft.Params)
	if err != nil {
		return portfolio.CommitResult{}, err
	}

	res, err := f.portfolioSvc.Commit(action)
	if err != nil {
		return portfolio.CommitResult{}, err
	}

	status := DraftConfirmed
	if !res.Validation.Allowed {
		status = DraftStale
	}
	if err := f.repo.SetDraftStatus(id, status); err != nil {
		return portfolio.CommitResult{}, err
	}

	return res, nil
}

// Cancel discards a pending draft.
func (f *Flow) Cancel(id string) error {
	draft, err := f.repo.GetDraft(id)
	if err != nil {
		return err
	}
	if draft == nil {
		return fmt.Errorf("draft %s not found", id)
	}
	if draft.Status != DraftPending {
		return fmt.Errorf("draft %s is %s, not pending", id, draft.Status)
	}
	return f.repo.SetDraftStatus(id, DraftCancelled)
}

// Current returns the pending draft, or nil.
func (f *Flow) Current() (*Draft, error) {
	return f.repo.CurrentDraft()
}

// paramsOf flattens a typed action into the stored draft parameters.
func paramsOf(action validation.Action) draftParams {
	switch a := action.(type) {
	case validation.AddFunds:
		return draftParams{Amount: a.Amount}
	case validation.Trade:
		return draftParams{AssetID: a.AssetID, Side: string(a.Side), Amount: a.Amount}
	case validation.Protect:
		return draftParams{AssetID: a.AssetID, Months: a.Months}
	case validation.Borrow:
		return draftParams{AssetID: a.AssetID, Amount: a.Amount, LoanToValue: a.LoanToValue}
	default:
		return draftParams{}
	}
}

// actionOf rebuilds the typed action from stored draft parameters.
func actionOf(actionType string, p draftParams) (validation.Action, error) {
	switch validation.ActionType(actionType) {
	case validation.ActionAddFunds:
		return validation.AddFunds{Amount: p.Amount}, nil
	case validation.ActionTrade:
		return validation.Trade{AssetID: p.AssetID, Side: domain.Side(p.Side), Amount: p.Amount}, nil
	case validation.ActionRebalance:
		return validation.Rebalance{}, nil
	case validation.ActionProtect:
		return validation.Protect{AssetID: p.AssetID, Months: p.Months}, nil
	case validation.ActionBorrow:
		return validation.Borrow{AssetID: p.AssetID, Amount: p.Amount, LoanToValue: p.LoanToValue}, nil
	case validation.ActionRepayLoan:
		return validation.RepayLoan{}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q in draft", actionType)
	}
}
