package portfolio

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/modules/boundary"
	"github.com/blumarkets/strata/internal/modules/credit"
	"github.com/blumarkets/strata/internal/modules/exposure"
	"github.com/blumarkets/strata/internal/modules/ledger"
	"github.com/blumarkets/strata/internal/modules/validation"
	"github.com/blumarkets/strata/internal/policy"
)

// CommitResult is the outcome of committing an action: the validation
// verdict, the recorded ledger entry when the action went through, and
// whether a rebalance is worth suggesting afterwards.
type CommitResult struct {
	Validation         validation.Result `json:"validation"`
	Entry              *ledger.Entry     `json:"entry,omitempty"`
	SuggestRebalance   bool              `json:"suggest_rebalance"`
}

// Summary is the read-model for the portfolio overview.
type Summary struct {
	TotalValue     int64                 `json:"total_value"`
	TotalDisplay   string                `json:"total_display"`
	InvestedTotal  int64                 `json:"invested_total"`
	Cash           int64                 `json:"cash"`
	Split          *domain.TargetSplit   `json:"split,omitempty"`
	Percentages    exposure.Percentages  `json:"percentages"`
	Drift          exposure.Drift        `json:"drift"`
	Boundary       domain.BoundaryState  `json:"boundary"`
	Holdings       []domain.Holding      `json:"holdings"`
	Loan           *domain.Loan          `json:"loan,omitempty"`
	Protections    []domain.Protection   `json:"protections,omitempty"`
	Capacities     []credit.Capacity     `json:"capacities,omitempty"`
}

// Service owns the load/validate/persist/record cycle. It is the only writer
// of portfolio state; everything else reads through it.
type Service struct {
	repo       *Repository
	validator  *validation.Validator
	classifier *boundary.Classifier
	credit     *credit.Calculator
	ledger     *ledger.Service
	pol        *policy.Policy
	clock      domain.Clock
	log        zerolog.Logger
}

// NewService creates a new portfolio service.
func NewService(
	repo *Repository,
	validator *validation.Validator,
	classifier *boundary.Classifier,
	creditCalc *credit.Calculator,
	ledgerSvc *ledger.Service,
	pol *policy.Policy,
	clock domain.Clock,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		validator:  validator,
		classifier: classifier,
		credit:     creditCalc,
		ledger:     ledgerSvc,
		pol:        pol,
		clock:      clock,
		log:        log.With().Str("service", "portfolio").Logger(),
	}
}

// CurrentState loads the authoritative state.
func (s *Service) CurrentState() (domain.State, error) {
	return s.repo.LoadState()
}

// Preview validates an action against current state without committing.
func (s *Service) Preview(action validation.Action) (validation.Result, error) {
	st, err := s.repo.LoadState()
	if err != nil {
		return validation.Result{}, err
	}
	return s.validator.Validate(st, action)
}

// Commit validates an action and, when allowed, persists the projected state
// and records a ledger entry. A denied action changes nothing and records
// nothing.
func (s *Service) Commit(action validation.Action) (CommitResult, error) {
	before, err := s.repo.LoadState()
	if err != nil {
		return CommitResult{}, err
	}

	res, err := s.validator.Validate(before, action)
	if err != nil {
		return CommitResult{}, err
	}
	if !res.Allowed {
		s.log.Info().
			Str("action_type", string(action.Type())).
			Strs("blockers", res.Blockers).
			Strs("errors", res.Errors).
			Msg("Action denied")
		return CommitResult{Validation: res}, nil
	}
	if res.Projected == nil {
		return CommitResult{}, fmt.Errorf("allowed %s action has no projected state", action.Type())
	}

	if err := s.repo.SaveState(*res.Projected); err != nil {
		return CommitResult{}, fmt.Errorf("failed to persist %s action: %w", action.Type(), err)
	}

	entry, err := s.ledger.RecordAction(string(action.Type()), actionParams(action), before, *res.Projected)
	if err != nil {
		// State is saved but unrecorded. Surface loudly; the ledger is the
		// audit trail and a silent gap defeats it.
		s.log.Error().Err(err).
			Str("action_type", string(action.Type())).
			Msg("Committed action but failed to record ledger entry")
		return CommitResult{Validation: res}, fmt.Errorf("failed to record %s action: %w", action.Type(), err)
	}

	s.log.Info().
		Str("action_type", string(action.Type())).
		Str("entry_id", entry.ID).
		Str("boundary", string(res.ProjectedBoundary)).
		Msg("Committed action")

	return CommitResult{
		Validation:       res,
		Entry:            entry,
		SuggestRebalance: action.Type() != validation.ActionRebalance && s.ledger.RebalanceWorthSuggesting(*res.Projected),
	}, nil
}

// Summarize builds the portfolio overview read-model.
func (s *Service) Summarize() (Summary, error) {
	st, err := s.repo.LoadState()
	if err != nil {
		return Summary{}, err
	}

	now := s.clock()
	var active []domain.Protection
	for _, p := range st.Protections {
		if p.ActiveAt(now) {
			active = append(active, p)
		}
	}

	var capacities []credit.Capacity
	if st.Loan == nil {
		for _, h := range st.Portfolio.Holdings {
			c := s.credit.CapacityOf(h)
			if c.MaxBorrow > 0 {
				capacities = append(capacities, c)
			}
		}
	}

	summary := Summary{
		TotalValue:    st.TotalValue(),
		TotalDisplay:  domain.FormatIRR(st.TotalValue()),
		InvestedTotal: st.Portfolio.InvestedTotal(),
		Cash:          st.Cash,
		Split:         st.Split,
		Percentages:   exposure.Of(st.Portfolio, st.Cash),
		Boundary:      s.classifier.Classify(st),
		Holdings:      st.Portfolio.Holdings,
		Loan:          st.Loan,
		Protections:   active,
		Capacities:    capacities,
	}
	if st.Split != nil {
		summary.Drift = exposure.StateDrift(st)
	}

	return summary, nil
}

// actionParams flattens a typed action into the ledger's parameter map.
func actionParams(action validation.Action) map[string]any {
	switch a := action.(type) {
	case validation.AddFunds:
		return map[string]any{"amount": a.Amount}
	case validation.Trade:
		return map[string]any{"asset_id": a.AssetID, "side": string(a.Side), "amount": a.Amount}
	case validation.Protect:
		return map[string]any{"asset_id": a.AssetID, "months": a.Months}
	case validation.Borrow:
		return map[string]any{"asset_id": a.AssetID, "amount": a.Amount, "loan_to_value": a.LoanToValue}
	default:
		return nil
	}
}
