package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/modules/allocation"
	"github.com/blumarkets/strata/internal/modules/boundary"
	"github.com/blumarkets/strata/internal/modules/exposure"
	"github.com/blumarkets/strata/internal/policy"
)

// Service records committed actions and answers history queries.
type Service struct {
	repo       *Repository
	classifier *boundary.Classifier
	engine     *allocation.Engine
	pol        *policy.Policy
	clock      domain.Clock
	log        zerolog.Logger
}

// NewService creates a new ledger service.
func NewService(
	repo *Repository,
	classifier *boundary.Classifier,
	engine *allocation.Engine,
	pol *policy.Policy,
	clock domain.Clock,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		classifier: classifier,
		engine:     engine,
		pol:        pol,
		clock:      clock,
		log:        log.With().Str("service", "ledger").Logger(),
	}
}

// RecordAction appends one entry for a committed action. Boundary states are
// classified from the states themselves; the ledger never trusts a caller's
// severity claim.
func (s *Service) RecordAction(actionType string, params map[string]any, before, after domain.State) (*Entry, error) {
	entry := &Entry{
		ID:             uuid.New().String(),
		ActionType:     actionType,
		Parameters:     params,
		BoundaryBefore: s.classifier.Classify(before),
		BoundaryAfter:  s.classifier.Classify(after),
		Before:         SnapshotOf(before),
		After:          SnapshotOf(after),
		CreatedAt:      s.clock(),
	}

	if err := s.repo.Append(entry); err != nil {
		return nil, fmt.Errorf("failed to record %s action: %w", actionType, err)
	}

	s.log.Info().
		Str("entry_id", entry.ID).
		Int64("seq", entry.Seq).
		Str("action_type", actionType).
		Str("boundary_before", string(entry.BoundaryBefore)).
		Str("boundary_after", string(entry.BoundaryAfter)).
		Msg("Recorded ledger entry")

	return entry, nil
}

// History returns entries newest first, optionally filtered by action type.
func (s *Service) History(actionType string, limit, offset int) ([]Entry, error) {
	return s.repo.List(actionType, limit, offset)
}

// Entry returns a single entry by id, or nil when unknown.
func (s *Service) Entry(id string) (*Entry, error) {
	return s.repo.GetByID(id)
}

// Count returns the total number of recorded entries.
func (s *Service) Count() (int64, error) {
	return s.repo.Count()
}

// Last returns the most recent entry, or nil when the ledger is empty.
func (s *Service) Last() (*Entry, error) {
	return s.repo.Last()
}

// RebalanceWorthSuggesting reports whether a rebalance suggestion should
// accompany an action's result. A suggestion requires both meaningful drift
// and a rebalance that would actually reduce it; with everything frozen a
// rebalance moves nothing and suggesting one would be noise.
func (s *Service) RebalanceWorthSuggesting(st domain.State) bool {
	if st.Split == nil {
		return false
	}

	drift := exposure.StateDrift(st)
	if drift.Total <= s.pol.RebalanceSuggestPct {
		return false
	}

	rebalanced, cash := s.engine.RebalanceToTarget(st.Portfolio, st.Cash, *st.Split)
	after := st.Clone()
	after.Portfolio = rebalanced
	after.Cash = cash

	return exposure.StateDrift(after).Total < drift.Total
}
