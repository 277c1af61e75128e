package session

import (
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/modules/allocation"
	"github.com/blumarkets/strata/internal/modules/ledger"
	"github.com/blumarkets/strata/internal/modules/portfolio"
	"github.com/blumarkets/strata/internal/policy"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

// Proposal is the allocation offered to the client after the questionnaire.
// The preview shows how a nominal amount would be distributed.
type Proposal struct {
	Score         int                `json:"score"`
	Split         domain.TargetSplit `json:"split"`
	PreviewAmount int64              `json:"preview_amount"`
	Preview       []domain.Holding   `json:"preview"`
}

// Service drives the onboarding funnel from first contact to an active,
// funded portfolio.
type Service struct {
	repo          *Repository
	portfolioRepo *portfolio.Repository
	engine        *allocation.Engine
	ledger        *ledger.Service
	pol           *policy.Policy
	clock         domain.Clock
	log           zerolog.Logger
}

// NewService creates a new session service.
func NewService(
	repo *Repository,
	portfolioRepo *portfolio.Repository,
	engine *allocation.Engine,
	ledgerSvc *ledger.Service,
	pol *policy.Policy,
	clock domain.Clock,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:          repo,
		portfolioRepo: portfolioRepo,
		engine:        engine,
		ledger:        ledgerSvc,
		pol:           pol,
		clock:         clock,
		log:           log.With().Str("service", "session").Logger(),
	}
}

// Status returns the current onboarding state.
func (s *Service) Status() (Account, error) {
	return s.repo.GetAccount()
}

// SubmitPhone records the phone number and opens the questionnaire.
func (s *Service) SubmitPhone(phone string) (Account, error) {
	acc, err := s.repo.GetAccount()
	if err != nil {
		return Account{}, err
	}
	if err := requireStage(acc.Stage, StagePhone); err != nil {
		return Account{}, err
	}
	if !phonePattern.MatchString(phone) {
		return Account{}, fmt.Errorf("invalid phone number")
	}

	if err := s.repo.SetPhone(phone); err != nil {
		return Account{}, err
	}
	if err := s.advance(StageQuestionnaire); err != nil {
		return Account{}, err
	}

	return s.repo.GetAccount()
}

// SubmitQuestionnaire scores the answers and moves to the proposal stage.
func (s *Service) SubmitQuestionnaire(answers []int) (Proposal, error) {
	acc, err := s.repo.GetAccount()
	if err != nil {
		return Proposal{}, err
	}
	if err := requireStage(acc.Stage, StageQuestionnaire); err != nil {
		return Proposal{}, err
	}

	score, err := Score(answers)
	if err != nil {
		return Proposal{}, err
	}

	if err := s.repo.SetRiskScore(score); err != nil {
		return Proposal{}, err
	}
	if err := s.advance(StageProposal); err != nil {
		return Proposal{}, err
	}

	s.log.Info().Int("score", score).Msg("Questionnaire scored")

	return s.buildProposal(score)
}

// GetProposal returns the proposed allocation for the stored risk score.
func (s *Service) GetProposal() (Proposal, error) {
	acc, err := s.repo.GetAccount()
	if err != nil {
		return Proposal{}, err
	}
	if err := requireStage(acc.Stage, StageProposal); err != nil {
		return Proposal{}, err
	}
	if acc.RiskScore == nil {
		return Proposal{}, fmt.Errorf("no risk score on file")
	}

	return s.buildProposal(*acc.RiskScore)
}

// AcceptProposal moves the accepted proposal to the consent stage.
func (s *Service) AcceptProposal() error {
	acc, err := s.repo.GetAccount()
	if err != nil {
		return err
	}
	if err := requireStage(acc.Stage, StageProposal); err != nil {
		return err
	}
	return s.advance(StageConsent)
}

// GiveConsent records consent and opens funding.
func (s *Service) GiveConsent() error {
	acc, err := s.repo.GetAccount()
	if err != nil {
		return err
	}
	if err := requireStage(acc.Stage, StageConsent); err != nil {
		return err
	}
	return s.advance(StageFunding)
}

// Fund builds the initial portfolio from the funding amount and activates
// the account. The target split locks in here and never changes again.
func (s *Service) Fund(amount int64) (domain.State, error) {
	acc, err := s.repo.GetAccount()
	if err != nil {
		return domain.State{}, err
	}
	if err := requireStage(acc.Stage, StageFunding); err != nil {
		return domain.State{}, err
	}
	if acc.RiskScore == nil {
		return domain.State{}, fmt.Errorf("no risk score on file")
	}
	if amount < s.pol.MinActionAmount {
		return domain.State{}, fmt.Errorf("funding amount %d below minimum %d", amount, s.pol.MinActionAmount)
	}

	split := SplitForScore(*acc.RiskScore)
	p, err := s.engine.BuildPortfolio(amount, split)
	if err != nil {
		return domain.State{}, fmt.Errorf("failed to build portfolio: %w", err)
	}

	before, err := s.portfolioRepo.LoadState()
	if err != nil {
		return domain.State{}, err
	}

	st := domain.State{Split: &split, Portfolio: p}
	if err := s.portfolioRepo.SaveState(st); err != nil {
		return domain.State{}, fmt.Errorf("failed to persist funded portfolio: %w", err)
	}
	if err := s.advance(StageActive); err != nil {
		return domain.State{}, err
	}

	if _, err := s.ledger.RecordAction("FUND", map[string]any{"amount": amount}, before, st); err != nil {
		return domain.State{}, err
	}

	s.log.Info().
		Int64("amount", amount).
		Int("score", *acc.RiskScore).
		Msgf("Account funded with split %d/%d/%d", split.Foundation, split.Growth, split.Upside)

	return st, nil
}

func (s *Service) buildProposal(score int) (Proposal, error) {
	split := SplitForScore(score)

	// Preview on a nominal amount; the real build happens at funding.
	const previewAmount = 100_000_000
	p, err := s.engine.BuildPortfolio(previewAmount, split)
	if err != nil {
		return Proposal{}, fmt.Errorf("failed to build proposal preview: %w", err)
	}

	return Proposal{
		Score:         score,
		Split:         split,
		PreviewAmount: previewAmount,
		Preview:       p.Holdings,
	}, nil
}

func (s *Service) advance(to Stage) error {
	acc, err := s.repo.GetAccount()
	if err != nil {
		return err
	}
	next, ok := Next(acc.Stage)
	if !ok || next != to {
		return fmt.Errorf("cannot advance from %s to %s", acc.Stage, to)
	}
	return s.repo.SetStage(to)
}
