package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blumarkets/strata/internal/database"
	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/modules/allocation"
	"github.com/blumarkets/strata/internal/modules/boundary"
	"github.com/blumarkets/strata/internal/modules/credit"
	"github.com/blumarkets/strata/internal/modules/ledger"
	"github.com/blumarkets/strata/internal/modules/portfolio"
	"github.com/blumarkets/strata/internal/modules/protection"
	"github.com/blumarkets/strata/internal/modules/validation"
	"github.com/blumarkets/strata/internal/policy"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	session      *Service
	flow         *Flow
	portfolioSvc *portfolio.Service
	ledgerSvc    *ledger.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	openDB := func(name string) *database.DB {
		db, err := database.New(database.Config{
			Path: fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", t.Name(), name),
			Name: name,
		})
		require.NoError(t, err)
		require.NoError(t, db.Migrate())
		t.Cleanup(func() { db.Close() })
		return db
	}

	portfolioDB := openDB("portfolio")
	ledgerDB := openDB("ledger")

	pol := policy.Default()
	nop := zerolog.Nop()
	clock := func() time.Time { return testNow }

	engine := allocation.NewEngine(pol, nop)
	classifier := boundary.NewClassifier(pol)
	creditCalc := credit.NewCalculator(pol)
	validator := validation.NewValidator(pol, engine, classifier, creditCalc, protection.NewCalculator(pol), clock, nop)
	ledgerSvc := ledger.NewService(ledger.NewRepository(ledgerDB.Conn(), nop), classifier, engine, pol, clock, nop)

	portfolioRepo := portfolio.NewRepository(portfolioDB, nop)
	require.NoError(t, portfolioRepo.EnsureAccount())
	portfolioSvc := portfolio.NewService(portfolioRepo, validator, classifier, creditCalc, ledgerSvc, pol, clock, nop)

	repo := NewRepository(portfolioDB, nop)
	sessionSvc := NewService(repo, portfolioRepo, engine, ledgerSvc, pol, clock, nop)
	flow := NewFlow(repo, portfolioSvc, clock, nop)

	return &testEnv{
		session:      sessionSvc,
		flow:         flow,
		portfolioSvc: portfolioSvc,
		ledgerSvc:    ledgerSvc,
	}
}

// onboard walks the full funnel to an active portfolio.
func (e *testEnv) onboard(t *testing.T, answers []int, amount int64) domain.State {
	t.Helper()

	_, err := e.session.SubmitPhone("+989121234567")
	require.NoError(t, err)

	_, err = e.session.SubmitQuestionnaire(answers)
	require.NoError(t, err)

	require.NoError(t, e.session.AcceptProposal())
	require.NoError(t, e.session.GiveConsent())

	st, err := e.session.Fund(amount)
	require.NoError(t, err)
	return st
}

func TestOnboardingHappyPath(t *testing.T) {
	env := newTestEnv(t)

	acc, err := env.session.Status()
	require.NoError(t, err)
	assert.Equal(t, StagePhone, acc.Stage)

	acc, err = env.session.SubmitPhone("+989121234567")
	require.NoError(t, err)
	assert.Equal(t, StageQuestionnaire, acc.Stage)
	require.NotNil(t, acc.Phone)

	proposal, err := env.session.SubmitQuestionnaire([]int{2, 2, 2, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, 50, proposal.Score)
	assert.Equal(t, domain.TargetSplit{Foundation: 50, Growth: 35, Upside: 15}, proposal.Split)
	assert.Len(t, proposal.Preview, 5)

	require.NoError(t, env.session.AcceptProposal())
	require.NoError(t, env.session.GiveConsent())

	st, err := env.session.Fund(100_000_000)
	require.NoError(t, err)

	acc, err = env.session.Status()
	require.NoError(t, err)
	assert.Equal(t, StageActive, acc.Stage)

	require.NotNil(t, st.Split)
	assert.Equal(t, int64(100_000_000), st.Portfolio.InvestedTotal())
	assert.Equal(t, int64(27_500_000), st.Portfolio.Find("USDT").Amount)
	assert.Equal(t, int64(15_000_000), st.Portfolio.Find("SOL").Amount)

	entries, err := env.ledgerSvc.History("FUND", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(100_000_000), entries[0].After.InvestedTotal)
}

func TestStageOrderEnforced(t *testing.T) {
	env := newTestEnv(t)

	// Cannot answer the questionnaire before the phone stage is done.
	_, err := env.session.SubmitQuestionnaire([]int{2, 2})
	assert.Error(t, err)

	// Cannot fund before consent.
	_, err = env.session.Fund(10_000_000)
	assert.Error(t, err)

	// Phone cannot be resubmitted after advancing.
	_, err = env.session.SubmitPhone("+989121234567")
	require.NoError(t, err)
	_, err = env.session.SubmitPhone("+989121234567")
	assert.Error(t, err)
}

func TestInvalidPhoneRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.session.SubmitPhone("not a phone")
	assert.Error(t, err)

	acc, err := env.session.Status()
	require.NoError(t, err)
	assert.Equal(t, StagePhone, acc.Stage)
}

func TestFundBelowMinimumRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.session.SubmitPhone("+989121234567")
	require.NoError(t, err)
	_, err = env.session.SubmitQuestionnaire([]int{2, 2, 2})
	require.NoError(t, err)
	require.NoError(t, env.session.AcceptProposal())
	require.NoError(t, env.session.GiveConsent())

	_, err = env.session.Fund(500_000)
	assert.Error(t, err)

	acc, err := env.session.Status()
	require.NoError(t, err)
	assert.Equal(t, StageFunding, acc.Stage)
}

func TestDraftConfirmCycle(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, []int{2, 2, 2, 2, 2}, 100_000_000)

	draft, res, err := env.flow.Draft(validation.AddFunds{Amount: 5_000_000})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, DraftPending, draft.Status)

	current, err := env.flow.Current()
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, draft.ID, current.ID)

	commit, err := env.flow.Confirm(draft.ID)
	require.NoError(t, err)
	assert.True(t, commit.Validation.Allowed)
	require.NotNil(t, commit.Entry)

	st, err := env.portfolioSvc.CurrentState()
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), st.Cash)

	// A confirmed draft cannot be confirmed twice.
	_, err = env.flow.Confirm(draft.ID)
	assert.Error(t, err)
}

func TestDraftGoesStaleWhenStateMoves(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, []int{2, 2, 2, 2, 2}, 100_000_000)

	draft, _, err := env.flow.Draft(validation.Rebalance{})
	require.NoError(t, err)

	// State moves between draft and confirm.
	_, err = env.portfolioSvc.Commit(validation.AddFunds{Amount: 5_000_000})
	require.NoError(t, err)

	_, err = env.flow.Confirm(draft.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale")

	stale, err := env.flow.Current()
	require.NoError(t, err)
	assert.Nil(t, stale)
}

func TestDraftRequiresActiveStage(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.flow.Draft(validation.AddFunds{Amount: 5_000_000})
	assert.Error(t, err)
}

func TestNewDraftReplacesOld(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, []int{2, 2, 2, 2, 2}, 100_000_000)

	first, _, err := env.flow.Draft(validation.AddFunds{Amount: 5_000_000})
	require.NoError(t, err)

	second, _, err := env.flow.Draft(validation.AddFunds{Amount: 7_000_000})
	require.NoError(t, err)

	// The first draft is gone; only the newest survives.
	_, err = env.flow.Preview(first.ID)
	assert.Error(t, err)

	current, err := env.flow.Current()
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, second.ID, current.ID)
}

func TestCancelDraft(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, []int{2, 2, 2, 2, 2}, 100_000_000)

	draft, _, err := env.flow.Draft(validation.AddFunds{Amount: 5_000_000})
	require.NoError(t, err)

	require.NoError(t, env.flow.Cancel(draft.ID))

	_, err = env.flow.Confirm(draft.ID)
	assert.Error(t, err)

	st, err := env.portfolioSvc.CurrentState()
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Cash)
}
