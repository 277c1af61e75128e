package portfolio

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
	"github.com/blumarkets/strata/internal/modules/protection"
	"github.com/blumarkets/strata/internal/modules/validation"
	"github.com/blumarkets/strata/internal/policy"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path: fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", t.Name(), name),
		Name: name,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	return db
}

func newTestService(t *testing.T) (*Service, *ledger.Service) {
	t.Helper()

	portfolioDB := openTestDB(t, "portfolio")
	ledgerDB := openTestDB(t, "ledger")

	pol := policy.Default()
	clock := func() time.Time { return testNow }
	nop := zerolog.Nop()

	engine := allocation.NewEngine(pol, nop)
	classifier := boundary.NewClassifier(pol)
	creditCalc := credit.NewCalculator(pol)
	protectionCalc := protection.NewCalculator(pol)
	validator := validation.NewValidator(pol, engine, classifier, creditCalc, protectionCalc, clock, nop)

	ledgerSvc := ledger.NewService(ledger.NewRepository(ledgerDB.Conn(), nop), classifier, engine, pol, clock, nop)

	repo := NewRepository(portfolioDB, nop)
	require.NoError(t, repo.EnsureAccount())

	svc := NewService(repo, validator, classifier, creditCalc, ledgerSvc, pol, clock, nop)

	// Seed an active on-target portfolio.
	split := domain.TargetSplit{Foundation: 50, Growth: 35, Upside: 15}
	require.NoError(t, repo.SaveState(domain.State{
		Split: &split,
		Portfolio: domain.Portfolio{Holdings: []domain.Holding{
			{AssetID: "USDT", Layer: domain.LayerFoundation, Amount: 27_500_000},
			{AssetID: "PAXG", Layer: domain.LayerFoundation, Amount: 22_500_000},
			{AssetID: "BTC", Layer: domain.LayerGrowth, Amount: 21_000_000},
			{AssetID: "ETH", Layer: domain.LayerGrowth, Amount: 14_000_000},
			{AssetID: "SOL", Layer: domain.LayerUpside, Amount: 15_000_000},
		}},
	}))

	return svc, ledgerSvc
}

func TestStateRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)

	st, err := svc.CurrentState()
	require.NoError(t, err)

	require.NotNil(t, st.Split)
	assert.Equal(t, domain.TargetSplit{Foundation: 50, Growth: 35, Upside: 15}, *st.Split)
	assert.Len(t, st.Portfolio.Holdings, 5)
	assert.Equal(t, int64(100_000_000), st.Portfolio.InvestedTotal())
	assert.Equal(t, int64(0), st.Cash)
	assert.Nil(t, st.Loan)
	assert.Empty(t, st.Protections)

	// Holdings keep insertion order; the remainder absorber stays last in
	// its layer.
	assert.Equal(t, "USDT", st.Portfolio.Holdings[0].AssetID)
	assert.Equal(t, "SOL", st.Portfolio.Holdings[4].AssetID)
}

func TestLoanAndProtectionRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)

	st, err := svc.CurrentState()
	require.NoError(t, err)

	st.Portfolio.Find("PAXG").Frozen = true
	st.Loan = &domain.Loan{
		CollateralAssetID:    "PAXG",
		Principal:            10_000_000,
		LoanToValue:          0.5,
		LiquidationThreshold: 20_000_000,
		CreatedAt:            testNow,
	}
	st.Protections = []domain.Protection{{
		AssetID:     "BTC",
		Layer:       domain.LayerGrowth,
		PremiumPaid: 420_000,
		Months:      3,
		ExpiresAt:   testNow.AddDate(0, 3, 0),
	}}

	require.NoError(t, svc.repo.SaveState(st))

	loaded, err := svc.CurrentState()
	require.NoError(t, err)

	require.NotNil(t, loaded.Loan)
	assert.Equal(t, "PAXG", loaded.Loan.CollateralAssetID)
	assert.Equal(t, int64(20_000_000), loaded.Loan.LiquidationThreshold)
	assert.True(t, loaded.Loan.CreatedAt.Equal(testNow))
	assert.True(t, loaded.Portfolio.Find("PAXG").Frozen)

	require.Len(t, loaded.Protections, 1)
	assert.Equal(t, int64(420_000), loaded.Protections[0].PremiumPaid)
	assert.True(t, loaded.Protections[0].ExpiresAt.Equal(testNow.AddDate(0, 3, 0)))
}

func TestCommitAddFunds(t *testing.T) {
	svc, ledgerSvc := newTestService(t)

	res, err := svc.Commit(validation.AddFunds{Amount: 5_000_000})
	require.NoError(t, err)

	assert.True(t, res.Validation.Allowed)
	require.NotNil(t, res.Entry)
	assert.Equal(t, "ADD_FUNDS", res.Entry.ActionType)
	assert.Equal(t, int64(0), res.Entry.Before.Cash)
	assert.Equal(t, int64(5_000_000), res.Entry.After.Cash)

	st, err := svc.CurrentState()
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), st.Cash)

	count, err := ledgerSvc.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCommitDeniedChangesNothing(t *testing.T) {
	svc, ledgerSvc := newTestService(t)

	// Below the action minimum.
	res, err := svc.Commit(validation.AddFunds{Amount: 500})
	require.NoError(t, err)

	assert.False(t, res.Validation.Allowed)
	assert.Nil(t, res.Entry)

	st, err := svc.CurrentState()
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Cash)

	count, err := ledgerSvc.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestCommitBorrowThenRepay(t *testing.T) {
	svc, _ := newTestService(t)

	borrow, err := svc.Commit(validation.Borrow{AssetID: "PAXG", Amount: 5_000_000, LoanToValue: 0.3})
	require.NoError(t, err)
	require.True(t, borrow.Validation.Allowed)

	st, err := svc.CurrentState()
	require.NoError(t, err)
	require.NotNil(t, st.Loan)
	assert.True(t, st.Portfolio.Find("PAXG").Frozen)
	// Principal is disbursed externally, not into the cash balance.
	assert.Equal(t, int64(0), st.Cash)

	// Repayment needs cash covering the principal.
	_, err = svc.Commit(validation.AddFunds{Amount: 5_000_000})
	require.NoError(t, err)

	repay, err := svc.Commit(validation.RepayLoan{})
	require.NoError(t, err)
	require.True(t, repay.Validation.Allowed)

	st, err = svc.CurrentState()
	require.NoError(t, err)
	assert.Nil(t, st.Loan)
	assert.False(t, st.Portfolio.Find("PAXG").Frozen)
	assert.Equal(t, int64(0), st.Cash)
}

func TestCommitSuggestsRebalanceAfterSkewingTrade(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Commit(validation.AddFunds{Amount: 30_000_000})
	require.NoError(t, err)

	// A small buy leaves most of the cash idle; foundation exposure
	// (including cash) is far above target, so a rebalance helps.
	res, err := svc.Commit(validation.Trade{AssetID: "SOL", Side: domain.SideBuy, Amount: 2_000_000})
	require.NoError(t, err)
	require.True(t, res.Validation.Allowed)
	assert.True(t, res.SuggestRebalance)

	// After rebalancing the suggestion goes away.
	reb, err := svc.Commit(validation.Rebalance{})
	require.NoError(t, err)
	require.True(t, reb.Validation.Allowed)
	assert.False(t, reb.SuggestRebalance)

	st, err := svc.CurrentState()
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Cash)
	assert.Equal(t, int64(130_000_000), st.TotalValue())
}

func TestSummarize(t *testing.T) {
	svc, _ := newTestService(t)

	summary, err := svc.Summarize()
	require.NoError(t, err)

	assert.Equal(t, int64(100_000_000), summary.TotalValue)
	assert.Equal(t, domain.BoundarySafe, summary.Boundary)
	assert.InDelta(t, 50.0, summary.Percentages.Foundation, 0.001)
	assert.InDelta(t, 0.0, summary.Drift.Total, 0.001)
	assert.Len(t, summary.Holdings, 5)
	// No loan outstanding: every holding reports borrow capacity.
	assert.Len(t, summary.Capacities, 5)
	assert.NotEmpty(t, summary.TotalDisplay)
}
