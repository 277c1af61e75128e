package ledger

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/modules/allocation"
	"github.com/blumarkets/strata/internal/modules/boundary"
	"github.com/blumarkets/strata/internal/policy"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := sql.Open("sqlite", "file:ledger_test?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			action_type TEXT NOT NULL,
			parameters BLOB,
			boundary_before TEXT NOT NULL,
			boundary_after TEXT NOT NULL,
			snapshot_before BLOB NOT NULL,
			snapshot_after BLOB NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	require.NoError(t, err)

	_, err = db.Exec("DELETE FROM entries")
	require.NoError(t, err)

	pol := policy.Default()
	repo := NewRepository(db, zerolog.Nop())
	classifier := boundary.NewClassifier(pol)
	engine := allocation.NewEngine(pol, zerolog.Nop())
	clock := func() time.Time { return testNow }

	return NewService(repo, classifier, engine, pol, clock, zerolog.Nop())
}

func onTargetState() domain.State {
	split := domain.TargetSplit{Foundation: 50, Growth: 35, Upside: 15}
	return domain.State{
		Split: &split,
		Portfolio: domain.Portfolio{Holdings: []domain.Holding{
			{AssetID: "USDT", Layer: domain.LayerFoundation, Amount: 27_500_000},
			{AssetID: "PAXG", Layer: domain.LayerFoundation, Amount: 22_500_000},
			{AssetID: "BTC", Layer: domain.LayerGrowth, Amount: 21_000_000},
			{AssetID: "ETH", Layer: domain.LayerGrowth, Amount: 14_000_000},
			{AssetID: "SOL", Layer: domain.LayerUpside, Amount: 15_000_000},
		}},
	}
}

func TestRecordActionAssignsSequence(t *testing.T) {
	svc := newTestService(t)

	before := onTargetState()
	after := before.Clone()
	after.Cash = 5_000_000

	entry, err := svc.RecordAction("ADD_FUNDS", map[string]any{"amount": int64(5_000_000)}, before, after)
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Seq)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, domain.BoundarySafe, entry.BoundaryBefore)

	second, err := svc.RecordAction("REBALANCE", nil, after, before)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Seq)
}

func TestRecordActionSnapshots(t *testing.T) {
	svc := newTestService(t)

	before := onTargetState()
	after := before.Clone()
	after.Cash = 2_000_000

	entry, err := svc.RecordAction("ADD_FUNDS", nil, before, after)
	require.NoError(t, err)

	assert.Equal(t, int64(50_000_000), entry.Before.Foundation)
	assert.Equal(t, int64(35_000_000), entry.Before.Growth)
	assert.Equal(t, int64(15_000_000), entry.Before.Upside)
	assert.Equal(t, int64(100_000_000), entry.Before.InvestedTotal)
	assert.Equal(t, int64(0), entry.Before.Cash)
	assert.Equal(t, int64(2_000_000), entry.After.Cash)
	assert.Equal(t, testNow, entry.CreatedAt)
}

func TestHistoryNewestFirstRoundTrips(t *testing.T) {
	svc := newTestService(t)

	st := onTargetState()
	_, err := svc.RecordAction("ADD_FUNDS", map[string]any{"amount": int64(1_000_000)}, st, st)
	require.NoError(t, err)
	_, err = svc.RecordAction("TRADE", map[string]any{"asset_id": "BTC", "side": "BUY"}, st, st)
	require.NoError(t, err)

	entries, err := svc.History("", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "TRADE", entries[0].ActionType)
	assert.Equal(t, "ADD_FUNDS", entries[1].ActionType)
	assert.Equal(t, "BTC", entries[0].Parameters["asset_id"])
	assert.Equal(t, testNow, entries[0].CreatedAt)

	filtered, err := svc.History("TRADE", 10, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "TRADE", filtered[0].ActionType)

	count, err := svc.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestEntryByID(t *testing.T) {
	svc := newTestService(t)

	st := onTargetState()
	recorded, err := svc.RecordAction("REBALANCE", nil, st, st)
	require.NoError(t, err)

	found, err := svc.Entry(recorded.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, recorded.Seq, found.Seq)

	missing, err := svc.Entry("no-such-id")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRebalanceWorthSuggesting(t *testing.T) {
	svc := newTestService(t)

	// On target: nothing to suggest.
	assert.False(t, svc.RebalanceWorthSuggesting(onTargetState()))

	// No split yet: never suggest.
	noSplit := onTargetState()
	noSplit.Split = nil
	assert.False(t, svc.RebalanceWorthSuggesting(noSplit))

	// Heavy cash inflow pushes foundation share up well past the threshold,
	// and deploying the cash would fix it.
	drifted := onTargetState()
	drifted.Cash = 30_000_000
	assert.True(t, svc.RebalanceWorthSuggesting(drifted))

	// Fully frozen growth collateral with drift the rebalance cannot touch:
	// the skew is inside frozen holdings, so no suggestion.
	frozen := onTargetState()
	for i := range frozen.Portfolio.Holdings {
		frozen.Portfolio.Holdings[i].Frozen = true
	}
	frozen.Portfolio.Holdings[2].Amount = 40_000_000
	assert.False(t, svc.RebalanceWorthSuggesting(frozen))
}
