package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/modules/allocation"
	"github.com/blumarkets/strata/internal/modules/boundary"
	"github.com/blumarkets/strata/internal/modules/ledger"
	"github.com/blumarkets/strata/internal/policy"
)

// setupTestService creates a ledger service over an in-memory database with
// a couple of recorded actions.
func setupTestService(t *testing.T) *ledger.Service {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE entries (
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

	pol := policy.Default()
	svc := ledger.NewService(
		ledger.NewRepository(db, zerolog.Nop()),
		boundary.NewClassifier(pol),
		allocation.NewEngine(pol, zerolog.Nop()),
		pol,
		time.Now,
		zerolog.Nop(),
	)

	split := domain.TargetSplit{Foundation: 50, Growth: 35, Upside: 15}
	st := domain.State{
		Split: &split,
		Portfolio: domain.Portfolio{Holdings: []domain.Holding{
			{AssetID: "USDT", Layer: domain.LayerFoundation, Amount: 27_500_000},
			{AssetID: "PAXG", Layer: domain.LayerFoundation, Amount: 22_500_000},
			{AssetID: "BTC", Layer: domain.LayerGrowth, Amount: 21_000_000},
			{AssetID: "ETH", Layer: domain.LayerGrowth, Amount: 14_000_000},
			{AssetID: "SOL", Layer: domain.LayerUpside, Amount: 15_000_000},
		}},
	}

	_, err = svc.RecordAction("ADD_FUNDS", map[string]any{"amount": int64(5_000_000)}, st, st)
	require.NoError(t, err)
	_, err = svc.RecordAction("TRADE", map[string]any{"asset_id": "BTC"}, st, st)
	require.NoError(t, err)

	return svc
}

func TestHandleGetEntries(t *testing.T) {
	handler := NewHandler(setupTestService(t), zerolog.Nop())

	req := httptest.NewRequest("GET", "/api/ledger/entries", nil)
	w := httptest.NewRecorder()

	handler.HandleGetEntries(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]interface{}
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	assert.Contains(t, response, "data")
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["count"])

	entries := data["entries"].([]interface{})
	first := entries[0].(map[string]interface{})
	assert.Equal(t, "TRADE", first["action_type"])
}

func TestHandleGetEntriesFiltered(t *testing.T) {
	handler := NewHandler(setupTestService(t), zerolog.Nop())

	req := httptest.NewRequest("GET", "/api/ledger/entries?action_type=ADD_FUNDS", nil)
	w := httptest.NewRecorder()

	handler.HandleGetEntries(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])
}

func TestHandleGetEntryByIDNotFound(t *testing.T) {
	handler := NewHandler(setupTestService(t), zerolog.Nop())

	req := httptest.NewRequest("GET", "/api/ledger/entries/no-such-id", nil)
	w := httptest.NewRecorder()

	handler.HandleGetEntryByID(w, req, "no-such-id")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetSummary(t *testing.T) {
	handler := NewHandler(setupTestService(t), zerolog.Nop())

	req := httptest.NewRequest("GET", "/api/ledger/summary", nil)
	w := httptest.NewRecorder()

	handler.HandleGetSummary(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["total_entries"])
	assert.Equal(t, "TRADE", data["last_action_type"])
	assert.Equal(t, "SAFE", data["last_boundary"])
}

func TestRouteIntegration(t *testing.T) {
	handler := NewHandler(setupTestService(t), zerolog.Nop())

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	tests := []struct {
		name           string
		path           string
		expectedStatus int
	}{
		{"get entries", "/ledger/entries", http.StatusOK},
		{"get summary", "/ledger/summary", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}
