package settings

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", "file:settings_test?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			description TEXT,
			updated_at INTEGER NOT NULL
		)
	`)
	require.NoError(t, err)

	_, err = db.Exec("DELETE FROM settings")
	require.NoError(t, err)

	return NewRepository(db, zerolog.Nop())
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo := newTestRepository(t)

	value, err := repo.Get("does_not_exist")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestSetAndGet(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Set("backup_bucket", "strata-backups", nil))

	value, err := repo.Get("backup_bucket")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "strata-backups", *value)
}

func TestSetUpdatesExisting(t *testing.T) {
	repo := newTestRepository(t)

	desc := "suggestion threshold in percentage points"
	require.NoError(t, repo.Set("rebalance_suggest_pct", "5", &desc))
	require.NoError(t, repo.Set("rebalance_suggest_pct", "7", nil))

	value, err := repo.Get("rebalance_suggest_pct")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "7", *value)
}

func TestGetFloat(t *testing.T) {
	repo := newTestRepository(t)

	got, err := repo.GetFloat("missing", 2.5)
	require.NoError(t, err)
	assert.Equal(t, 2.5, got)

	require.NoError(t, repo.SetFloat("threshold", 12.75))
	got, err = repo.GetFloat("threshold", 0)
	require.NoError(t, err)
	assert.Equal(t, 12.75, got)

	require.NoError(t, repo.Set("garbage", "not-a-number", nil))
	got, err = repo.GetFloat("garbage", 3.0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)
}

func TestGetInt(t *testing.T) {
	repo := newTestRepository(t)

	got, err := repo.GetInt("missing", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	require.NoError(t, repo.SetInt("retention", 14))
	got, err = repo.GetInt("retention", 0)
	require.NoError(t, err)
	assert.Equal(t, 14, got)

	// Float-formatted values truncate rather than fail.
	require.NoError(t, repo.Set("float_int", "12.0", nil))
	got, err = repo.GetInt("float_int", 0)
	require.NoError(t, err)
	assert.Equal(t, 12, got)
}

func TestGetBool(t *testing.T) {
	repo := newTestRepository(t)

	got, err := repo.GetBool("missing", true)
	require.NoError(t, err)
	assert.True(t, got)

	for _, truthy := range []string{"true", "1", "yes", "on"} {
		require.NoError(t, repo.Set("flag", truthy, nil))
		got, err = repo.GetBool("flag", false)
		require.NoError(t, err)
		assert.True(t, got, "value %q should be truthy", truthy)
	}

	require.NoError(t, repo.SetBool("flag", false))
	got, err = repo.GetBool("flag", true)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestGetAll(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Set("a", "1", nil))
	require.NoError(t, repo.Set("b", "2", nil))

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, all)
}

func TestDelete(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Set("doomed", "x", nil))
	require.NoError(t, repo.Delete("doomed"))

	value, err := repo.Get("doomed")
	require.NoError(t, err)
	assert.Nil(t, value)

	// Deleting a missing key is not an error.
	require.NoError(t, repo.Delete("doomed"))
}
