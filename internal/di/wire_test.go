package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blumarkets/strata/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir: t.TempDir(),
		Backup:  &config.BackupConfig{LocalKeepDays: 7, RetentionDays: 30},
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.PortfolioDB)
	assert.NotNil(t, container.LedgerDB)
	assert.NotNil(t, container.ConfigDB)

	assert.NotNil(t, container.Policy)
	assert.NotNil(t, container.Clock)
	assert.NotNil(t, container.Validator)

	assert.NotNil(t, container.PortfolioRepo)
	assert.NotNil(t, container.LedgerRepo)
	assert.NotNil(t, container.SessionRepo)
	assert.NotNil(t, container.SettingsRepo)

	assert.NotNil(t, container.LedgerService)
	assert.NotNil(t, container.PortfolioService)
	assert.NotNil(t, container.SessionService)
	assert.NotNil(t, container.SessionFlow)
	assert.NotNil(t, container.Simulator)
	assert.NotNil(t, container.BackupService)

	// No bucket configured, so remote backups stay off.
	assert.Nil(t, container.S3BackupService)

	require.NotNil(t, jobs)
	assert.NotNil(t, jobs.ProtectionSweep)
	assert.NotNil(t, jobs.Checkpoint)
	assert.NotNil(t, jobs.LocalBackup)
	assert.Nil(t, jobs.S3Backup)
}

func TestWireCreatesAccountRow(t *testing.T) {
	cfg := testConfig(t)

	container, _, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	// The singleton account row must exist so state loads cleanly.
	st, err := container.PortfolioRepo.LoadState()
	require.NoError(t, err)
	assert.Nil(t, st.Split)
	assert.Equal(t, int64(0), st.Cash)
	assert.Empty(t, st.Portfolio.Holdings)
}

func TestWireLoadsPolicyOverrides(t *testing.T) {
	cfg := testConfig(t)
	cfg.PolicyPath = filepath.Join(cfg.DataDir, "policy.yaml")
	require.NoError(t, os.WriteFile(cfg.PolicyPath, []byte("min_action_amount: 5000000\n"), 0644))

	container, _, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.Equal(t, int64(5_000_000), container.Policy.MinActionAmount)
}

func TestWireJobsRunnable(t *testing.T) {
	cfg := testConfig(t)

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NoError(t, jobs.ProtectionSweep.Run())
	assert.NoError(t, jobs.Checkpoint.Run())
	assert.NoError(t, jobs.LocalBackup.Run())
}
