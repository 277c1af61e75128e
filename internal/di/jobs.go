// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/config"
	"github.com/blumarkets/strata/internal/modules/portfolio"
	"github.com/blumarkets/strata/internal/reliability"
	"github.com/blumarkets/strata/internal/scheduler"
)

// JobInstances holds job instances for scheduling and manual triggering
type JobInstances struct {
	ProtectionSweep scheduler.Job
	Checkpoint      scheduler.Job
	LocalBackup     scheduler.Job
	S3Backup        scheduler.Job // nil when remote backups are not configured
}

// RegisterJobs creates all background job instances
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	instances := &JobInstances{
		ProtectionSweep: portfolio.NewProtectionSweepJob(container.PortfolioRepo, container.Clock, log),
		Checkpoint:      reliability.NewCheckpointJob(container.BackupService, log),
		LocalBackup: reliability.NewLocalBackupJob(
			container.BackupService,
			filepath.Join(cfg.DataDir, "backups"),
			cfg.Backup.LocalKeepDays,
			log,
		),
	}

	if container.S3BackupService != nil {
		instances.S3Backup = reliability.NewS3BackupJob(
			container.S3BackupService,
			cfg.Backup.RetentionDays,
			log,
		)
	}

	return instances, nil
}
