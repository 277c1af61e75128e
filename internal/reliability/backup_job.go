package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const remoteBackupTimeout = 10 * time.Minute

// S3BackupJob creates a backup archive, ships it to the bucket and
// rotates old archives.
type S3BackupJob struct {
	service       *S3BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewS3BackupJob creates a new remote backup job
func NewS3BackupJob(service *S3BackupService, retentionDays int, log zerolog.Logger) *S3BackupJob {
	return &S3BackupJob{
		service:       service,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "s3_backup").Logger(),
	}
}

// Run executes the remote backup job
func (j *S3BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), remoteBackupTimeout)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return fmt.Errorf("remote backup failed: %w", err)
	}

	if err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		// The fresh archive is already uploaded; rotation can retry next run.
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	return nil
}

// Name returns the job name for scheduler
func (j *S3BackupJob) Name() string {
	return "s3_backup"
}
