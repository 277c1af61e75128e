package reliability

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// CheckpointJob forces a WAL checkpoint on every database so the WAL
// files do not grow unbounded between backups.
type CheckpointJob struct {
	backupService *BackupService
	log           zerolog.Logger
}

// NewCheckpointJob creates a new WAL checkpoint job
func NewCheckpointJob(backupService *BackupService, log zerolog.Logger) *CheckpointJob {
	return &CheckpointJob{
		backupService: backupService,
		log:           log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Run executes the checkpoint job
func (j *CheckpointJob) Run() error {
	start := time.Now()

	if err := j.backupService.CheckpointAll("TRUNCATE"); err != nil {
		return fmt.Errorf("wal checkpoint failed: %w", err)
	}

	j.log.Debug().
		Dur("duration_ms", time.Since(start)).
		Msg("WAL checkpoint completed")

	return nil
}

// Name returns the job name for scheduler
func (j *CheckpointJob) Name() string {
	return "wal_checkpoint"
}

// LocalBackupJob writes daily on-disk copies of the databases into
// dated subdirectories of backupDir and prunes directories past
// keepDays.
type LocalBackupJob struct {
	backupService *BackupService
	backupDir     string
	keepDays      int
	log           zerolog.Logger
}

// NewLocalBackupJob creates a new local backup job
func NewLocalBackupJob(backupService *BackupService, backupDir string, keepDays int, log zerolog.Logger) *LocalBackupJob {
	return &LocalBackupJob{
		backupService: backupService,
		backupDir:     backupDir,
		keepDays:      keepDays,
		log:           log.With().Str("job", "local_backup").Logger(),
	}
}

// Run executes the local backup job
func (j *LocalBackupJob) Run() error {
	day := time.Now().Format("2006-01-02")
	destDir := filepath.Join(j.backupDir, "daily", day)

	if err := j.backupService.BackupAll(destDir); err != nil {
		return fmt.Errorf("local backup failed: %w", err)
	}

	if err := j.pruneOldBackups(); err != nil {
		// Pruning failures never invalidate the backup just written.
		j.log.Warn().Err(err).Msg("Failed to prune old local backups")
	}

	return nil
}

// Name returns the job name for scheduler
func (j *LocalBackupJob) Name() string {
	return "local_backup"
}

// pruneOldBackups removes dated backup directories older than keepDays
func (j *LocalBackupJob) pruneOldBackups() error {
	if j.keepDays <= 0 {
		return nil
	}

	dailyDir := filepath.Join(j.backupDir, "daily")
	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read backup directory: %w", err)
	}

	var days []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := time.Parse("2006-01-02", entry.Name()); err != nil {
			continue
		}
		days = append(days, entry.Name())
	}
	sort.Strings(days)

	cutoff := time.Now().AddDate(0, 0, -j.keepDays).Format("2006-01-02")
	for _, day := range days {
		if day >= cutoff {
			break
		}

		if err := os.RemoveAll(filepath.Join(dailyDir, day)); err != nil {
			return fmt.Errorf("failed to remove backup %s: %w", day, err)
		}
		j.log.Info().Str("day", day).Msg("Removed old local backup")
	}

	return nil
}
