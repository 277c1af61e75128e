// Package reliability provides database backup, archival to S3-compatible
// storage, and periodic maintenance jobs.
package reliability

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/database"
)

// BackupService produces consistent local copies of the live databases.
type BackupService struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewBackupService creates a new backup service over the given databases.
func NewBackupService(databases map[string]*database.DB, log zerolog.Logger) *BackupService {
	return &BackupService{
		databases: databases,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// GetDatabaseNames returns the names of all managed databases, sorted.
func (s *BackupService) GetDatabaseNames() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BackupDatabase writes a consistent copy of one database to destPath.
func (s *BackupService) BackupDatabase(name, destPath string) error {
	db, ok := s.databases[name]
	if !ok {
		return fmt.Errorf("unknown database %q", name)
	}

	start := time.Now()
	if err := db.BackupTo(destPath); err != nil {
		return err
	}

	s.log.Debug().
		Str("database", name).
		Str("dest", destPath).
		Dur("duration_ms", time.Since(start)).
		Msg("Database backed up")

	return nil
}

// BackupAll writes timestamped copies of every database into destDir.
func (s *BackupService) BackupAll(destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02-150405")
	for _, name := range s.GetDatabaseNames() {
		destPath := filepath.Join(destDir, fmt.Sprintf("%s-%s.db", name, timestamp))
		if err := s.BackupDatabase(name, destPath); err != nil {
			return fmt.Errorf("failed to back up %s: %w", name, err)
		}
	}

	s.log.Info().Str("dest", destDir).Msg("Local backup completed")
	return nil
}

// CheckpointAll forces a WAL checkpoint on every database.
func (s *BackupService) CheckpointAll(mode string) error {
	for _, name := range s.GetDatabaseNames() {
		if err := s.databases[name].WALCheckpoint(mode); err != nil {
			return err
		}
	}
	return nil
}
