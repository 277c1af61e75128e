package portfolio

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/domain"
)

// ProtectionSweepJob removes protections that have lapsed. Expiry is already
// enforced at read time through ActiveAt; the sweep just keeps the table
// from accumulating dead rows.
type ProtectionSweepJob struct {
	repo  *Repository
	clock domain.Clock
	log   zerolog.Logger
}

// NewProtectionSweepJob creates a new protection sweep job
func NewProtectionSweepJob(repo *Repository, clock domain.Clock, log zerolog.Logger) *ProtectionSweepJob {
	return &ProtectionSweepJob{
		repo:  repo,
		clock: clock,
		log:   log.With().Str("job", "protection_sweep").Logger(),
	}
}

// Run executes the sweep
func (j *ProtectionSweepJob) Run() error {
	pruned, err := j.repo.PruneExpiredProtections(j.clock())
	if err != nil {
		return fmt.Errorf("protection sweep failed: %w", err)
	}

	if pruned > 0 {
		j.log.Info().Int64("pruned", pruned).Msg("Removed expired protections")
	}

	return nil
}

// Name returns the job name for scheduler
func (j *ProtectionSweepJob) Name() string {
	return "protection_sweep"
}
