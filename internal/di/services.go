// Package di provides dependency injection for services.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/config"
	"github.com/blumarkets/strata/internal/database"
	"github.com/blumarkets/strata/internal/modules/allocation"
	"github.com/blumarkets/strata/internal/modules/boundary"
	"github.com/blumarkets/strata/internal/modules/credit"
	"github.com/blumarkets/strata/internal/modules/ledger"
	"github.com/blumarkets/strata/internal/modules/portfolio"
	"github.com/blumarkets/strata/internal/modules/protection"
	"github.com/blumarkets/strata/internal/modules/session"
	"github.com/blumarkets/strata/internal/modules/simulation"
	"github.com/blumarkets/strata/internal/modules/validation"
	"github.com/blumarkets/strata/internal/policy"
	"github.com/blumarkets/strata/internal/reliability"
)

// InitializeServices creates all calculators and services.
// Repositories must be initialized first.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	pol := policy.Default()
	if cfg.PolicyPath != "" {
		loaded, err := policy.Load(cfg.PolicyPath)
		if err != nil {
			return fmt.Errorf("failed to load policy from %s: %w", cfg.PolicyPath, err)
		}
		pol = loaded
		log.Info().Str("path", cfg.PolicyPath).Msg("Loaded policy overrides")
	}
	container.Policy = pol
	container.Clock = time.Now

	container.Engine = allocation.NewEngine(pol, log)
	container.Classifier = boundary.NewClassifier(pol)
	container.CreditCalc = credit.NewCalculator(pol)
	container.ProtectionCalc = protection.NewCalculator(pol)
	container.Validator = validation.NewValidator(
		pol,
		container.Engine,
		container.Classifier,
		container.CreditCalc,
		container.ProtectionCalc,
		container.Clock,
		log,
	)

	container.LedgerService = ledger.NewService(
		container.LedgerRepo,
		container.Classifier,
		container.Engine,
		pol,
		container.Clock,
		log,
	)

	container.PortfolioService = portfolio.NewService(
		container.PortfolioRepo,
		container.Validator,
		container.Classifier,
		container.CreditCalc,
		container.LedgerService,
		pol,
		container.Clock,
		log,
	)

	container.SessionService = session.NewService(
		container.SessionRepo,
		container.PortfolioRepo,
		container.Engine,
		container.LedgerService,
		pol,
		container.Clock,
		log,
	)
	container.SessionFlow = session.NewFlow(
		container.SessionRepo,
		container.PortfolioService,
		container.Clock,
		log,
	)

	container.Simulator = simulation.NewSimulator(pol, log)

	container.BackupService = reliability.NewBackupService(map[string]*database.DB{
		"portfolio": container.PortfolioDB,
		"ledger":    container.LedgerDB,
		"config":    container.ConfigDB,
	}, log)

	if cfg.Backup.RemoteEnabled() {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Endpoint:        cfg.Backup.S3Endpoint,
			Region:          cfg.Backup.S3Region,
			Bucket:          cfg.Backup.S3Bucket,
			AccessKeyID:     cfg.Backup.S3AccessKeyID,
			SecretAccessKey: cfg.Backup.S3SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize s3 client: %w", err)
		}

		container.S3BackupService = reliability.NewS3BackupService(
			s3Client,
			container.BackupService,
			cfg.DataDir,
			log,
		)
		log.Info().Str("bucket", cfg.Backup.S3Bucket).Msg("Remote backups enabled")
	} else {
		log.Info().Msg("Remote backups disabled, no bucket configured")
	}

	return nil
}
