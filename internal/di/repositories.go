// Package di provides dependency injection for repositories.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/modules/ledger"
	"github.com/blumarkets/strata/internal/modules/portfolio"
	"github.com/blumarkets/strata/internal/modules/session"
	"github.com/blumarkets/strata/internal/modules/settings"
)

// InitializeRepositories creates all repositories over the open databases
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	container.PortfolioRepo = portfolio.NewRepository(container.PortfolioDB, log)
	container.LedgerRepo = ledger.NewRepository(container.LedgerDB.Conn(), log)
	container.SessionRepo = session.NewRepository(container.PortfolioDB, log)
	container.SettingsRepo = settings.NewRepository(container.ConfigDB.Conn(), log)

	// The singleton account row must exist before any service touches state.
	if err := container.PortfolioRepo.EnsureAccount(); err != nil {
		return fmt.Errorf("failed to ensure account row: %w", err)
	}

	return nil
}
