// Package di provides dependency injection type definitions.
//
// The Container is the single source of truth for all service instances
// and is handed to the server for route registration.
package di

import (
	"github.com/blumarkets/strata/internal/database"
	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/modules/allocation"
	"github.com/blumarkets/strata/internal/modules/boundary"
	"github.com/blumarkets/strata/internal/modules/credit"
	"github.com/blumarkets/strata/internal/modules/ledger"
	"github.com/blumarkets/strata/internal/modules/portfolio"
	"github.com/blumarkets/strata/internal/modules/protection"
	"github.com/blumarkets/strata/internal/modules/session"
	"github.com/blumarkets/strata/internal/modules/settings"
	"github.com/blumarkets/strata/internal/modules/simulation"
	"github.com/blumarkets/strata/internal/modules/validation"
	"github.com/blumarkets/strata/internal/policy"
	"github.com/blumarkets/strata/internal/reliability"
)

// Container holds all dependencies for the application.
type Container struct {
	// Databases
	PortfolioDB *database.DB // Authoritative portfolio state, account and drafts
	LedgerDB    *database.DB // Append-only action history
	ConfigDB    *database.DB // Settings key-value store

	// Policy and clock
	Policy *policy.Policy
	Clock  domain.Clock

	// Calculators - stateless domain logic
	Engine         *allocation.Engine
	Classifier     *boundary.Classifier
	CreditCalc     *credit.Calculator
	ProtectionCalc *protection.Calculator
	Validator      *validation.Validator

	// Repositories - data access layer
	PortfolioRepo *portfolio.Repository
	LedgerRepo    *ledger.Repository
	SessionRepo   *session.Repository
	SettingsRepo  *settings.Repository

	// Services - business logic layer
	LedgerService    *ledger.Service
	PortfolioService *portfolio.Service
	SessionService   *session.Service
	SessionFlow      *session.Flow
	Simulator        *simulation.Simulator

	// Reliability
	BackupService   *reliability.BackupService
	S3BackupService *reliability.S3BackupService // nil when remote backups are not configured
}

// Close closes all database connections
func (c *Container) Close() {
	if c.PortfolioDB != nil {
		c.PortfolioDB.Close()
	}
	if c.LedgerDB != nil {
		c.LedgerDB.Close()
	}
	if c.ConfigDB != nil {
		c.ConfigDB.Close()
	}
}
