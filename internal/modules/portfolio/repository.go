// Package portfolio persists the single-account portfolio state and commits
// validated actions against it.
package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/database"
	"github.com/blumarkets/strata/internal/domain"
)

// Repository handles portfolio state persistence. The deployment is strictly
// single account, so the account row is keyed to id=1 and holdings, the loan
// and protections belong to it implicitly.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "portfolio").Logger(),
	}
}

// EnsureAccount creates the account row if it does not exist yet.
func (r *Repository) EnsureAccount() error {
	_, err := r.db.Exec(`
		INSERT INTO account (id, stage, cash)
		VALUES (1, 'PHONE', 0)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure account row: %w", err)
	}
	return nil
}

// LoadState reads the full portfolio state.
func (r *Repository) LoadState() (domain.State, error) {
	var st domain.State

	var splitF, splitG, splitU sql.NullInt64
	err := r.db.QueryRow(`
		SELECT split_foundation, split_growth, split_upside, cash
		FROM account WHERE id = 1
	`).Scan(&splitF, &splitG, &splitU, &st.Cash)
	if err == sql.ErrNoRows {
		return domain.State{}, nil
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("failed to load account: %w", err)
	}

	if splitF.Valid && splitG.Valid && splitU.Valid {
		st.Split = &domain.TargetSplit{
			Foundation: int(splitF.Int64),
			Growth:     int(splitG.Int64),
			Upside:     int(splitU.Int64),
		}
	}

	rows, err := r.db.Query(`
		SELECT asset_id, layer, amount, frozen
		FROM holdings
		ORDER BY rowid
	`)
	if err != nil {
		return domain.State{}, fmt.Errorf("failed to load holdings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h domain.Holding
		var frozen int
		if err := rows.Scan(&h.AssetID, &h.Layer, &h.Amount, &frozen); err != nil {
			return domain.State{}, fmt.Errorf("failed to scan holding: %w", err)
		}
		h.Frozen = frozen == 1
		st.Portfolio.Holdings = append(st.Portfolio.Holdings, h)
	}
	if err := rows.Err(); err != nil {
		return domain.State{}, fmt.Errorf("error iterating holdings: %w", err)
	}

	loan, err := r.loadLoan()
	if err != nil {
		return domain.State{}, err
	}
	st.Loan = loan

	protections, err := r.loadProtections()
	if err != nil {
		return domain.State{}, err
	}
	st.Protections = protections

	return st, nil
}

func (r *Repository) loadLoan() (*domain.Loan, error) {
	var loan domain.Loan
	var createdAt string
	err := r.db.QueryRow(`
		SELECT collateral_asset_id, principal, loan_to_value, liquidation_threshold, created_at
		FROM loans WHERE id = 1
	`).Scan(&loan.CollateralAssetID, &loan.Principal, &loan.LoanToValue,
		&loan.LiquidationThreshold, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load loan: %w", err)
	}

	loan.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse loan timestamp: %w", err)
	}
	return &loan, nil
}

func (r *Repository) loadProtections() ([]domain.Protection, error) {
	rows, err := r.db.Query(`
		SELECT asset_id, layer, premium_paid, months, expires_at
		FROM protections
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load protections: %w", err)
	}
	defer rows.Close()

	var protections []domain.Protection
	for rows.Next() {
		var p domain.Protection
		var expiresAt string
		if err := rows.Scan(&p.AssetID, &p.Layer, &p.PremiumPaid, &p.Months, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan protection: %w", err)
		}
		p.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse protection expiry: %w", err)
		}
		protections = append(protections, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating protections: %w", err)
	}

	return protections, nil
}

// SaveState writes the full state in a single transaction. Holdings, the
// loan row and protections are replaced wholesale so the database always
// mirrors one validated state, never a partial mix of two.
func (r *Repository) SaveState(st domain.State) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		var splitF, splitG, splitU any
		if st.Split != nil {
			splitF, splitG, splitU = st.Split.Foundation, st.Split.Growth, st.Split.Upside
		}

		_, err := tx.Exec(`
			UPDATE account
			SET split_foundation = ?, split_growth = ?, split_upside = ?,
			    cash = ?, updated_at = datetime('now')
			WHERE id = 1
		`, splitF, splitG, splitU, st.Cash)
		if err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM holdings"); err != nil {
			return fmt.Errorf("failed to clear holdings: %w", err)
		}
		for _, h := range st.Portfolio.Holdings {
			frozen := 0
			if h.Frozen {
				frozen = 1
			}
			_, err := tx.Exec(`
				INSERT INTO holdings (asset_id, layer, amount, frozen)
				VALUES (?, ?, ?, ?)
			`, h.AssetID, string(h.Layer), h.Amount, frozen)
			if err != nil {
				return fmt.Errorf("failed to insert holding %s: %w", h.AssetID, err)
			}
		}

		if _, err := tx.Exec("DELETE FROM loans"); err != nil {
			return fmt.Errorf("failed to clear loan: %w", err)
		}
		if st.Loan != nil {
			_, err := tx.Exec(`
				INSERT INTO loans (id, collateral_asset_id, principal, loan_to_value, liquidation_threshold, created_at)
				VALUES (1, ?, ?, ?, ?, ?)
			`, st.Loan.CollateralAssetID, st.Loan.Principal, st.Loan.LoanToValue,
				st.Loan.LiquidationThreshold, st.Loan.CreatedAt.UTC().Format(time.RFC3339Nano))
			if err != nil {
				return fmt.Errorf("failed to insert loan: %w", err)
			}
		}

		if _, err := tx.Exec("DELETE FROM protections"); err != nil {
			return fmt.Errorf("failed to clear protections: %w", err)
		}
		for _, p := range st.Protections {
			_, err := tx.Exec(`
				INSERT INTO protections (asset_id, layer, premium_paid, months, expires_at)
				VALUES (?, ?, ?, ?, ?)
			`, p.AssetID, string(p.Layer), p.PremiumPaid, p.Months,
				p.ExpiresAt.UTC().Format(time.RFC3339Nano))
			if err != nil {
				return fmt.Errorf("failed to insert protection for %s: %w", p.AssetID, err)
			}
		}

		return nil
	})
}

// PruneExpiredProtections deletes protection rows that expired before the
// given time. Returns the number of rows removed.
func (r *Repository) PruneExpiredProtections(now time.Time) (int64, error) {
	result, err := r.db.Exec(`
		DELETE FROM protections WHERE expires_at <= ?
	`, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired protections: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned protections: %w", err)
	}
	return n, nil
}
