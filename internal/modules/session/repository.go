package session

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/blumarkets/strata/internal/database"
)

// DraftStatus is the lifecycle state of an action draft.
type DraftStatus string

const (
	DraftPending   DraftStatus = "DRAFT"
	DraftConfirmed DraftStatus = "CONFIRMED"
	DraftCancelled DraftStatus = "CANCELLED"
	DraftStale     DraftStatus = "STALE"
)

// Account is the onboarding-facing view of the account row.
type Account struct {
	Phone     *string `json:"phone,omitempty"`
	Stage     Stage   `json:"stage"`
	RiskScore *int    `json:"risk_score,omitempty"`
}

// draftParams is the msgpack-stable form of action parameters. Typed fields
// avoid the any-typed round-trip ambiguity of a generic map.
type draftParams struct {
	Amount      int64   `msgpack:"amount"`
	AssetID     string  `msgpack:"asset_id"`
	Side        string  `msgpack:"side"`
	Months      int     `msgpack:"months"`
	LoanToValue float64 `msgpack:"loan_to_value"`
}

// Draft is one pending action awaiting confirmation.
type Draft struct {
	ID         string      `json:"id"`
	ActionType string      `json:"action_type"`
	Params     draftParams `json:"params"`
	StateHash  string      `json:"-"`
	Status     DraftStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Repository handles session persistence: the account row's onboarding
// fields and the drafts table, both in the portfolio database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new session repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "session").Logger(),
	}
}

// GetAccount reads the onboarding fields of the account row.
func (r *Repository) GetAccount() (Account, error) {
	var acc Account
	var phone sql.NullString
	var riskScore sql.NullInt64

	err := r.db.QueryRow(`
		SELECT phone, stage, risk_score FROM account WHERE id = 1
	`).Scan(&phone, &acc.Stage, &riskScore)
	if err == sql.ErrNoRows {
		return Account{Stage: StagePhone}, nil
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to load account: %w", err)
	}

	if phone.Valid {
		acc.Phone = &phone.String
	}
	if riskScore.Valid {
		score := int(riskScore.Int64)
		acc.RiskScore = &score
	}

	return acc, nil
}

// SetPhone stores the phone number.
func (r *Repository) SetPhone(phone string) error {
	_, err := r.db.Exec(`
		UPDATE account SET phone = ?, updated_at = datetime('now') WHERE id = 1
	`, phone)
	if err != nil {
		return fmt.Errorf("failed to set phone: %w", err)
	}
	return nil
}

// SetRiskScore stores the questionnaire score.
func (r *Repository) SetRiskScore(score int) error {
	_, err := r.db.Exec(`
		UPDATE account SET risk_score = ?, updated_at = datetime('now') WHERE id = 1
	`, score)
	if err != nil {
		return fmt.Errorf("failed to set risk score: %w", err)
	}
	return nil
}

// SetStage advances the account to a new stage.
func (r *Repository) SetStage(stage Stage) error {
	_, err := r.db.Exec(`
		UPDATE account SET stage = ?, updated_at = datetime('now') WHERE id = 1
	`, string(stage))
	if err != nil {
		return fmt.Errorf("failed to set stage: %w", err)
	}
	return nil
}

// SaveDraft stores a draft, replacing any draft already in flight.
// At most one action can be pending at a time.
func (r *Repository) SaveDraft(d Draft) error {
	params, err := msgpack.Marshal(d.Params)
	if err != nil {
		return fmt.Errorf("failed to encode draft parameters: %w", err)
	}

	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM drafts"); err != nil {
			return fmt.Errorf("failed to clear previous draft: %w", err)
		}
		_, err := tx.Exec(`
			INSERT INTO drafts (id, action_type, parameters, state_hash, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, d.ID, d.ActionType, params, d.StateHash, string(d.Status),
			d.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to insert draft: %w", err)
		}
		return nil
	})
}

// GetDraft returns a draft by id, or nil when unknown.
func (r *Repository) GetDraft(id string) (*Draft, error) {
	var d Draft
	var params []byte
	var createdAt string

	err := r.db.QueryRow(`
		SELECT id, action_type, parameters, state_hash, status, created_at
		FROM drafts WHERE id = ?
	`, id).Scan(&d.ID, &d.ActionType, &params, &d.StateHash, &d.Status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft %s: %w", id, err)
	}

	if err := msgpack.Unmarshal(params, &d.Params); err != nil {
		return nil, fmt.Errorf("failed to decode draft parameters: %w", err)
	}
	d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse draft timestamp: %w", err)
	}

	return &d, nil
}

// CurrentDraft returns the pending draft, or nil when none is in flight.
func (r *Repository) CurrentDraft() (*Draft, error) {
	var id string
	err := r.db.QueryRow(`
		SELECT id FROM drafts WHERE status = ? LIMIT 1
	`, string(DraftPending)).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending draft: %w", err)
	}
	return r.GetDraft(id)
}

// SetDraftStatus updates a draft's status.
func (r *Repository) SetDraftStatus(id string, status DraftStatus) error {
	_, err := r.db.Exec(`
		UPDATE drafts SET status = ?, updated_at = datetime('now') WHERE id = ?
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update draft %s: %w", id, err)
	}
	return nil
}
