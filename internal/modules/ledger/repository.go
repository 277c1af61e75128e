package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Repository handles ledger database operations. The entries table lives in
// its own database with the full-durability profile; appends must survive
// power loss.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "ledger").Logger(),
	}
}

// Append writes a new entry and fills in its assigned sequence number.
// There is no update or delete path on this table.
func (r *Repository) Append(e *Entry) error {
	params, err := msgpack.Marshal(e.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode entry parameters: %w", err)
	}
	before, err := msgpack.Marshal(e.Before)
	if err != nil {
		return fmt.Errorf("failed to encode before snapshot: %w", err)
	}
	after, err := msgpack.Marshal(e.After)
	if err != nil {
		return fmt.Errorf("failed to encode after snapshot: %w", err)
	}

	result, err := r.db.Exec(`
		INSERT INTO entries (
			id, action_type, parameters,
			boundary_before, boundary_after,
			snapshot_before, snapshot_after, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ActionType, params,
		string(e.BoundaryBefore), string(e.BoundaryAfter),
		before, after, e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read entry sequence: %w", err)
	}
	e.Seq = seq

	return nil
}

// List returns entries in descending sequence order (newest first).
// actionType filters when non-empty.
func (r *Repository) List(actionType string, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT seq, id, action_type, parameters,
		       boundary_before, boundary_after,
		       snapshot_before, snapshot_after, created_at
		FROM entries
	`
	args := []any{}
	if actionType != "" {
		query += " WHERE action_type = ?"
		args = append(args, actionType)
	}
	query += " ORDER BY seq DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan ledger entry")
			continue
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}

// GetByID returns a single entry, or nil when it does not exist.
func (r *Repository) GetByID(id string) (*Entry, error) {
	row := r.db.QueryRow(`
		SELECT seq, id, action_type, parameters,
		       boundary_before, boundary_after,
		       snapshot_before, snapshot_after, created_at
		FROM entries
		WHERE id = ?
	`, id)

	entry, err := r.scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry %s: %w", id, err)
	}
	return &entry, nil
}

// Count returns the total number of entries.
func (r *Repository) Count() (int64, error) {
	var count int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return count, nil
}

// Last returns the most recent entry, or nil when the ledger is empty.
func (r *Repository) Last() (*Entry, error) {
	row := r.db.QueryRow(`
		SELECT seq, id, action_type, parameters,
		       boundary_before, boundary_after,
		       snapshot_before, snapshot_after, created_at
		FROM entries
		ORDER BY seq DESC
		LIMIT 1
	`)

	entry, err := r.scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last ledger entry: %w", err)
	}
	return &entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanEntry(row rowScanner) (Entry, error) {
	var (
		e         Entry
		params    []byte
		before    []byte
		after     []byte
		createdAt string
	)

	err := row.Scan(&e.Seq, &e.ID, &e.ActionType, &params,
		&e.BoundaryBefore, &e.BoundaryAfter,
		&before, &after, &createdAt)
	if err != nil {
		return Entry{}, err
	}

	if len(params) > 0 {
		if err := msgpack.Unmarshal(params, &e.Parameters); err != nil {
			return Entry{}, fmt.Errorf("failed to decode entry parameters: %w", err)
		}
	}
	if err := msgpack.Unmarshal(before, &e.Before); err != nil {
		return Entry{}, fmt.Errorf("failed to decode before snapshot: %w", err)
	}
	if err := msgpack.Unmarshal(after, &e.After); err != nil {
		return Entry{}, fmt.Errorf("failed to decode after snapshot: %w", err)
	}

	e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to parse entry timestamp: %w", err)
	}

	return e, nil
}
