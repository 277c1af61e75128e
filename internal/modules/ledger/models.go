// Package ledger provides the append-only audit trail of committed actions.
// Every state transition writes exactly one entry; rows are never updated or
// deleted, so the ledger replays the full history of the portfolio.
package ledger

import (
	"time"

	"github.com/blumarkets/strata/internal/domain"
)

// Snapshot is the compact per-entry view of portfolio state. It captures
// layer totals rather than individual holdings so entries stay small while
// remaining enough to audit every boundary transition.
type Snapshot struct {
	Foundation    int64 `json:"foundation" msgpack:"foundation"`
	Growth        int64 `json:"growth" msgpack:"growth"`
	Upside        int64 `json:"upside" msgpack:"upside"`
	Cash          int64 `json:"cash" msgpack:"cash"`
	InvestedTotal int64 `json:"invested_total" msgpack:"invested_total"`
}

// SnapshotOf collapses a full state into a ledger snapshot.
func SnapshotOf(s domain.State) Snapshot {
	return Snapshot{
		Foundation:    s.Portfolio.LayerTotal(domain.LayerFoundation),
		Growth:        s.Portfolio.LayerTotal(domain.LayerGrowth),
		Upside:        s.Portfolio.LayerTotal(domain.LayerUpside),
		Cash:          s.Cash,
		InvestedTotal: s.Portfolio.InvestedTotal(),
	}
}

// Entry is a single committed action in the audit trail.
type Entry struct {
	Seq            int64                `json:"seq"`
	ID             string               `json:"id"`
	ActionType     string               `json:"action_type"`
	Parameters     map[string]any       `json:"parameters,omitempty"`
	BoundaryBefore domain.BoundaryState `json:"boundary_before"`
	BoundaryAfter  domain.BoundaryState `json:"boundary_after"`
	Before         Snapshot             `json:"before"`
	After          Snapshot             `json:"after"`
	CreatedAt      time.Time            `json:"created_at"`
}
