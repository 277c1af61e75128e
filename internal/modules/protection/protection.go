// Package protection prices time-boxed loss protection on single holdings
// and answers active-protection queries.
package protection

import (
	"time"

	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/policy"
)

// Calculator prices protection from the per-layer policy premium rates.
type Calculator struct {
	pol *policy.Policy
}

// NewCalculator creates a protection calculator.
func NewCalculator(pol *policy.Policy) *Calculator {
	return &Calculator{pol: pol}
}

// Premium returns the up-front cost of protecting a holding for the given
// number of months. Rates are quoted per 3 months and scale linearly;
// the result is floor-truncated.
func (c *Calculator) Premium(h domain.Holding, months int) int64 {
	if months <= 0 {
		return 0
	}
	rate := c.pol.Layers[h.Layer].PremiumRate
	return int64(float64(h.Amount) * rate * float64(months) / 3)
}

// NewProtection assembles a protection record starting at now.
func (c *Calculator) NewProtection(h domain.Holding, months int, now time.Time) domain.Protection {
	return domain.Protection{
		AssetID:     h.AssetID,
		Layer:       h.Layer,
		PremiumPaid: c.Premium(h, months),
		Months:      months,
		ExpiresAt:   now.AddDate(0, months, 0),
	}
}

// Active filters a protection list down to entries still active at now.
// Expired entries are left in place by the caller; they lapse naturally.
func Active(protections []domain.Protection, now time.Time) []domain.Protection {
	var out []domain.Protection
	for _, p := range protections {
		if p.ActiveAt(now) {
			out = append(out, p)
		}
	}
	return out
}
