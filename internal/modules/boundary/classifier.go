// Package boundary maps a portfolio state onto the ordered severity scale
// SAFE < DRIFT < STRUCTURAL < STRESS.
//
// Hard constraints are checked first: a foundation share below the policy
// minimum, an upside share above the policy maximum, or loan collateral
// within the liquidation buffer classify STRESS regardless of drift. Absent
// hard violations the total drift is compared against the ascending policy
// thresholds. Classification is pure and total; a state with no split or no
// holdings is SAFE.
package boundary

import (
	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/modules/exposure"
	"github.com/blumarkets/strata/internal/policy"
)

// Classifier derives boundary states from policy thresholds.
type Classifier struct {
	pol *policy.Policy
}

// NewClassifier creates a boundary classifier.
func NewClassifier(pol *policy.Policy) *Classifier {
	return &Classifier{pol: pol}
}

// Classify returns the boundary state of the given state snapshot.
func (c *Classifier) Classify(s domain.State) domain.BoundaryState {
	if s.Split == nil || s.TotalValue() <= 0 {
		return domain.BoundarySafe
	}

	pct := exposure.Of(s.Portfolio, s.Cash)

	if pct.Foundation < c.pol.FoundationMinPct {
		return domain.BoundaryStress
	}
	if pct.Upside > c.pol.UpsideMaxPct {
		return domain.BoundaryStress
	}
	if c.collateralNearLiquidation(s) {
		return domain.BoundaryStress
	}

	drift := exposure.DriftOf(pct, *s.Split)
	switch {
	case drift.Total >= c.pol.Drift.Stress:
		return domain.BoundaryStress
	case drift.Total >= c.pol.Drift.Structural:
		return domain.BoundaryStructural
	case drift.Total >= c.pol.Drift.Drift:
		return domain.BoundaryDrift
	default:
		return domain.BoundarySafe
	}
}

// collateralNearLiquidation reports whether the active loan's collateral
// value sits within the policy buffer of its liquidation threshold.
func (c *Classifier) collateralNearLiquidation(s domain.State) bool {
	if s.Loan == nil {
		return false
	}
	h := s.Portfolio.Find(s.Loan.CollateralAssetID)
	if h == nil {
		return false
	}
	buffer := float64(s.Loan.LiquidationThreshold) * (1 + c.pol.LiquidationBufferPct/100)
	return float64(h.Amount) <= buffer
}
