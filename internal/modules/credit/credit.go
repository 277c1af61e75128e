// Package credit computes borrow capacity and liquidation thresholds for
// collateralized loans against single holdings.
package credit

import (
	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/policy"
)

// Capacity describes what can be borrowed against one holding.
type Capacity struct {
	AssetID        string       `json:"asset_id"`
	Layer          domain.Layer `json:"layer"`
	MaxLTV         float64      `json:"max_ltv"`
	RecommendedLTV float64      `json:"recommended_ltv"`
	// MaxBorrow and RecommendedBorrow are zero for frozen holdings.
	MaxBorrow         int64 `json:"max_borrow"`
	RecommendedBorrow int64 `json:"recommended_borrow"`
}

// Calculator derives loan figures from the per-layer policy LTV bounds.
type Calculator struct {
	pol *policy.Policy
}

// NewCalculator creates a credit calculator.
func NewCalculator(pol *policy.Policy) *Calculator {
	return &Calculator{pol: pol}
}

// CapacityOf returns the borrow capacity of a holding. A frozen holding is
// already pledged and reports zero available capacity.
func (c *Calculator) CapacityOf(h domain.Holding) Capacity {
	lp := c.pol.Layers[h.Layer]
	capacity := Capacity{
		AssetID:        h.AssetID,
		Layer:          h.Layer,
		MaxLTV:         lp.MaxLTV,
		RecommendedLTV: lp.RecommendedLTV,
	}
	if h.Frozen {
		return capacity
	}
	capacity.MaxBorrow = int64(float64(h.Amount) * lp.MaxLTV)
	capacity.RecommendedBorrow = int64(float64(h.Amount) * lp.RecommendedLTV)
	return capacity
}

// LiquidationThreshold returns the collateral value at which a loan of the
// given principal and loan-to-value is under water.
func LiquidationThreshold(principal int64, ltv float64) int64 {
	if ltv <= 0 {
		return 0
	}
	return int64(float64(principal) / ltv)
}

// NewLoan assembles a loan record for a borrow against the given holding.
func (c *Calculator) NewLoan(h domain.Holding, principal int64, ltv float64, createdAt domain.Clock) domain.Loan {
	return domain.Loan{
		CollateralAssetID:    h.AssetID,
		Principal:            principal,
		LoanToValue:          ltv,
		LiquidationThreshold: LiquidationThreshold(principal, ltv),
		CreatedAt:            createdAt(),
	}
}
