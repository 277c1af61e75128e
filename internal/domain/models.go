// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"time"
)

// Layer represents one of the three risk tiers that partition the portfolio.
type Layer string

const (
	LayerFoundation Layer = "FOUNDATION"
	LayerGrowth     Layer = "GROWTH"
	LayerUpside     Layer = "UPSIDE"
)

// Layers returns all layers in canonical processing order.
// Allocation and reconciliation always walk layers in this order, so the
// UPSIDE layer is the designated absorber of cross-layer rounding remainders.
func Layers() []Layer {
	return []Layer{LayerFoundation, LayerGrowth, LayerUpside}
}

// Side represents the direction of a trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// BoundaryState is the ordered severity classification of a portfolio.
// It is always derived from state, never stored as independent truth.
type BoundaryState string

const (
	BoundarySafe       BoundaryState = "SAFE"
	BoundaryDrift      BoundaryState = "DRIFT"
	BoundaryStructural BoundaryState = "STRUCTURAL"
	BoundaryStress     BoundaryState = "STRESS"
)

// Rank returns the severity rank of the boundary state (SAFE=0 .. STRESS=3).
func (b BoundaryState) Rank() int {
	switch b {
	case BoundaryDrift:
		return 1
	case BoundaryStructural:
		return 2
	case BoundaryStress:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether b is at least as severe as other.
func (b BoundaryState) AtLeast(other BoundaryState) bool {
	return b.Rank() >= other.Rank()
}

// Holding represents a single asset position. Amounts are integer IRR minor
// units. A frozen holding is pledged as loan collateral and cannot be sold or
// re-targeted by rebalancing.
type Holding struct {
	AssetID string `json:"asset_id"`
	Layer   Layer  `json:"layer"`
	Amount  int64  `json:"amount"`
	Frozen  bool   `json:"frozen"`
}

// Portfolio owns an insertion-ordered collection of holdings, unique by asset.
type Portfolio struct {
	Holdings []Holding `json:"holdings"`
}

// InvestedTotal returns the sum of all holding amounts.
func (p Portfolio) InvestedTotal() int64 {
	var total int64
	for _, h := range p.Holdings {
		total += h.Amount
	}
	return total
}

// LayerTotal returns the sum of holding amounts tagged with the given layer.
func (p Portfolio) LayerTotal(layer Layer) int64 {
	var total int64
	for _, h := range p.Holdings {
		if h.Layer == layer {
			total += h.Amount
		}
	}
	return total
}

// Find returns a pointer to the holding for the given asset, or nil.
func (p *Portfolio) Find(assetID string) *Holding {
	for i := range p.Holdings {
		if p.Holdings[i].AssetID == assetID {
			return &p.Holdings[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the portfolio.
func (p Portfolio) Clone() Portfolio {
	holdings := make([]Holding, len(p.Holdings))
	copy(holdings, p.Holdings)
	return Portfolio{Holdings: holdings}
}

// TargetSplit holds the per-layer target percentages. Set once at onboarding
// completion and immutable thereafter.
type TargetSplit struct {
	Foundation int `json:"foundation"`
	Growth     int `json:"growth"`
	Upside     int `json:"upside"`
}

// Pct returns the target percentage for a layer.
func (t TargetSplit) Pct(layer Layer) int {
	switch layer {
	case LayerFoundation:
		return t.Foundation
	case LayerGrowth:
		return t.Growth
	case LayerUpside:
		return t.Upside
	}
	return 0
}

// Validate checks that the split percentages are non-negative and sum to 100.
func (t TargetSplit) Validate() error {
	if t.Foundation < 0 || t.Growth < 0 || t.Upside < 0 {
		return fmt.Errorf("target split has negative percentage: %+v", t)
	}
	if sum := t.Foundation + t.Growth + t.Upside; sum != 100 {
		return fmt.Errorf("target split must sum to 100, got %d", sum)
	}
	return nil
}

// Loan represents the single active collateralized loan of a portfolio.
// The collateral holding is frozen for the lifetime of the loan.
type Loan struct {
	CollateralAssetID    string  `json:"collateral_asset_id"`
	Principal            int64   `json:"principal"`
	LoanToValue          float64 `json:"loan_to_value"`
	LiquidationThreshold int64   `json:"liquidation_threshold"`
	CreatedAt            time.Time `json:"created_at"`
}

// Protection is a time-boxed, premium-funded hedge on a specific holding.
// It lapses naturally at expiry; queries must treat expired entries as inactive.
type Protection struct {
	AssetID     string    `json:"asset_id"`
	Layer       Layer     `json:"layer"`
	PremiumPaid int64     `json:"premium_paid"`
	Months      int       `json:"months"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ActiveAt reports whether the protection is still active at the given time.
func (p Protection) ActiveAt(now time.Time) bool {
	return now.Before(p.ExpiresAt)
}

// State is the authoritative, serializable snapshot every core computation
// works on. It is threaded explicitly through all calls; nothing in the core
// holds ambient mutable state.
type State struct {
	Split       *TargetSplit `json:"split,omitempty"`
	Portfolio   Portfolio    `json:"portfolio"`
	Cash        int64        `json:"cash"`
	Loan        *Loan        `json:"loan,omitempty"`
	Protections []Protection `json:"protections,omitempty"`
}

// TotalValue returns invested total plus uninvested cash.
func (s State) TotalValue() int64 {
	return s.Portfolio.InvestedTotal() + s.Cash
}

// ActiveProtection returns the active protection for an asset, or nil.
func (s State) ActiveProtection(assetID string, now time.Time) *Protection {
	for i := range s.Protections {
		p := &s.Protections[i]
		if p.AssetID == assetID && p.ActiveAt(now) {
			return p
		}
	}
	return nil
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := State{
		Portfolio: s.Portfolio.Clone(),
		Cash:      s.Cash,
	}
	if s.Split != nil {
		split := *s.Split
		out.Split = &split
	}
	if s.Loan != nil {
		loan := *s.Loan
		out.Loan = &loan
	}
	if len(s.Protections) > 0 {
		out.Protections = make([]Protection, len(s.Protections))
		copy(out.Protections, s.Protections)
	}
	return out
}

// Clock abstracts time for protection expiry and liquidation-date arithmetic.
type Clock func() time.Time
