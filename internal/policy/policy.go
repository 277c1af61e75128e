// Package policy holds the static policy inputs consumed by the core:
// per-layer asset weight tables, premium rates, loan-to-value bounds, and
// the boundary/drift thresholds. Policy is supplied from outside the core
// (YAML file with defaults), never derived from user data.
package policy

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/blumarkets/strata/internal/domain"
)

// AssetWeight is a single entry of a layer's weight table. Weights within a
// layer sum to 1.0; the last asset of the table absorbs rounding remainders.
type AssetWeight struct {
	AssetID string  `yaml:"asset_id"`
	Weight  float64 `yaml:"weight"`
}

// LayerPolicy holds the per-layer configuration.
type LayerPolicy struct {
	Weights        []AssetWeight `yaml:"weights"`
	PremiumRate    float64       `yaml:"premium_rate"`     // per 3 months, as a fraction
	MaxLTV         float64       `yaml:"max_ltv"`          // hard maximum loan-to-value
	RecommendedLTV float64       `yaml:"recommended_ltv"`  // soft ceiling, warn above
}

// DriftThresholds are the ascending total-drift cut-offs, in percentage
// points, mapping onto SAFE / DRIFT / STRUCTURAL / STRESS.
type DriftThresholds struct {
	Drift      float64 `yaml:"drift"`
	Structural float64 `yaml:"structural"`
	Stress     float64 `yaml:"stress"`
}

// Policy is the full static policy set.
type Policy struct {
	Layers map[domain.Layer]LayerPolicy `yaml:"layers"`

	MinActionAmount int64 `yaml:"min_action_amount"` // IRR minor units

	FoundationMinPct float64 `yaml:"foundation_min_pct"`
	UpsideMaxPct     float64 `yaml:"upside_max_pct"`

	Drift DriftThresholds `yaml:"drift_thresholds"`

	// RebalanceSuggestPct is the total-drift level above which a rebalance
	// is worth suggesting after an action.
	RebalanceSuggestPct float64 `yaml:"rebalance_suggest_pct"`

	// LiquidationBufferPct is the proximity band around the liquidation
	// threshold that classifies as STRESS (10 = within 10%).
	LiquidationBufferPct float64 `yaml:"liquidation_buffer_pct"`
}

// Default returns the built-in policy matching the product defaults:
// the five-asset universe (USDT/PAXG foundation, BTC/ETH growth, SOL upside),
// a 1,000,000 IRR action minimum, 40% foundation floor, 25% upside cap and
// 5/10/20 drift thresholds.
func Default() *Policy {
	return &Policy{
		Layers: map[domain.Layer]LayerPolicy{
			domain.LayerFoundation: {
				Weights: []AssetWeight{
					{AssetID: "USDT", Weight: 0.55},
					{AssetID: "PAXG", Weight: 0.45},
				},
				PremiumRate:    0.01,
				MaxLTV:         0.50,
				RecommendedLTV: 0.35,
			},
			domain.LayerGrowth: {
				Weights: []AssetWeight{
					{AssetID: "BTC", Weight: 0.60},
					{AssetID: "ETH", Weight: 0.40},
				},
				PremiumRate:    0.02,
				MaxLTV:         0.40,
				RecommendedLTV: 0.25,
			},
			domain.LayerUpside: {
				Weights: []AssetWeight{
					{AssetID: "SOL", Weight: 1.00},
				},
				PremiumRate:    0.035,
				MaxLTV:         0.25,
				RecommendedLTV: 0.15,
			},
		},
		MinActionAmount:      1_000_000,
		FoundationMinPct:     40,
		UpsideMaxPct:         25,
		Drift:                DriftThresholds{Drift: 5, Structural: 10, Stress: 20},
		RebalanceSuggestPct:  5,
		LiquidationBufferPct: 10,
	}
}

// Load reads a policy YAML file. A missing path returns the defaults.
// Values present in the file override defaults wholesale per top-level key.
func Load(path string) (*Policy, error) {
	pol := Default()
	if path == "" {
		return pol, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return pol, nil
		}
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	if err := yaml.Unmarshal(data, pol); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}

	return pol, nil
}

// Validate checks internal consistency of the policy set.
func (p *Policy) Validate() error {
	for _, layer := range domain.Layers() {
		lp, ok := p.Layers[layer]
		if !ok {
			return fmt.Errorf("layer %s missing from policy", layer)
		}
		if len(lp.Weights) == 0 {
			return fmt.Errorf("layer %s has empty weight table", layer)
		}
		var sum float64
		seen := make(map[string]bool)
		for _, aw := range lp.Weights {
			if aw.AssetID == "" {
				return fmt.Errorf("layer %s has weight entry without asset id", layer)
			}
			if seen[aw.AssetID] {
				return fmt.Errorf("layer %s lists asset %s twice", layer, aw.AssetID)
			}
			seen[aw.AssetID] = true
			if aw.Weight <= 0 {
				return fmt.Errorf("layer %s asset %s has non-positive weight", layer, aw.AssetID)
			}
			sum += aw.Weight
		}
		if math.Abs(sum-1.0) > 1e-9 {
			return fmt.Errorf("layer %s weights sum to %f, want 1.0", layer, sum)
		}
		if lp.MaxLTV <= 0 || lp.MaxLTV >= 1 {
			return fmt.Errorf("layer %s max LTV %f out of (0,1)", layer, lp.MaxLTV)
		}
		if lp.RecommendedLTV <= 0 || lp.RecommendedLTV > lp.MaxLTV {
			return fmt.Errorf("layer %s recommended LTV %f out of (0, max]", layer, lp.RecommendedLTV)
		}
		if lp.PremiumRate <= 0 {
			return fmt.Errorf("layer %s has non-positive premium rate", layer)
		}
	}

	// No asset may appear in two layers.
	byAsset := make(map[string]domain.Layer)
	for _, layer := range domain.Layers() {
		for _, aw := range p.Layers[layer].Weights {
			if other, dup := byAsset[aw.AssetID]; dup {
				return fmt.Errorf("asset %s appears in both %s and %s", aw.AssetID, other, layer)
			}
			byAsset[aw.AssetID] = layer
		}
	}

	if p.MinActionAmount <= 0 {
		return fmt.Errorf("min action amount must be positive")
	}
	if p.FoundationMinPct < 0 || p.FoundationMinPct > 100 {
		return fmt.Errorf("foundation minimum %f out of [0,100]", p.FoundationMinPct)
	}
	if p.UpsideMaxPct < 0 || p.UpsideMaxPct > 100 {
		return fmt.Errorf("upside maximum %f out of [0,100]", p.UpsideMaxPct)
	}
	if !(p.Drift.Drift < p.Drift.Structural && p.Drift.Structural < p.Drift.Stress) {
		return fmt.Errorf("drift thresholds must be strictly ascending: %+v", p.Drift)
	}
	return nil
}

// LayerOf returns the layer an asset belongs to.
func (p *Policy) LayerOf(assetID string) (domain.Layer, bool) {
	for _, layer := range domain.Layers() {
		for _, aw := range p.Layers[layer].Weights {
			if aw.AssetID == assetID {
				return layer, true
			}
		}
	}
	return "", false
}

// AssetsOf returns the weight table for a layer, in allocation order.
func (p *Policy) AssetsOf(layer domain.Layer) []AssetWeight {
	return p.Layers[layer].Weights
}
