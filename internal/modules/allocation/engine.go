// Package allocation provides the pure allocation engine: building a
// portfolio from a target split, rebalancing an existing portfolio back to
// target around frozen collateral, and the buy/sell trade primitives.
//
// All functions are pure computations over explicit state values. Amounts
// are integer IRR minor units and every rounding operation is a floor; the
// remainder of each distribution is reconciled into the last holding
// processed so no value is ever lost or created.
package allocation

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/policy"
)

// ErrFrozenHolding is returned when a sell targets a pledged holding.
// The validator rejects such trades upstream; the primitive refuses as well
// so there is no defensive-depth gap.
var ErrFrozenHolding = errors.New("holding is frozen as loan collateral")

// Engine implements the allocation and trade primitives over a policy's
// weight tables.
type Engine struct {
	pol *policy.Policy
	log zerolog.Logger
}

// NewEngine creates a new allocation engine.
func NewEngine(pol *policy.Policy, log zerolog.Logger) *Engine {
	return &Engine{
		pol: pol,
		log: log.With().Str("service", "allocation").Logger(),
	}
}

// BuildPortfolio distributes totalAmount across the three layers according
// to the target split, and within each layer across the policy weight table.
// Per-layer amounts are floored; the last layer processed absorbs the
// cross-layer remainder, and within a layer the last asset absorbs the
// intra-layer remainder, so the built holdings always sum to totalAmount.
func (e *Engine) BuildPortfolio(totalAmount int64, split domain.TargetSplit) (domain.Portfolio, error) {
	if totalAmount < 0 {
		return domain.Portfolio{}, fmt.Errorf("total amount must be non-negative, got %d", totalAmount)
	}
	if err := split.Validate(); err != nil {
		return domain.Portfolio{}, err
	}

	layers := domain.Layers()
	var portfolio domain.Portfolio
	var allocated int64

	for i, layer := range layers {
		var layerAmount int64
		if i == len(layers)-1 {
			layerAmount = totalAmount - allocated
		} else {
			layerAmount = pctOf(totalAmount, split.Pct(layer))
		}
		allocated += layerAmount

		portfolio.Holdings = append(portfolio.Holdings, distributeLayer(layer, layerAmount, e.pol.AssetsOf(layer))...)
	}

	e.log.Debug().
		Int64("total", totalAmount).
		Int("holdings", len(portfolio.Holdings)).
		Msg("Built portfolio")

	return portfolio, nil
}

// RebalanceToTarget re-derives unfrozen holdings so the portfolio matches the
// target split as closely as frozen collateral allows, deploying all cash.
//
// Frozen value per layer is subtracted from the layer's target (computed
// against total value) to get unfrozen targets, floored at zero; those are
// rescaled so they exactly consume the unfrozen pool (cash plus unfrozen
// holdings). Frozen holdings are carried through unchanged. If the unfrozen
// pool is zero, or nothing unfrozen can be built, the inputs are returned
// unchanged.
func (e *Engine) RebalanceToTarget(p domain.Portfolio, cash int64, split domain.TargetSplit) (domain.Portfolio, int64) {
	frozenByLayer := make(map[domain.Layer]int64)
	frozenAssets := make(map[string]bool)
	var frozenHoldings []domain.Holding
	var totalFrozen int64

	for _, h := range p.Holdings {
		if h.Frozen {
			frozenByLayer[h.Layer] += h.Amount
			frozenAssets[h.AssetID] = true
			frozenHoldings = append(frozenHoldings, h)
			totalFrozen += h.Amount
		}
	}

	totalValue := p.InvestedTotal() + cash
	unfrozenPool := totalValue - totalFrozen
	if unfrozenPool <= 0 {
		return p, cash
	}

	layers := domain.Layers()

	// Unfrozen target per layer: layer target minus frozen coverage, floored
	// at zero so over-covered layers never claim a negative share.
	unfrozenTargets := make(map[domain.Layer]int64)
	var targetSum int64
	for _, layer := range layers {
		target := pctOf(totalValue, split.Pct(layer))
		unfrozen := target - frozenByLayer[layer]
		if unfrozen < 0 {
			unfrozen = 0
		}
		unfrozenTargets[layer] = unfrozen
		targetSum += unfrozen
	}

	// Rescale the unfrozen targets onto the unfrozen pool. When frozen
	// collateral already covers every layer target the raw split decides
	// how the pool is deployed instead.
	scaled := make(map[domain.Layer]int64)
	var scaledSum int64
	lastNonZero := domain.Layer("")
	for _, layer := range layers {
		var amount int64
		if targetSum == 0 {
			amount = pctOf(unfrozenPool, split.Pct(layer))
		} else {
			amount = int64(float64(unfrozenTargets[layer]) * float64(unfrozenPool) / float64(targetSum))
		}
		scaled[layer] = amount
		scaledSum += amount
		if amount > 0 || (targetSum == 0 && split.Pct(layer) > 0) {
			lastNonZero = layer
		}
	}
	if lastNonZero == "" {
		lastNonZero = layers[len(layers)-1]
	}
	// Rounding residue of the rescale lands on the last participating layer.
	scaled[lastNonZero] += unfrozenPool - scaledSum

	// Build fresh unfrozen holdings per layer, skipping pledged assets.
	var rebuilt []domain.Holding
	var leftover int64
	for _, layer := range layers {
		assets := make([]policy.AssetWeight, 0, len(e.pol.AssetsOf(layer)))
		for _, aw := range e.pol.AssetsOf(layer) {
			if !frozenAssets[aw.AssetID] {
				assets = append(assets, aw)
			}
		}
		if len(assets) == 0 {
			// Every asset of this layer is pledged; its share spills into
			// the final reconciliation below.
			leftover += scaled[layer]
			continue
		}
		rebuilt = append(rebuilt, distributeLayer(layer, scaled[layer], assets)...)
	}

	if len(rebuilt) == 0 {
		// Cash exists but every configured asset is frozen; nothing to do.
		return p, cash
	}
	if leftover > 0 {
		rebuilt[len(rebuilt)-1].Amount += leftover
	}

	result := domain.Portfolio{Holdings: append(rebuilt, frozenHoldings...)}

	e.log.Debug().
		Int64("total_value", totalValue).
		Int64("frozen", totalFrozen).
		Int64("deployed", unfrozenPool).
		Msg("Rebalanced to target")

	return result, 0
}

// Trade applies a buy or sell against a single holding.
//
// BUY spends min(cash, amount) from cash into the named holding, creating it
// if absent (the asset must exist in the policy universe). SELL moves
// min(holding, amount) from the holding into cash and refuses frozen
// holdings. Unknown assets indicate a caller bug and fail loudly.
func (e *Engine) Trade(p domain.Portfolio, cash int64, assetID string, side domain.Side, amount int64) (domain.Portfolio, int64, error) {
	if amount <= 0 {
		return p, cash, fmt.Errorf("trade amount must be positive, got %d", amount)
	}

	out := p.Clone()

	switch side {
	case domain.SideBuy:
		layer, ok := e.pol.LayerOf(assetID)
		if !ok {
			return p, cash, fmt.Errorf("asset %s is not in the configured universe", assetID)
		}
		spend := amount
		if spend > cash {
			spend = cash
		}
		if h := out.Find(assetID); h != nil {
			h.Amount += spend
		} else {
			out.Holdings = append(out.Holdings, domain.Holding{AssetID: assetID, Layer: layer, Amount: spend})
		}
		return out, cash - spend, nil

	case domain.SideSell:
		h := out.Find(assetID)
		if h == nil {
			return p, cash, fmt.Errorf("asset %s is not held in the portfolio", assetID)
		}
		if h.Frozen {
			return p, cash, ErrFrozenHolding
		}
		move := amount
		if move > h.Amount {
			move = h.Amount
		}
		h.Amount -= move
		return out, cash + move, nil

	default:
		return p, cash, fmt.Errorf("unknown trade side %q", side)
	}
}

// pctOf computes floor(amount*pct/100) without overflowing int64 on amounts
// near the type's limit. pct is a whole percentage in [0, 100].
func pctOf(amount int64, pct int) int64 {
	p := int64(pct)
	return amount/100*p + amount%100*p/100
}

// distributeLayer splits layerAmount across the weight table with floored
// per-asset amounts; the last asset receives the remainder so the layer's
// holdings sum exactly to layerAmount.
func distributeLayer(layer domain.Layer, layerAmount int64, assets []policy.AssetWeight) []domain.Holding {
	holdings := make([]domain.Holding, 0, len(assets))
	var allocated int64
	for i, aw := range assets {
		var amount int64
		if i == len(assets)-1 {
			amount = layerAmount - allocated
		} else {
			amount = int64(float64(layerAmount) * aw.Weight)
		}
		allocated += amount
		holdings = append(holdings, domain.Holding{
			AssetID: aw.AssetID,
			Layer:   layer,
			Amount:  amount,
		})
	}
	return holdings
}
