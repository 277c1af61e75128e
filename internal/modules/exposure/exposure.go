// Package exposure derives current layer percentages from holdings plus
// uninvested cash and measures their drift against the target split.
package exposure

import "github.com/blumarkets/strata/internal/domain"

// Percentages holds the current share of total value per layer, in
// percentage points. Uninvested cash counts toward FOUNDATION as an
// unallocated safety buffer.
type Percentages struct {
	Foundation float64 `json:"foundation"`
	Growth     float64 `json:"growth"`
	Upside     float64 `json:"upside"`
}

// Of returns the layer percentage breakdown for a portfolio and cash balance.
// A zero total yields zero percentages.
func Of(p domain.Portfolio, cash int64) Percentages {
	total := p.InvestedTotal() + cash
	if total <= 0 {
		return Percentages{}
	}

	return Percentages{
		Foundation: float64(p.LayerTotal(domain.LayerFoundation)+cash) / float64(total) * 100,
		Growth:     float64(p.LayerTotal(domain.LayerGrowth)) / float64(total) * 100,
		Upside:     float64(p.LayerTotal(domain.LayerUpside)) / float64(total) * 100,
	}
}

// Pct returns the percentage for a layer.
func (p Percentages) Pct(layer domain.Layer) float64 {
	switch layer {
	case domain.LayerFoundation:
		return p.Foundation
	case domain.LayerGrowth:
		return p.Growth
	case domain.LayerUpside:
		return p.Upside
	}
	return 0
}

// Drift reports how far current percentages sit from the target split.
// Signed per-layer differences are current minus target. Total and Max are
// reported separately; rebalance suggestions key off Total while single-layer
// policies key off Max.
type Drift struct {
	Foundation float64 `json:"foundation"`
	Growth     float64 `json:"growth"`
	Upside     float64 `json:"upside"`
	Total      float64 `json:"total"`
	Max        float64 `json:"max"`
}

// DriftOf compares current percentages against a target split.
func DriftOf(current Percentages, target domain.TargetSplit) Drift {
	d := Drift{
		Foundation: current.Foundation - float64(target.Foundation),
		Growth:     current.Growth - float64(target.Growth),
		Upside:     current.Upside - float64(target.Upside),
	}
	for _, v := range []float64{d.Foundation, d.Growth, d.Upside} {
		abs := v
		if abs < 0 {
			abs = -abs
		}
		d.Total += abs
		if abs > d.Max {
			d.Max = abs
		}
	}
	return d
}

// StateDrift is a convenience over Of and DriftOf for a full state value.
// A state without a split has zero drift.
func StateDrift(s domain.State) Drift {
	if s.Split == nil {
		return Drift{}
	}
	return DriftOf(Of(s.Portfolio, s.Cash), *s.Split)
}
