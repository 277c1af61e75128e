package simulation

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/policy"
)

const (
	// Rebalance triggers, in total drift percentage points.
	rebalanceTriggerPct = 5.0
	emergencyTriggerPct = 10.0

	// Scheduled rebalances only run on a weekly cadence; emergencies run
	// same day.
	checkIntervalDays = 7

	// Friction on traded volume. Slippage doubles in turbulent tape.
	feeRate          = 0.003
	slippageRate     = 0.002
	turbulenceVolPct = 0.02
	trailingWindow   = 5

	// Annual risk-free rate for the Sharpe ratio. Matches local
	// fixed-income yields, which is the honest opportunity cost here.
	riskFreeAnnual = 0.20
)

// Report is the outcome of one simulation run, with a buy-and-hold shadow
// portfolio as the baseline.
type Report struct {
	Scenario       string             `json:"scenario"`
	Days           int                `json:"days"`
	InitialValue   float64            `json:"initial_value"`
	FinalValue     float64            `json:"final_value"`
	TotalReturnPct float64            `json:"total_return_pct"`
	MaxDrawdownPct float64            `json:"max_drawdown_pct"`
	VolatilityPct  float64            `json:"volatility_pct"` // daily, annualized
	SharpeRatio    float64            `json:"sharpe_ratio"`
	RebalanceCount int                `json:"rebalance_count"`
	EmergencyCount int                `json:"emergency_count"`
	FrictionPaid   float64            `json:"friction_paid"`
	BuyHold        BaselineReport     `json:"buy_hold"`
	Split          domain.TargetSplit `json:"split"`
}

// BaselineReport summarizes the no-rebalancing shadow portfolio.
type BaselineReport struct {
	FinalValue     float64 `json:"final_value"`
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// Simulator runs an allocation through scenarios using the same weight
// tables and drift triggers the live engine uses.
type Simulator struct {
	pol *policy.Policy
	log zerolog.Logger
}

// NewSimulator creates a simulator.
func NewSimulator(pol *policy.Policy, log zerolog.Logger) *Simulator {
	return &Simulator{
		pol: pol,
		log: log.With().Str("service", "simulation").Logger(),
	}
}

// Run simulates the scenario for an initial amount and target split.
func (s *Simulator) Run(sc Scenario, initial float64, split domain.TargetSplit) (Report, error) {
	if err := split.Validate(); err != nil {
		return Report{}, err
	}
	if initial <= 0 {
		return Report{}, fmt.Errorf("initial amount must be positive")
	}
	if sc.Days <= 0 {
		return Report{}, fmt.Errorf("scenario %q has no days", sc.Name)
	}
	for _, layer := range domain.Layers() {
		for _, aw := range s.pol.AssetsOf(layer) {
			if _, ok := sc.Profiles[aw.AssetID]; !ok {
				return Report{}, fmt.Errorf("scenario %q has no profile for %s", sc.Name, aw.AssetID)
			}
		}
	}

	returns := GenerateReturns(sc)

	holdings := s.seedHoldings(initial, split)

	values := make([]float64, 0, sc.Days+1)
	values = append(values, initial)
	dailyReturns := make([]float64, 0, sc.Days)

	var rebalances, emergencies int
	var frictionPaid float64

	for day := 0; day < sc.Days; day++ {
		prev := totalOf(holdings)

		for assetID := range holdings {
			holdings[assetID] *= 1 + returns[assetID][day]
		}

		drift := s.totalDrift(holdings, split)
		emergency := drift > emergencyTriggerPct
		scheduled := drift > rebalanceTriggerPct && day%checkIntervalDays == 0
		if emergency || scheduled {
			cost := s.rebalance(holdings, split, s.turbulent(dailyReturns))
			frictionPaid += cost
			rebalances++
			if emergency {
				emergencies++
			}
		}

		value := totalOf(holdings)
		values = append(values, value)
		if prev > 0 {
			dailyReturns = append(dailyReturns, value/prev-1)
		}
	}

	final := totalOf(holdings)
	baselineValues := baselinePath(initial, split, s, returns, sc.Days)

	report := Report{
		Scenario:       sc.Name,
		Days:           sc.Days,
		InitialValue:   initial,
		FinalValue:     final,
		TotalReturnPct: (final/initial - 1) * 100,
		MaxDrawdownPct: maxDrawdown(values) * 100,
		VolatilityPct:  stat.StdDev(dailyReturns, nil) * math.Sqrt(365) * 100,
		SharpeRatio:    sharpe(dailyReturns),
		RebalanceCount: rebalances,
		EmergencyCount: emergencies,
		FrictionPaid:   frictionPaid,
		Split:          split,
		BuyHold: BaselineReport{
			FinalValue:     baselineValues[len(baselineValues)-1],
			TotalReturnPct: (baselineValues[len(baselineValues)-1]/initial - 1) * 100,
			MaxDrawdownPct: maxDrawdown(baselineValues) * 100,
		},
	}

	s.log.Info().
		Str("scenario", sc.Name).
		Float64("final_value", report.FinalValue).
		Float64("max_drawdown_pct", report.MaxDrawdownPct).
		Int("rebalances", report.RebalanceCount).
		Msg("Simulation complete")

	return report, nil
}

// seedHoldings distributes the initial amount per the split and the layer
// weight tables, mirroring the live allocation build in float space.
func (s *Simulator) seedHoldings(initial float64, split domain.TargetSplit) map[string]float64 {
	holdings := make(map[string]float64)
	for _, layer := range domain.Layers() {
		layerAmount := initial * float64(split.Pct(layer)) / 100
		for _, aw := range s.pol.AssetsOf(layer) {
			holdings[aw.AssetID] = layerAmount * aw.Weight
		}
	}
	return holdings
}

// totalDrift mirrors the live drift measure: sum of absolute per-layer
// deviations from target, in percentage points.
func (s *Simulator) totalDrift(holdings map[string]float64, split domain.TargetSplit) float64 {
	total := totalOf(holdings)
	if total <= 0 {
		return 0
	}

	var drift float64
	for _, layer := range domain.Layers() {
		var layerValue float64
		for _, aw := range s.pol.AssetsOf(layer) {
			layerValue += holdings[aw.AssetID]
		}
		actualPct := layerValue / total * 100
		drift += math.Abs(actualPct - float64(split.Pct(layer)))
	}
	return drift
}

// rebalance re-targets holdings to the split and returns the friction paid.
// Friction applies to one side of the traded volume.
func (s *Simulator) rebalance(holdings map[string]float64, split domain.TargetSplit, turbulent bool) float64 {
	total := totalOf(holdings)
	if total <= 0 {
		return 0
	}

	slippage := slippageRate
	if turbulent {
		slippage *= 2
	}

	var traded float64
	targets := s.seedHoldings(total, split)
	for assetID, target := range targets {
		diff := target - holdings[assetID]
		if diff > 0 {
			traded += diff
		}
	}

	cost := traded * (feeRate + slippage)

	// Apply targets, then deduct the cost proportionally.
	scale := (total - cost) / total
	for assetID, target := range targets {
		holdings[assetID] = target * scale
	}

	return cost
}

// turbulent reports whether trailing realized volatility is elevated.
func (s *Simulator) turbulent(dailyReturns []float64) bool {
	if len(dailyReturns) < trailingWindow {
		return false
	}
	window := dailyReturns[len(dailyReturns)-trailingWindow:]
	return stat.StdDev(window, nil) > turbulenceVolPct
}

func baselinePath(initial float64, split domain.TargetSplit, s *Simulator, returns map[string][]float64, days int) []float64 {
	holdings := s.seedHoldings(initial, split)
	values := make([]float64, 0, days+1)
	values = append(values, initial)
	for day := 0; day < days; day++ {
		for assetID := range holdings {
			holdings[assetID] *= 1 + returns[assetID][day]
		}
		values = append(values, totalOf(holdings))
	}
	return values
}

func totalOf(holdings map[string]float64) float64 {
	var total float64
	for _, v := range holdings {
		total += v
	}
	return total
}

// maxDrawdown returns the deepest peak-to-trough loss as a fraction.
func maxDrawdown(values []float64) float64 {
	var peak, worst float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpe computes the annualized Sharpe ratio of daily returns against the
// fixed risk-free rate.
func sharpe(dailyReturns []float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(dailyReturns, nil)
	if std == 0 {
		return 0
	}
	rfDaily := riskFreeAnnual / 365
	return (mean - rfDaily) / std * math.Sqrt(365)
}
