// Package simulation stress-tests an allocation against synthetic market
// scenarios. It works in float space deliberately: this is a modeling
// sandbox for comparing strategies, not the integer ledger space where real
// state lives, and nothing computed here is ever committed.
package simulation

import (
	"fmt"
	"math/rand"
	"sort"
)

// AssetProfile shapes one asset's synthetic daily returns.
type AssetProfile struct {
	DailyDrift float64 `json:"daily_drift"` // mean daily return outside the crash
	Volatility float64 `json:"volatility"`  // daily return standard deviation
	CrashDrop  float64 `json:"crash_drop"`  // total drop spread across the crash window
}

// Scenario is one synthetic market to run an allocation through.
type Scenario struct {
	Name       string                  `json:"name"`
	Days       int                     `json:"days"`
	CrashStart int                     `json:"crash_start"` // -1 disables the crash
	CrashEnd   int                     `json:"crash_end"`
	Seed       int64                   `json:"seed"`
	Profiles   map[string]AssetProfile `json:"profiles"`
}

// CrashScenario is a year with a calm bullish stretch, then a sharp
// multi-week crash, then a slow recovery. Stablecoin and gold barely move;
// the risk assets fall hard in the crash window.
func CrashScenario() Scenario {
	return Scenario{
		Name:       "crash",
		Days:       365,
		CrashStart: 100,
		CrashEnd:   130,
		Seed:       42,
		Profiles: map[string]AssetProfile{
			"USDT": {DailyDrift: 0.0000, Volatility: 0.0002, CrashDrop: 0.00},
			"PAXG": {DailyDrift: 0.0002, Volatility: 0.0080, CrashDrop: -0.05},
			"BTC":  {DailyDrift: 0.0010, Volatility: 0.0300, CrashDrop: 0.45},
			"ETH":  {DailyDrift: 0.0012, Volatility: 0.0380, CrashDrop: 0.55},
			"SOL":  {DailyDrift: 0.0015, Volatility: 0.0550, CrashDrop: 0.70},
		},
	}
}

// ChoppyScenario is a sideways year with no directional crash, just noise.
func ChoppyScenario() Scenario {
	return Scenario{
		Name:       "choppy",
		Days:       365,
		CrashStart: -1,
		CrashEnd:   -1,
		Seed:       7,
		Profiles: map[string]AssetProfile{
			"USDT": {DailyDrift: 0.0000, Volatility: 0.0002},
			"PAXG": {DailyDrift: 0.0001, Volatility: 0.0070},
			"BTC":  {DailyDrift: 0.0000, Volatility: 0.0250},
			"ETH":  {DailyDrift: 0.0000, Volatility: 0.0320},
			"SOL":  {DailyDrift: 0.0000, Volatility: 0.0480},
		},
	}
}

// Scenarios returns the built-in scenario catalogue.
func Scenarios() []Scenario {
	return []Scenario{CrashScenario(), ChoppyScenario()}
}

// ScenarioByName looks up a built-in scenario.
func ScenarioByName(name string) (Scenario, error) {
	for _, sc := range Scenarios() {
		if sc.Name == name {
			return sc, nil
		}
	}
	return Scenario{}, fmt.Errorf("unknown scenario %q", name)
}

// GenerateReturns produces seeded per-asset daily return series. The same
// scenario always yields the same series, so runs are reproducible.
func GenerateReturns(sc Scenario) map[string][]float64 {
	rng := rand.New(rand.NewSource(sc.Seed))

	crashDays := 0
	if sc.CrashStart >= 0 && sc.CrashEnd > sc.CrashStart {
		crashDays = sc.CrashEnd - sc.CrashStart
	}

	returns := make(map[string][]float64, len(sc.Profiles))
	// Deterministic iteration order so the RNG stream is stable.
	for _, assetID := range sortedAssets(sc.Profiles) {
		profile := sc.Profiles[assetID]
		series := make([]float64, sc.Days)
		for day := 0; day < sc.Days; day++ {
			r := profile.DailyDrift + profile.Volatility*rng.NormFloat64()
			if crashDays > 0 && day >= sc.CrashStart && day < sc.CrashEnd {
				r -= profile.CrashDrop / float64(crashDays)
			}
			series[day] = r
		}
		returns[assetID] = series
	}

	return returns
}

func sortedAssets(profiles map[string]AssetProfile) []string {
	assets := make([]string, 0, len(profiles))
	for assetID := range profiles {
		assets = append(assets, assetID)
	}
	sort.Strings(assets)
	return assets
}
