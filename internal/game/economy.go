package game

import "github.com/roach88/evolve/internal/catalog"

// Yields are the derived per-action and per-second rates.
type Yields struct {
	YieldPerAction float64 `json:"yieldPerAction"`
	YieldPerSecond float64 `json:"yieldPerSecond"`
	XPPerAction    float64 `json:"xpPerAction"`
	XPPerSecond    float64 `json:"xpPerSecond"`
}

// RecomputeYields derives all rates from the two ledgers alone.
//
// Each upgrade contributes unit effect × prestige multiplier × level to
// its category. Active stats (per click) are summed first; passive
// stats are then a percentage of the finished active stat. Upgrades are
// visited in sorted id order, so the result never depends on purchase
// order or map iteration order. Ledger entries the catalog does not
// define, and non-positive levels, contribute nothing.
func RecomputeYields(c *catalog.Catalog, ledger, prestige map[string]int) Yields {
	multiplier := prestigeMultipliers(c, prestige)

	sums := make(map[catalog.EffectType]float64, len(catalog.EffectTypes))
	for _, id := range c.UpgradeIDs() {
		level := ledger[id]
		if level <= 0 {
			continue
		}
		u := c.Upgrades[id]
		sums[u.Effect.Type] += u.Effect.Value * multiplier[u.Effect.Type] * float64(level)
	}

	var y Yields
	y.YieldPerAction = BaseYieldPerAction + sums[catalog.EffectAddToClick]
	y.XPPerAction = BaseXPPerAction + sums[catalog.EffectAddToXPClick]
	y.YieldPerSecond = y.YieldPerAction * sums[catalog.EffectPassiveFromClick]
	y.XPPerSecond = y.XPPerAction * sums[catalog.EffectXPPassiveFromXPClick]
	return y
}

// prestigeMultipliers returns 1 + Σ bonusPerLevel×level per category.
func prestigeMultipliers(c *catalog.Catalog, prestige map[string]int) map[catalog.EffectType]float64 {
	out := make(map[catalog.EffectType]float64, len(catalog.EffectTypes))
	for _, t := range catalog.EffectTypes {
		out[t] = 1
	}
	for _, id := range c.PrestigeUpgradeIDs() {
		level := prestige[id]
		if level <= 0 {
			continue
		}
		p := c.PrestigeUpgrades[id]
		out[p.Category] += p.BonusPerLevel * float64(level)
	}
	return out
}

// Yields returns the rates stored in s.
func (s State) Yields() Yields {
	return Yields{
		YieldPerAction: s.YieldPerAction,
		YieldPerSecond: s.YieldPerSecond,
		XPPerAction:    s.XPPerAction,
		XPPerSecond:    s.XPPerSecond,
	}
}

func withYields(s State, y Yields) State {
	s.YieldPerAction = y.YieldPerAction
	s.YieldPerSecond = y.YieldPerSecond
	s.XPPerAction = y.XPPerAction
	s.XPPerSecond = y.XPPerSecond
	return s
}

// Refresh recomputes the derived yields of s from its ledgers. Loaded
// saves are refreshed so a catalog change is reflected immediately.
func (r *Rules) Refresh(s State) State {
	return withYields(s, RecomputeYields(r.Catalog, s.UpgradeLedger, s.PrestigeLedger))
}
