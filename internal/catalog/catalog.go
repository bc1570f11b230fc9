package catalog

import (
	"math"
	"sort"
	"time"
)

// EffectType is the category an upgrade contributes to.
type EffectType string

const (
	// EffectAddToClick adds a flat amount to currency per click.
	EffectAddToClick EffectType = "add_to_click"
	// EffectPassiveFromClick adds a fraction of the per-click currency as per-second currency.
	EffectPassiveFromClick EffectType = "add_passive_from_click_percentage"
	// EffectAddToXPClick adds a flat amount to experience per click.
	EffectAddToXPClick EffectType = "add_to_xp_click"
	// EffectXPPassiveFromXPClick adds a fraction of the per-click experience as per-second experience.
	EffectXPPassiveFromXPClick EffectType = "add_xp_passive_from_xp_click_percentage"
)

// EffectTypes lists every effect category in evaluation order.
var EffectTypes = []EffectType{
	EffectAddToClick,
	EffectPassiveFromClick,
	EffectAddToXPClick,
	EffectXPPassiveFromXPClick,
}

// Species is one form in the evolution chain.
type Species struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	EvolvesTo      string `json:"evolvesTo,omitempty"`
	EvolutionLevel int    `json:"evolutionLevel"`
	EvolutionStage int    `json:"evolutionStage"`
	Minigame       string `json:"minigame,omitempty"`
}

// Terminal reports whether the species has no evolution target.
func (s Species) Terminal() bool {
	return s.EvolvesTo == ""
}

// Effect is the per-level unit effect of an upgrade.
type Effect struct {
	Type  EffectType `json:"type"`
	Value float64    `json:"value"`
}

// Upgrade is a purchasable item in the upgrade ledger.
type Upgrade struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	BaseCost    float64 `json:"baseCost"`
	Effect      Effect  `json:"effect"`
}

// UpgradeCostGrowth is the per-level cost multiplier of upgrades.
const UpgradeCostGrowth = 1.15

// Cost returns the price of buying the next level when level levels are owned.
func (u Upgrade) Cost(level int) float64 {
	return math.Floor(u.BaseCost * math.Pow(UpgradeCostGrowth, float64(level)))
}

// PrestigeUpgrade multiplies the unit effect of every upgrade in Category.
type PrestigeUpgrade struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Category      EffectType `json:"category"`
	BonusPerLevel float64    `json:"bonusPerLevel"`
	BaseCost      float64    `json:"baseCost"`
}

// PrestigeCostGrowth is the per-level cost multiplier of prestige upgrades.
const PrestigeCostGrowth = 2

// Cost returns the prestige-currency price of the next level.
func (p PrestigeUpgrade) Cost(level int) float64 {
	return math.Floor(p.BaseCost * math.Pow(PrestigeCostGrowth, float64(level)))
}

// Minigame describes a minigame a species unlocks.
type Minigame struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	CooldownSeconds int    `json:"cooldownSeconds"`
}

// Cooldown returns the base cooldown window after a completion.
func (m Minigame) Cooldown() time.Duration {
	return time.Duration(m.CooldownSeconds) * time.Second
}

// Catalog is the full set of static tables.
type Catalog struct {
	StartingSpecies  string                     `json:"startingSpecies"`
	Species          map[string]Species         `json:"species"`
	Upgrades         map[string]Upgrade         `json:"upgrades"`
	PrestigeUpgrades map[string]PrestigeUpgrade `json:"prestigeUpgrades"`
	Minigames        map[string]Minigame        `json:"minigames"`
}

// LookupSpecies returns the species with the given id.
func (c *Catalog) LookupSpecies(id string) (Species, bool) {
	s, ok := c.Species[id]
	return s, ok
}

// LookupUpgrade returns the upgrade with the given id.
func (c *Catalog) LookupUpgrade(id string) (Upgrade, bool) {
	u, ok := c.Upgrades[id]
	return u, ok
}

// LookupPrestigeUpgrade returns the prestige upgrade with the given id.
func (c *Catalog) LookupPrestigeUpgrade(id string) (PrestigeUpgrade, bool) {
	p, ok := c.PrestigeUpgrades[id]
	return p, ok
}

// MinigameFor returns the minigame unlocked by a species, if any.
func (c *Catalog) MinigameFor(speciesID string) (Minigame, bool) {
	s, ok := c.Species[speciesID]
	if !ok || s.Minigame == "" {
		return Minigame{}, false
	}
	m, ok := c.Minigames[s.Minigame]
	return m, ok
}

// UpgradeIDs returns upgrade ids in sorted order. Yield recomputation
// iterates in this order so float sums never depend on map order.
func (c *Catalog) UpgradeIDs() []string {
	return sortedKeys(c.Upgrades)
}

// PrestigeUpgradeIDs returns prestige upgrade ids in sorted order.
func (c *Catalog) PrestigeUpgradeIDs() []string {
	return sortedKeys(c.PrestigeUpgrades)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
