package game

import (
	"time"

	"github.com/roach88/evolve/internal/catalog"
)

// Balance holds the tunable constants that are not part of the catalog.
type Balance struct {
	// BaseCritChance is the probability of a critical click with no buffs.
	BaseCritChance float64
	// CritMultiplier scales click currency on a critical click.
	CritMultiplier float64
	// BaseCooldown overrides every minigame's catalog cooldown when > 0.
	BaseCooldown time.Duration
	// MaxOffline caps offline catch-up. Zero means unlimited.
	MaxOffline time.Duration
}

// DefaultBalance returns the shipped balance constants.
func DefaultBalance() Balance {
	return Balance{
		BaseCritChance: 0.05,
		CritMultiplier: 2,
	}
}

// fallbackCooldown is used when a completed minigame is no longer in the catalog.
const fallbackCooldown = 60 * time.Second

// Rules binds the reducers to a catalog and balance constants.
type Rules struct {
	Catalog *catalog.Catalog
	Balance Balance
}

// NewRules creates Rules for a catalog.
func NewRules(c *catalog.Catalog, b Balance) *Rules {
	return &Rules{Catalog: c, Balance: b}
}

// Initial returns the starting state for the rules' catalog.
func (r *Rules) Initial() State {
	return Initial(r.Catalog)
}

// Status is the result category of a reducer call.
type Status string

const (
	StatusOK                Status = "ok"
	StatusNoop              Status = "noop"
	StatusInsufficientFunds Status = "insufficient_funds"
	StatusLocked            Status = "locked"
	StatusNoMinigame        Status = "no_minigame"
	StatusCoolingDown       Status = "cooling_down"
	StatusMinigameActive    Status = "minigame_active"
	StatusNoActiveMinigame  Status = "no_active_minigame"
)

// Changed reports whether a reducer with this status produced a new state.
func (s Status) Changed() bool {
	return s == StatusOK
}

// Outcome describes what a reducer did.
type Outcome struct {
	Status   Status   `json:"status"`
	Progress Progress `json:"progress"`

	CurrencyDelta float64 `json:"currencyDelta,omitempty"`
	ExpGained     float64 `json:"expGained,omitempty"`
	Crit          bool    `json:"crit,omitempty"`
	Cost          float64 `json:"cost,omitempty"`
	PrestigeGain  float64 `json:"prestigeGain,omitempty"`
	Reward        *Reward `json:"reward,omitempty"`
}

// Progress records the level-ups and evolutions of one experience injection.
type Progress struct {
	LevelsGained int      `json:"levelsGained,omitempty"`
	Evolutions   []string `json:"evolutions,omitempty"`
}

// Merge appends the progress of a later injection.
func (p Progress) Merge(o Progress) Progress {
	p.LevelsGained += o.LevelsGained
	p.Evolutions = append(p.Evolutions, o.Evolutions...)
	return p
}
