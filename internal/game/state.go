package game

import (
	"maps"
	"slices"
	"time"

	"github.com/roach88/evolve/internal/catalog"
)

// State is the whole persistent game state. It is a value: reducers
// return a new State and never modify the maps or slices of their input.
//
// JSON field names are the persisted save schema. Fields may be added
// but never renamed or removed; a save missing a field is backfilled
// from Initial on load.
type State struct {
	LastSavedTime time.Time `json:"lastSavedTime"`

	Currency       float64 `json:"currency"`
	YieldPerAction float64 `json:"yieldPerAction"`
	YieldPerSecond float64 `json:"yieldPerSecond"`
	XPPerAction    float64 `json:"xpPerAction"`
	XPPerSecond    float64 `json:"xpPerSecond"`

	CharacterID    string  `json:"characterId"`
	CharacterLevel int     `json:"characterLevel"`
	CharacterExp   float64 `json:"characterExp"`

	UpgradeLedger    map[string]int `json:"upgradeLedger"`
	PrestigeLedger   map[string]int `json:"prestigeLedger"`
	PrestigeCurrency float64        `json:"prestigeCurrency"`
	PrestigeCount    int            `json:"prestigeCount"`

	ActiveBuffs []Buff `json:"activeBuffs"`

	// ActiveMinigameID is empty when no minigame is running.
	ActiveMinigameID        string    `json:"activeMinigameId"`
	NextMinigameAvailableAt time.Time `json:"nextMinigameAvailableAt"`
	// CooldownPausedRemaining and CooldownTotalDuration are in seconds.
	CooldownPausedRemaining float64   `json:"cooldownPausedRemaining"`
	CooldownStartedAt       time.Time `json:"cooldownStartedAt"`
	CooldownTotalDuration   float64   `json:"cooldownTotalDuration"`

	Settings Settings `json:"settings"`
}

// Settings are user preferences, orthogonal to progression.
type Settings struct {
	SoundEnabled     bool `json:"soundEnabled"`
	VibrationEnabled bool `json:"vibrationEnabled"`
}

// SettingsPatch changes only the non-nil preferences.
type SettingsPatch struct {
	SoundEnabled     *bool `json:"soundEnabled,omitempty"`
	VibrationEnabled *bool `json:"vibrationEnabled,omitempty"`
}

// Base stats before any upgrade.
const (
	BaseYieldPerAction = 1
	BaseXPPerAction    = 1
)

// Initial returns the fixed starting state for a catalog.
func Initial(c *catalog.Catalog) State {
	s := State{
		CharacterID:    c.StartingSpecies,
		CharacterLevel: 1,
		UpgradeLedger:  map[string]int{},
		PrestigeLedger: map[string]int{},
		ActiveBuffs:    []Buff{},
		Settings: Settings{
			SoundEnabled:     true,
			VibrationEnabled: true,
		},
	}
	return withYields(s, RecomputeYields(c, s.UpgradeLedger, s.PrestigeLedger))
}

// Clone returns a deep copy of s. Observers receive clones so a
// misbehaving observer cannot corrupt the canonical value.
func (s State) Clone() State {
	out := s
	out.UpgradeLedger = maps.Clone(s.UpgradeLedger)
	out.PrestigeLedger = maps.Clone(s.PrestigeLedger)
	out.ActiveBuffs = slices.Clone(s.ActiveBuffs)
	if out.UpgradeLedger == nil {
		out.UpgradeLedger = map[string]int{}
	}
	if out.PrestigeLedger == nil {
		out.PrestigeLedger = map[string]int{}
	}
	if out.ActiveBuffs == nil {
		out.ActiveBuffs = []Buff{}
	}
	return out
}

// Stamp normalises a wall-clock reading for storage in State: UTC,
// millisecond precision, no monotonic reading. Stamped times survive a
// JSON or CBOR round trip unchanged, which keeps save timestamps
// comparable across the local and remote stores.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
