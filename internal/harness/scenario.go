package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted play session. Steps run in order against the
// game rules on a scenario clock that only moves when a step moves it.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is an optional CUE catalog directory, relative to the
	// scenario file. The built-in catalog is used when empty.
	Catalog string `yaml:"catalog,omitempty"`

	// Start is the scenario clock at the first step.
	// Defaults to DefaultStart.
	Start time.Time `yaml:"start,omitempty"`

	// Balance overrides the default tuning constants.
	Balance BalanceOverrides `yaml:"balance,omitempty"`

	// Setup adjusts the initial state before the first step.
	Setup Setup `yaml:"setup,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// DefaultStart is the scenario clock when a scenario sets no start.
var DefaultStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// BalanceOverrides replaces individual balance constants.
type BalanceOverrides struct {
	BaseCritChance *float64      `yaml:"base_crit_chance,omitempty"`
	CritMultiplier *float64      `yaml:"crit_multiplier,omitempty"`
	BaseCooldown   time.Duration `yaml:"base_cooldown,omitempty"`
	MaxOffline     time.Duration `yaml:"max_offline,omitempty"`
}

// Setup describes the starting state. Zero fields keep the initial value.
type Setup struct {
	Species          string         `yaml:"species,omitempty"`
	Level            int            `yaml:"level,omitempty"`
	Exp              float64        `yaml:"exp,omitempty"`
	Currency         float64        `yaml:"currency,omitempty"`
	Upgrades         map[string]int `yaml:"upgrades,omitempty"`
	Prestige         float64        `yaml:"prestige,omitempty"`
	Ascensions       int            `yaml:"ascensions,omitempty"`
	PrestigeUpgrades map[string]int `yaml:"prestige_upgrades,omitempty"`
}

// Step actions.
const (
	ActionClick            = "click"
	ActionPurchase         = "purchase"
	ActionPurchasePrestige = "purchase_prestige"
	ActionStartMinigame    = "start_minigame"
	ActionCompleteMinigame = "complete_minigame"
	ActionAscend           = "ascend"
	ActionChangeSettings   = "change_settings"
	ActionReset            = "reset"
	// ActionTick moves the clock and applies passive accrual for the interval.
	ActionTick = "tick"
	// ActionWait moves the clock only.
	ActionWait = "wait"
	// ActionOffline saves, moves the clock and applies offline catch-up.
	ActionOffline = "offline"
)

// Step is one scripted action. Only the fields of its action are read.
type Step struct {
	Action string `yaml:"action"`

	// Times is the number of clicks. Defaults to 1.
	Times int `yaml:"times,omitempty"`
	// Crit forces every click of the step to be critical.
	Crit bool `yaml:"crit,omitempty"`

	// ID is the upgrade or prestige upgrade to buy.
	ID string `yaml:"id,omitempty"`

	// Reward is the minigame result for complete_minigame.
	Reward *RewardSpec `yaml:"reward,omitempty"`

	Sound     *bool `yaml:"sound,omitempty"`
	Vibration *bool `yaml:"vibration,omitempty"`

	// Duration is the interval for tick, wait and offline.
	Duration time.Duration `yaml:"duration,omitempty"`

	// Expect checks the step's own result.
	Expect *Expect `yaml:"expect,omitempty"`
}

// RewardSpec is a minigame reward in scenario form.
type RewardSpec struct {
	Type       string        `yaml:"type"`
	Value      float64       `yaml:"value,omitempty"`
	Buff       string        `yaml:"buff,omitempty"`
	Multiplier float64       `yaml:"multiplier,omitempty"`
	Duration   time.Duration `yaml:"duration,omitempty"`
	Penalty    string        `yaml:"penalty,omitempty"`
}

// Expect checks the result of one step.
type Expect struct {
	// Status is the expected reducer status, e.g. "ok" or "insufficient_funds".
	Status string `yaml:"status,omitempty"`
	// Error is the expected integrity error code, e.g. "UNKNOWN_UPGRADE".
	Error string `yaml:"error,omitempty"`
	// State is a subset of the snapshot after the step.
	State map[string]any `yaml:"state,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a step with Action (and Status, when set) ran
	// - "trace_order": Actions appear in order
	// - "trace_count": Action (with Status, when set) ran exactly Count times
	// - "final_state": Expect is a subset of the final snapshot
	Type string `yaml:"type"`

	Action  string         `yaml:"action,omitempty"`
	Status  string         `yaml:"status,omitempty"`
	Actions []string       `yaml:"actions,omitempty"`
	Count   int            `yaml:"count,omitempty"`
	Expect  map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. A relative catalog
// path is resolved against the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if s.Setup.Level < 0 {
		return fmt.Errorf("setup: level must be positive, got %d", s.Setup.Level)
	}
	if s.Setup.Exp < 0 || s.Setup.Currency < 0 || s.Setup.Prestige < 0 {
		return fmt.Errorf("setup: exp, currency and prestige must not be negative")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Action {
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	case ActionClick:
		if st.Times < 0 {
			return fmt.Errorf("steps[%d]: times must not be negative", index)
		}
	case ActionPurchase, ActionPurchasePrestige:
		if st.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for %s", index, st.Action)
		}
	case ActionCompleteMinigame:
		if st.Reward != nil && st.Reward.Type == "" {
			return fmt.Errorf("steps[%d]: reward type is required", index)
		}
	case ActionChangeSettings:
		if st.Sound == nil && st.Vibration == nil {
			return fmt.Errorf("steps[%d]: change_settings needs sound or vibration", index)
		}
	case ActionTick, ActionWait, ActionOffline:
		if st.Duration <= 0 {
			return fmt.Errorf("steps[%d]: duration must be positive for %s", index, st.Action)
		}
	case ActionStartMinigame, ActionAscend, ActionReset:
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, st.Action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
