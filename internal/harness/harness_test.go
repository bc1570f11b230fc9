package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evolve/internal/game"
)

// TestScenarios runs every scenario under testdata/scenarios.
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name should match its file")

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "one click",
		Steps:       []Step{{Action: ActionClick}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass)
	require.Len(t, result.Trace, 1)

	ev := result.Trace[0]
	assert.Equal(t, int64(1), ev.Seq)
	assert.Equal(t, "ok", ev.Status)
	assert.Equal(t, map[string]any{"times": 1}, ev.Args)
	assert.Equal(t, &Delta{Currency: 1, Exp: 1}, ev.Delta)
	assert.Equal(t, 1.0, result.Final.Currency)
	assert.Equal(t, "eevee", result.Final.Species)
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "wrong expectations",
		Steps: []Step{
			{Action: ActionClick, Expect: &Expect{State: map[string]any{"currency": 2}}},
			{Action: ActionPurchase, ID: "stronger_click", Expect: &Expect{Status: "ok"}},
			{Action: ActionPurchase, ID: "nope", Expect: &Expect{Status: "ok"}},
			{Action: ActionClick, Expect: &Expect{Error: "UNKNOWN_SPECIES"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], `steps[0] click: field "currency": expected 2, got 1`)
	assert.Contains(t, result.Errors[1], "expected status ok, got insufficient_funds")
	assert.Contains(t, result.Errors[2], "unexpected error UNKNOWN_UPGRADE")
	assert.Contains(t, result.Errors[3], "expected error UNKNOWN_SPECIES, got status ok")
}

func TestRun_IntegrityErrorLeavesStateUnchanged(t *testing.T) {
	scenario := &Scenario{
		Name:        "integrity",
		Description: "unknown prestige upgrade",
		Setup:       Setup{Ascensions: 1, Prestige: 5},
		Steps: []Step{
			{Action: ActionPurchasePrestige, ID: "golden_ticket"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	ev := result.Trace[0]
	assert.Equal(t, "UNKNOWN_PRESTIGE_UPGRADE", ev.Error)
	assert.Empty(t, ev.Status)
	assert.Nil(t, ev.Delta)
	assert.Equal(t, 5.0, ev.State.Prestige)
}

func TestRun_ClockMovesOnlyOnTimeSteps(t *testing.T) {
	scenario := &Scenario{
		Name:        "clock",
		Description: "clock bookkeeping",
		Start:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Steps: []Step{
			{Action: ActionClick},
			{Action: ActionWait, Duration: time.Minute},
			{Action: ActionClick},
			{Action: ActionTick, Duration: 10 * time.Second},
			{Action: ActionOffline, Duration: time.Hour},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	var at []float64
	for _, ev := range result.Trace {
		at = append(at, ev.At)
	}
	assert.Equal(t, []float64{0, 60, 60, 70, 3670}, at)
	assert.Empty(t, result.Trace[1].Status, "wait has no reducer status")
	assert.Equal(t, "noop", result.Trace[3].Status, "no passive yield without helpers")
}

func TestRun_OfflineCatchUpIsCapped(t *testing.T) {
	scenario := &Scenario{
		Name:        "offline",
		Description: "offline cap",
		Balance:     BalanceOverrides{MaxOffline: time.Minute},
		Setup:       Setup{Upgrades: map[string]int{"pikachu_helper": 10}},
		Steps:       []Step{{Action: ActionOffline, Duration: time.Hour}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result.Trace[0].Delta)
	assert.Equal(t, 60.0, result.Trace[0].Delta.OfflineSeconds)
	assert.InDelta(t, 60.0, result.Final.Currency, 1e-9)
}

func TestRun_CritIsOptIn(t *testing.T) {
	always := 1.0
	scenario := &Scenario{
		Name:        "crit",
		Description: "crit chance override",
		Balance:     BalanceOverrides{BaseCritChance: &always},
		Steps: []Step{
			{Action: ActionClick, Times: 2},
			{Action: ActionClick, Crit: true},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Trace[0].Delta.Crits, "a certain crit fires even without the flag")
	assert.Equal(t, 4.0, result.Trace[0].Delta.Currency)
	assert.Equal(t, map[string]any{"times": 1, "crit": true}, result.Trace[1].Args)
}

func TestRun_ResetKeepsClock(t *testing.T) {
	scenario := &Scenario{
		Name:        "reset",
		Description: "reset",
		Setup:       Setup{Currency: 500, Upgrades: map[string]int{"stronger_click": 2}},
		Steps: []Step{
			{Action: ActionChangeSettings, Sound: new(bool)},
			{Action: ActionReset},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.Zero(t, result.Final.Currency)
	assert.Nil(t, result.Final.Upgrades)
	assert.True(t, result.Final.Sound, "reset restores default settings")
}

func TestRewardSpec_BuffIDFromSequence(t *testing.T) {
	r := (&RewardSpec{Type: "buff", Buff: "xp_multiplier", Multiplier: 2, Duration: time.Minute}).reward(7)
	assert.Equal(t, "buff-7", r.BuffID)
	assert.Equal(t, 60.0, r.DurationSeconds)
	assert.Equal(t, game.BuffXPMultiplier, r.BuffKind)
	assert.Nil(t, (*RewardSpec)(nil).reward(1))
}

func TestRun_CustomCatalog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.cue"), []byte(`
package catalog

startingSpecies: "egg"
species: {
	egg: {name: "Egg", evolvesTo: "chick", evolutionLevel: 2, evolutionStage: 1}
	chick: {name: "Chick", evolutionLevel: 3, evolutionStage: 2}
}
`), 0o644))

	scenario := &Scenario{
		Name:        "custom",
		Description: "hatch",
		Catalog:     dir,
		Setup:       Setup{Exp: 99},
		Steps:       []Step{{Action: ActionClick}},
		Assertions: []Assertion{
			{Type: AssertFinalState, Expect: map[string]any{"species": "chick", "level": 2}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"chick"}, result.Trace[0].Delta.Evolutions)
}

func TestRun_SetupErrors(t *testing.T) {
	_, err := Run(&Scenario{
		Name:        "bad",
		Description: "unknown species",
		Setup:       Setup{Species: "missingno"},
		Steps:       []Step{{Action: ActionClick}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missingno")

	_, err = Run(&Scenario{
		Name:        "bad",
		Description: "missing catalog",
		Catalog:     filepath.Join(t.TempDir(), "nothing"),
		Steps:       []Step{{Action: ActionClick}},
	})
	require.Error(t, err)
}

func TestRun_InvariantViolationFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "overflow",
		Description: "setup exp past the level threshold",
		Setup:       Setup{Exp: 5000},
		Steps:       []Step{{Action: ActionWait, Duration: time.Second}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "invariant violated: exp_below_threshold")
}

func TestResult_AddError(t *testing.T) {
	result := NewResult()
	assert.True(t, result.Pass)

	result.AddError("boom")
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"boom"}, result.Errors)
}
