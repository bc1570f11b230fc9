package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: test_scenario
description: "Test scenario for validation"
start: 2025-06-01T12:00:00Z
balance:
  base_crit_chance: 0
  max_offline: 8h
setup:
  currency: 80
  upgrades: { stronger_click: 2 }
steps:
  - action: click
    times: 3
  - action: complete_minigame
    reward: { type: buff, buff: xp_multiplier, multiplier: 2, duration: 30s }
  - action: tick
    duration: 10s
    expect:
      status: ok
      state: { currency: 5 }
assertions:
  - type: trace_contains
    action: click
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), scenario.Start.UTC())
	require.NotNil(t, scenario.Balance.BaseCritChance)
	assert.Zero(t, *scenario.Balance.BaseCritChance)
	assert.Equal(t, 8*time.Hour, scenario.Balance.MaxOffline)
	assert.Equal(t, 80.0, scenario.Setup.Currency)
	assert.Equal(t, map[string]int{"stronger_click": 2}, scenario.Setup.Upgrades)
	require.Len(t, scenario.Steps, 3)
	assert.Equal(t, 3, scenario.Steps[0].Times)
	require.NotNil(t, scenario.Steps[1].Reward)
	assert.Equal(t, 30*time.Second, scenario.Steps[1].Reward.Duration)
	assert.Equal(t, 10*time.Second, scenario.Steps[2].Duration)
	require.NotNil(t, scenario.Steps[2].Expect)
	assert.Equal(t, "ok", scenario.Steps[2].Expect.Status)
	assert.Equal(t, 5, scenario.Steps[2].Expect.State["currency"])
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_ResolvesCatalogPath(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, `
name: custom
description: uses its own catalog
catalog: catalog
steps:
  - action: click
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "catalog"), scenario.Catalog)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: misspelled steps
step:
  - action: click
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing_name",
			yaml:    "description: d\nsteps: [{action: click}]",
			wantErr: "name is required",
		},
		{
			name:    "missing_description",
			yaml:    "name: n\nsteps: [{action: click}]",
			wantErr: "description is required",
		},
		{
			name:    "missing_steps",
			yaml:    "name: n\ndescription: d",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown_action",
			yaml:    "name: n\ndescription: d\nsteps: [{action: dance}]",
			wantErr: `unknown action "dance"`,
		},
		{
			name:    "purchase_without_id",
			yaml:    "name: n\ndescription: d\nsteps: [{action: purchase}]",
			wantErr: "id is required for purchase",
		},
		{
			name:    "tick_without_duration",
			yaml:    "name: n\ndescription: d\nsteps: [{action: tick}]",
			wantErr: "duration must be positive for tick",
		},
		{
			name:    "empty_settings",
			yaml:    "name: n\ndescription: d\nsteps: [{action: change_settings}]",
			wantErr: "needs sound or vibration",
		},
		{
			name:    "reward_without_type",
			yaml:    "name: n\ndescription: d\nsteps: [{action: complete_minigame, reward: {value: 5}}]",
			wantErr: "reward type is required",
		},
		{
			name:    "negative_setup",
			yaml:    "name: n\ndescription: d\nsetup: {currency: -1}\nsteps: [{action: click}]",
			wantErr: "must not be negative",
		},
		{
			name:    "unknown_assertion",
			yaml:    "name: n\ndescription: d\nsteps: [{action: click}]\nassertions: [{type: vibes}]",
			wantErr: `unknown assertion type "vibes"`,
		},
		{
			name:    "final_state_without_expect",
			yaml:    "name: n\ndescription: d\nsteps: [{action: click}]\nassertions: [{type: final_state}]",
			wantErr: "expect is required for final_state",
		},
		{
			name:    "trace_order_without_actions",
			yaml:    "name: n\ndescription: d\nsteps: [{action: click}]\nassertions: [{type: trace_order}]",
			wantErr: "actions list is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
