package save

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evolve/internal/catalog"
	"github.com/roach88/evolve/internal/game"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func sampleState() game.State {
	s := game.Initial(catalog.MustDefault())
	s.LastSavedTime = t0
	s.Currency = 42.5
	s.CharacterLevel = 3
	s.CharacterExp = 10
	s.UpgradeLedger["stronger_click"] = 2
	s.ActiveBuffs = append(s.ActiveBuffs, game.Buff{
		ID: "b1", Kind: game.BuffEnergyMultiplier, Multiplier: 2,
		StartTime: t0, ExpiresAt: t0.Add(time.Minute),
	})
	return s
}

func TestEncodeDecode(t *testing.T) {
	initial := game.Initial(catalog.MustDefault())
	s := sampleState()

	data, err := Encode(s)
	require.NoError(t, err)
	assert.Contains(t, data, `"version":1`)

	got, err := Decode(data, initial)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestDecode_ChecksumMismatch(t *testing.T) {
	initial := game.Initial(catalog.MustDefault())
	data, err := Encode(sampleState())
	require.NoError(t, err)

	tampered := strings.Replace(data, `"currency":42.5`, `"currency":1000000`, 1)
	require.NotEqual(t, data, tampered)

	got, err := Decode(tampered, initial)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Equal(t, initial, got)
}

func TestDecode_Garbage(t *testing.T) {
	initial := game.Initial(catalog.MustDefault())

	for _, data := range []string{"", "{", "[]", `{"version":1}`, `{"currency":"lots"}`} {
		_, err := Decode(data, initial)
		assert.ErrorIs(t, err, ErrCorrupt, "%q", data)
	}
}

func TestDecode_LegacyBareState(t *testing.T) {
	initial := game.Initial(catalog.MustDefault())
	s := sampleState()

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	got, err := Decode(string(raw), initial)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestDecode_BackfillsMissingFields(t *testing.T) {
	initial := game.Initial(catalog.MustDefault())

	// An early save without settings, prestige track or buffs.
	old := `{"lastSavedTime":"2025-06-01T12:00:00Z","currency":5,"characterId":"espeon","characterLevel":6,"characterExp":3,"upgradeLedger":{"stronger_click":1}}`

	got, err := Decode(old, initial)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.Currency)
	assert.Equal(t, "espeon", got.CharacterID)
	assert.Equal(t, 6, got.CharacterLevel)
	assert.Equal(t, map[string]int{"stronger_click": 1}, got.UpgradeLedger)
	assert.Equal(t, map[string]int{}, got.PrestigeLedger)
	assert.Equal(t, []game.Buff{}, got.ActiveBuffs)
	assert.True(t, got.Settings.SoundEnabled)
	assert.True(t, got.Settings.VibrationEnabled)
	assert.Equal(t, initial.XPPerAction, got.XPPerAction)

	refreshed := game.NewRules(catalog.MustDefault(), game.DefaultBalance()).Refresh(got)
	assert.Equal(t, 2.0, refreshed.YieldPerAction)
}

func TestDecode_Sanitizes(t *testing.T) {
	initial := game.Initial(catalog.MustDefault())
	bad := `{"currency":-5,"characterLevel":0,"characterExp":-1,"upgradeLedger":{"stronger_click":-3}}`

	got, err := Decode(bad, initial)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Currency)
	assert.Equal(t, 1, got.CharacterLevel)
	assert.Equal(t, 0.0, got.CharacterExp)
	assert.Equal(t, 0, got.UpgradeLedger["stronger_click"])
	assert.Equal(t, initial.CharacterID, got.CharacterID)
}
