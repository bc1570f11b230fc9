package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evolve/internal/catalog"
	"github.com/roach88/evolve/internal/game"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func stateAt(ts time.Time, currency float64) *game.State {
	s := game.Initial(catalog.MustDefault())
	s.LastSavedTime = ts
	s.Currency = currency
	return &s
}

func TestDecide(t *testing.T) {
	older := stateAt(t0, 10)
	newer := stateAt(t0.Add(time.Minute), 20)

	tests := []struct {
		name          string
		local, remote *game.State
		policy        Policy
		want          Verdict
	}{
		{"neither", nil, nil, Policy{}, VerdictUseLocal},
		{"local only", older, nil, Policy{}, VerdictUseLocal},
		{"remote only", nil, older, Policy{}, VerdictAdoptRemote},
		{"equal", older, stateAt(t0, 999), Policy{}, VerdictInSync},
		{"local newer", newer, older, Policy{}, VerdictConflict},
		{"remote newer", older, newer, Policy{}, VerdictConflict},
		{"local newer auto push", newer, older, Policy{AutoPushNewerLocal: true}, VerdictUseLocal},
		{"remote newer auto push", older, newer, Policy{AutoPushNewerLocal: true}, VerdictConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.local, tt.remote, tt.policy)
			assert.Equal(t, tt.want, d.Verdict)
			assert.Equal(t, tt.want == VerdictConflict, d.Conflict != nil)
		})
	}
}

func TestConflict_Resolve(t *testing.T) {
	local := stateAt(t0, 10)
	remote := stateAt(t0.Add(time.Minute), 20)

	d := Decide(local, remote, Policy{})
	require.NotNil(t, d.Conflict)
	assert.Contains(t, d.Conflict.Reason, "cloud is newer")
	assert.Contains(t, d.Conflict.Reason, "2025-06-01T12:00:00Z")

	// Later changes to the inputs do not leak into the snapshots.
	local.Currency = 1e9

	res, err := d.Conflict.Resolve(ChoiceLocal)
	require.NoError(t, err)
	assert.True(t, res.Push)
	assert.Equal(t, 10.0, res.State.Currency)
	assert.Equal(t, t0, res.State.LastSavedTime)

	res, err = d.Conflict.Resolve(ChoiceCloud)
	require.NoError(t, err)
	assert.False(t, res.Push)
	assert.Equal(t, *remote, res.State)

	_, err = d.Conflict.Resolve("both")
	assert.Error(t, err)
}

func TestParseChoice(t *testing.T) {
	c, err := ParseChoice("local")
	require.NoError(t, err)
	assert.Equal(t, ChoiceLocal, c)

	c, err = ParseChoice("cloud")
	require.NoError(t, err)
	assert.Equal(t, ChoiceCloud, c)

	_, err = ParseChoice("newest")
	assert.Error(t, err)
}
