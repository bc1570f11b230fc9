package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evolve/internal/catalog"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestRules(t *testing.T) *Rules {
	t.Helper()
	return NewRules(catalog.MustDefault(), DefaultBalance())
}

func TestRequiredExp(t *testing.T) {
	tests := []struct {
		level int
		want  float64
	}{
		{0, 100},
		{1, 100},
		{2, 282},
		{3, 519},
		{4, 800},
		{5, 1118},
		{9, 2700},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RequiredExp(tt.level), "level %d", tt.level)
	}
}

func TestRequiredExp_StrictlyIncreasing(t *testing.T) {
	prev := RequiredExp(1)
	for l := 2; l <= 500; l++ {
		cur := RequiredExp(l)
		require.Greater(t, cur, prev, "level %d", l)
		prev = cur
	}
}

func TestApplyExperience_LevelFourEvolvesAtFive(t *testing.T) {
	r := newTestRules(t)
	s := r.Initial()
	s.CharacterLevel = 4
	s.CharacterExp = 799

	next, p, err := r.ApplyExperience(s, 1)
	require.NoError(t, err)

	assert.Equal(t, 5, next.CharacterLevel)
	assert.Equal(t, 0.0, next.CharacterExp)
	assert.Equal(t, "espeon", next.CharacterID)
	assert.Equal(t, 1, p.LevelsGained)
	assert.Equal(t, []string{"espeon"}, p.Evolutions)

	// Input untouched.
	assert.Equal(t, 4, s.CharacterLevel)
	assert.Equal(t, "eevee", s.CharacterID)
}

func TestApplyExperience_Cascade(t *testing.T) {
	r := newTestRules(t)

	next, p, err := r.ApplyExperience(r.Initial(), 5000)
	require.NoError(t, err)

	// 100+282+519+800+1118+1469 = 4288 spent over six levels.
	assert.Equal(t, 7, next.CharacterLevel)
	assert.Equal(t, 712.0, next.CharacterExp)
	assert.Equal(t, "espeon", next.CharacterID)
	assert.Equal(t, 6, p.LevelsGained)
}

func TestApplyExperience_DecompositionInvariance(t *testing.T) {
	r := newTestRules(t)

	splits := [][]float64{
		{30000},
		{10000, 10000, 10000},
		{1, 29999},
		{7000, 3000, 5000, 5000, 9999, 1},
	}

	var want State
	for i, parts := range splits {
		s := r.Initial()
		for _, x := range parts {
			var err error
			s, _, err = r.ApplyExperience(s, x)
			require.NoError(t, err)
		}
		assert.Less(t, s.CharacterExp, RequiredExp(s.CharacterLevel))
		if i == 0 {
			want = s
			continue
		}
		assert.Equal(t, want.CharacterLevel, s.CharacterLevel, "split %v", parts)
		assert.Equal(t, want.CharacterExp, s.CharacterExp, "split %v", parts)
		assert.Equal(t, want.CharacterID, s.CharacterID, "split %v", parts)
	}
}

func TestApplyExperience_NonPositiveIsNoop(t *testing.T) {
	r := newTestRules(t)
	s := r.Initial()

	for _, x := range []float64{0, -5} {
		next, p, err := r.ApplyExperience(s, x)
		require.NoError(t, err)
		assert.Equal(t, s, next)
		assert.Zero(t, p.LevelsGained)
	}
}

func TestApplyExperience_UnknownSpecies(t *testing.T) {
	r := newTestRules(t)
	s := r.Initial()
	s.CharacterID = "missingno"

	next, _, err := r.ApplyExperience(s, 1000)
	require.Error(t, err)
	assert.True(t, IsIntegrityError(err))

	var ie *IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ErrCodeUnknownSpecies, ie.Code)
	assert.Equal(t, "missingno", ie.ID)
	assert.Equal(t, s, next)
}

func TestApplyExperience_MaxLevelClamp(t *testing.T) {
	r := newTestRules(t)

	next, _, err := r.ApplyExperience(r.Initial(), 1e12)
	require.NoError(t, err)

	assert.Equal(t, MaxLevel, next.CharacterLevel)
	assert.Equal(t, RequiredExp(MaxLevel)-1, next.CharacterExp)
	assert.Equal(t, "sylveon", next.CharacterID)
}

func TestProgress_Merge(t *testing.T) {
	first := Progress{LevelsGained: 4, Evolutions: []string{"espeon"}}
	later := Progress{LevelsGained: 2, Evolutions: []string{"sylveon"}}

	got := first.Merge(later)
	assert.Equal(t, 6, got.LevelsGained)
	assert.Equal(t, []string{"espeon", "sylveon"}, got.Evolutions)
	assert.Equal(t, Progress{}, Progress{}.Merge(Progress{}))
}
