package remote

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/evolve/internal/catalog"
	"github.com/roach88/evolve/internal/game"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "cloud.db"),
		WithBcryptCost(bcrypt.MinCost),
		WithNow(func() time.Time { return t0 }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleState() game.State {
	s := game.Initial(catalog.MustDefault())
	s.LastSavedTime = game.Stamp(t0.Add(1234 * time.Millisecond))
	s.Currency = 12.5
	s.YieldPerSecond = 0.30000000000000004
	s.CharacterID = "umbreon"
	s.CharacterLevel = 12
	s.CharacterExp = 77
	s.UpgradeLedger = map[string]int{"stronger_click": 3, "pikachu_helper": 1}
	s.ActiveBuffs = []game.Buff{{
		ID:         "b1",
		Kind:       game.BuffXPMultiplier,
		Multiplier: 2,
		StartTime:  t0,
		ExpiresAt:  t0.Add(30 * time.Second),
	}}
	s.NextMinigameAvailableAt = t0.Add(time.Minute)
	s.CooldownStartedAt = t0
	s.CooldownTotalDuration = 60
	return s
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloud.db")
	s1, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestFetch_Missing(t *testing.T) {
	s := setupTestStore(t)

	rec, err := s.Fetch(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestUpsertFetch_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	st := sampleState()

	require.NoError(t, s.Upsert(ctx, "u1", st, t0.Add(2*time.Second)))

	rec, err := s.Fetch(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, st, rec.State)
	assert.True(t, rec.UpdatedAt.Equal(t0.Add(2*time.Second)))

	// Last write wins.
	st.Currency = 99
	require.NoError(t, s.Upsert(ctx, "u1", st, t0.Add(3*time.Second)))
	rec, err = s.Fetch(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 99.0, rec.State.Currency)
}

func TestFetch_PartialPayloadKeepsDefaults(t *testing.T) {
	defaults := game.Initial(catalog.MustDefault())
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "cloud.db"), WithDefaults(defaults))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	raw, err := encMode.Marshal(map[string]any{"currency": 5.0, "characterId": "espeon"})
	require.NoError(t, err)
	_, err = s.db.Exec(
		`INSERT INTO saves (user_id, payload, last_saved_ms, updated_at, level, energy, ascensions)
		VALUES (?, ?, 0, ?, 0, 5, 0)`,
		"old-client", zenc.EncodeAll(raw, nil), t0.UnixMilli(),
	)
	require.NoError(t, err)

	rec, err := s.Fetch(context.Background(), "old-client")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 5.0, rec.State.Currency)
	assert.Equal(t, "espeon", rec.State.CharacterID)
	assert.Equal(t, 1, rec.State.CharacterLevel)
	assert.True(t, rec.State.Settings.SoundEnabled)
	assert.True(t, rec.State.Settings.VibrationEnabled)
	assert.NotNil(t, rec.State.UpgradeLedger)
	assert.Equal(t, defaults.YieldPerAction, rec.State.YieldPerAction)
}

func TestPayloadDeterministic(t *testing.T) {
	a, err := encodePayload(sampleState())
	require.NoError(t, err)
	b, err := encodePayload(sampleState())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAccounts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sess, err := s.SignUp(ctx, " Ash@Example.com ", "pikachu", "Ash")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.UserID)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "ash@example.com", sess.Email)

	_, err = s.SignUp(ctx, "ash@example.com", "other", "")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = s.SignIn(ctx, "ash@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.SignIn(ctx, "misty@example.com", "pikachu")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	again, err := s.SignIn(ctx, "ASH@example.com", "pikachu")
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, again.UserID)
	assert.NotEqual(t, sess.Token, again.Token)

	resumed, err := s.Resume(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess, resumed)

	require.NoError(t, s.SignOut(ctx, sess.Token))
	_, err = s.Resume(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrNotSignedIn)
	assert.ErrorIs(t, s.SignOut(ctx, sess.Token), ErrNotSignedIn)

	_, err = s.SignUp(ctx, "", "x", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLeaderboard(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ash, err := s.SignUp(ctx, "ash@example.com", "pw", "  Cafe\u0301  ")
	require.NoError(t, err)
	misty, err := s.SignUp(ctx, "misty@example.com", "pw", "Misty")
	require.NoError(t, err)

	put := func(user string, ascensions, level int, energy float64) {
		st := sampleState()
		st.PrestigeCount = ascensions
		st.CharacterLevel = level
		st.Currency = energy
		require.NoError(t, s.Upsert(ctx, user, st, t0))
	}
	put(ash.UserID, 1, 3, 10)
	put(misty.UserID, 1, 3, 50)
	put("anonymous", 2, 1, 0)

	board, err := s.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, board, 3)

	assert.Equal(t, Entry{Rank: 1, Nickname: DefaultNickname, Ascensions: 2, Level: 1, Energy: 0}, board[0])
	assert.Equal(t, "Misty", board[1].Nickname)
	assert.Equal(t, "Caf\u00e9", board[2].Nickname)
	assert.Equal(t, 3, board[2].Rank)

	top, err := s.Leaderboard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestNormalizeNickname(t *testing.T) {
	assert.Equal(t, DefaultNickname, NormalizeNickname("   "))
	assert.Equal(t, "Caf\u00e9", NormalizeNickname("Cafe\u0301"))
	assert.Len(t, []rune(NormalizeNickname("abcdefghijklmnopqrstuvwxyz0123")), maxNicknameRunes)
}
