package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evolve/internal/game"
	"github.com/roach88/evolve/internal/remote"
)

func TestMemoryLocal_FailureInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLocal()

	require.NoError(t, m.Set(ctx, "k", "v"))
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	m.FailSet = ErrInjected
	assert.ErrorIs(t, m.Set(ctx, "k", "w"), ErrInjected)
	raw, _ := m.Raw("k")
	assert.Equal(t, "v", raw)
	assert.Equal(t, 1, m.Writes())

	require.NoError(t, m.Remove(ctx, "k"))
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryRemote_Gate(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRemote()
	m.Gate = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, m.Upsert(ctx, "u", game.State{CharacterLevel: 3}, time.Time{}))
	}()

	m.Gate <- struct{}{}
	wg.Wait()

	s, ok := m.Saved("u")
	require.True(t, ok)
	assert.Equal(t, 3, s.CharacterLevel)
	assert.Len(t, m.Upserts(), 1)
}

func TestMemoryRemote_Accounts(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRemote()

	sess, err := m.SignUp(ctx, "a@b.c", "pw", "")
	require.NoError(t, err)
	assert.Equal(t, remote.DefaultNickname, sess.Nickname)

	_, err = m.SignUp(ctx, "a@b.c", "pw", "")
	assert.ErrorIs(t, err, remote.ErrEmailTaken)

	_, err = m.SignIn(ctx, "a@b.c", "nope")
	assert.ErrorIs(t, err, remote.ErrInvalidCredentials)

	got, err := m.Resume(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	require.NoError(t, m.SignOut(ctx, sess.Token))
	assert.ErrorIs(t, m.SignOut(ctx, sess.Token), remote.ErrNotSignedIn)
}

func TestSequentialIDs(t *testing.T) {
	g := NewSequentialIDs("buff")
	assert.Equal(t, "buff-1", g.Generate())
	assert.Equal(t, "buff-2", g.Generate())
	assert.Equal(t, "id-1", NewSequentialIDs("").Generate())
}
