package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evolve/internal/clock"
	"github.com/roach88/evolve/internal/testutil"
)

type resultLog struct {
	mu      sync.Mutex
	results []PushResult
}

func (l *resultLog) add(r PushResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
}

func (l *resultLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.results)
}

func TestPusher_LatestWins(t *testing.T) {
	rem := testutil.NewMemoryRemote()
	gate := make(chan struct{})
	rem.Gate = gate
	log := &resultLog{}
	p := NewPusher(rem, clock.Fake(t0), nil, log.add)

	// The first push blocks on the gate; three more snapshots queue
	// behind it and collapse into the last one.
	for i := 1; i <= 4; i++ {
		require.True(t, p.Submit("u1", *stateAt(t0.Add(time.Duration(i)*time.Second), float64(i))))
	}
	gate <- struct{}{}
	close(gate)

	require.NoError(t, p.Close(context.Background()))

	saved, ok := rem.Saved("u1")
	require.True(t, ok)
	assert.Equal(t, 4.0, saved.Currency)

	ups := rem.Upserts()
	require.NotEmpty(t, ups)
	assert.LessOrEqual(t, len(ups), 2)
	assert.Equal(t, 4.0, ups[len(ups)-1].State.Currency)
	for i := 1; i < len(ups); i++ {
		assert.True(t, ups[i].State.LastSavedTime.After(ups[i-1].State.LastSavedTime), "pushes never reorder")
	}
	assert.Equal(t, len(ups), log.len())
}

func TestPusher_CloseDrainsAndRejects(t *testing.T) {
	rem := testutil.NewMemoryRemote()
	log := &resultLog{}
	p := NewPusher(rem, clock.Fake(t0), nil, log.add)

	p.Submit("u1", *stateAt(t0, 7))
	require.NoError(t, p.Close(context.Background()))

	saved, ok := rem.Saved("u1")
	require.True(t, ok)
	assert.Equal(t, 7.0, saved.Currency)
	assert.False(t, p.Submit("u1", *stateAt(t0, 8)))
	assert.NoError(t, p.Close(context.Background()))
}

func TestPusher_ReportsFailure(t *testing.T) {
	rem := testutil.NewMemoryRemote()
	rem.UpsertErr = testutil.ErrInjected
	log := &resultLog{}
	p := NewPusher(rem, clock.Fake(t0), nil, log.add)

	p.Submit("u1", *stateAt(t0, 1))
	require.NoError(t, p.Close(context.Background()))

	require.Equal(t, 1, log.len())
	assert.ErrorIs(t, log.results[0].Err, testutil.ErrInjected)
	assert.Equal(t, t0, log.results[0].LastSavedTime)
}

func TestPusher_CloseTimeoutCancelsInFlight(t *testing.T) {
	rem := testutil.NewMemoryRemote()
	rem.Gate = make(chan struct{}) // never released
	p := NewPusher(rem, clock.Fake(t0), nil, nil)

	p.Submit("u1", *stateAt(t0, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)
	_, ok := rem.Saved("u1")
	assert.False(t, ok)
}
