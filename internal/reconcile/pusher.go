package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/evolve/internal/clock"
	"github.com/roach88/evolve/internal/game"
	"github.com/roach88/evolve/internal/remote"
)

// PushResult reports one finished push.
type PushResult struct {
	UserID        string
	LastSavedTime time.Time
	Err           error
}

// Pusher sends snapshots to the remote store from a single goroutine.
// Only the latest submitted snapshot is kept: a snapshot submitted while
// a push is in flight replaces any earlier one still waiting, so the
// remote ends with the last submitted state and writes never reorder.
type Pusher struct {
	store  remote.Store
	clock  clock.Clock
	logger *slog.Logger
	onDone func(PushResult)

	mu      sync.Mutex
	pending *pushJob
	closed  bool

	wake   chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

type pushJob struct {
	userID string
	state  game.State
}

// NewPusher starts a pusher. onDone, if set, is called from the pusher
// goroutine after each push and must not block.
func NewPusher(store remote.Store, c clock.Clock, logger *slog.Logger, onDone func(PushResult)) *Pusher {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pusher{
		store:  store,
		clock:  c,
		logger: logger,
		onDone: onDone,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go p.run()
	return p
}

// Submit queues a snapshot for userID, replacing any queued one.
// Returns false after Close.
func (p *Pusher) Submit(userID string, s game.State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.pending = &pushJob{userID: userID, state: s.Clone()}

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// Discard drops a queued snapshot that has not started.
func (p *Pusher) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
}

// Close stops accepting snapshots and waits for the queued one to be
// pushed. If ctx ends first the in-flight push is cancelled.
func (p *Pusher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.wake)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		p.cancel()
		<-p.done
		return ctx.Err()
	}
}

func (p *Pusher) run() {
	defer close(p.done)
	defer p.cancel()

	for range p.wake {
		p.drain()
	}
	p.drain()
}

func (p *Pusher) drain() {
	for {
		p.mu.Lock()
		job := p.pending
		p.pending = nil
		p.mu.Unlock()

		if job == nil || p.ctx.Err() != nil {
			return
		}

		err := p.store.Upsert(p.ctx, job.userID, job.state, p.clock.Now())
		if err != nil {
			p.logger.Warn("remote push failed", "error", err, "user_id", job.userID)
		} else {
			p.logger.Debug("remote push done", "user_id", job.userID, "last_saved", job.state.LastSavedTime)
		}
		if p.onDone != nil {
			p.onDone(PushResult{UserID: job.userID, LastSavedTime: job.state.LastSavedTime, Err: err})
		}
	}
}
