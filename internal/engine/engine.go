package engine

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/evolve/internal/clock"
	"github.com/roach88/evolve/internal/debounce"
	"github.com/roach88/evolve/internal/game"
	"github.com/roach88/evolve/internal/reconcile"
	"github.com/roach88/evolve/internal/remote"
	"github.com/roach88/evolve/internal/save"
)

// Defaults for the engine timings.
const (
	DefaultTickInterval    = time.Second
	DefaultSaveDebounce    = time.Second
	DefaultSaveMaxWait     = 5 * time.Second
	DefaultSyncDebounce    = MinSyncDebounce
	DefaultSyncMaxWait     = 5 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// MinSyncDebounce is the shortest quiet period before a remote push.
// Shorter configured values are raised to it.
const MinSyncDebounce = 500 * time.Millisecond

// Engine is the game state controller: the single writer of the game
// state.
//
// CRITICAL: All state changes happen in the Run goroutine. Callers use
// Submit; timers and remote goroutines enqueue internal events.
//
// Thread-safety model:
//   - Submit, Subscribe, Stop: safe from any goroutine
//   - Load: call once, before Run
//   - Run: must be called from exactly ONE goroutine
type Engine struct {
	rules   *game.Rules
	gateway *save.Gateway
	clock   clock.Clock
	seq     *Sequence
	queue   *eventQueue
	logger  *slog.Logger
	ids     IDGenerator
	roll    func() float64

	store  remote.Store
	auth   remote.Authenticator
	policy reconcile.Policy
	pusher *reconcile.Pusher

	tickInterval    time.Duration
	saveDelay       time.Duration
	saveMaxWait     time.Duration
	syncDelay       time.Duration
	syncMaxWait     time.Duration
	shutdownTimeout time.Duration

	saveDebounce *debounce.Debouncer
	syncDebounce *debounce.Debouncer

	// remoteCtx bounds sign-in and fetch goroutines; cancelled on exit.
	remoteCtx    context.Context
	remoteCancel context.CancelFunc

	// Owned by the Run goroutine after Load.
	state     game.State
	gen       save.Generation
	hasSave   bool
	dirty     bool
	pushDirty bool
	lastTick  time.Time
	session   *remote.Session
	status    reconcile.Status
	conflict  *reconcile.Conflict

	obsMu     sync.Mutex
	observers map[int]chan Update
	nextObs   int

	started atomic.Bool
	done    chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithIDGenerator sets the buff id source. The default is UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithRoller sets the crit roll source, which must return values in
// [0,1). Tests pass a constant.
func WithRoller(roll func() float64) Option {
	return func(e *Engine) { e.roll = roll }
}

// WithTickInterval sets the passive accrual period.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.tickInterval = d }
}

// WithSaveDebounce sets the local save quiet period and staleness cap.
func WithSaveDebounce(delay, maxWait time.Duration) Option {
	return func(e *Engine) { e.saveDelay, e.saveMaxWait = delay, maxWait }
}

// WithSyncDebounce sets the remote push quiet period and staleness cap.
func WithSyncDebounce(delay, maxWait time.Duration) Option {
	return func(e *Engine) { e.syncDelay, e.syncMaxWait = delay, maxWait }
}

// WithRemote enables accounts and remote sync.
func WithRemote(store remote.Store, auth remote.Authenticator) Option {
	return func(e *Engine) { e.store, e.auth = store, auth }
}

// WithPolicy sets the reconciliation policy.
func WithPolicy(p reconcile.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithShutdownTimeout bounds the final save and push after Run ends.
func WithShutdownTimeout(d time.Duration) Option {
	return func(e *Engine) { e.shutdownTimeout = d }
}

// New creates an Engine holding the initial state. Call Load to restore
// the local save.
func New(rules *game.Rules, gateway *save.Gateway, c clock.Clock, opts ...Option) *Engine {
	e := &Engine{
		rules:           rules,
		gateway:         gateway,
		clock:           c,
		seq:             NewSequence(),
		queue:           newEventQueue(),
		logger:          slog.Default(),
		ids:             UUIDv7Generator{},
		roll:            rand.Float64,
		tickInterval:    DefaultTickInterval,
		saveDelay:       DefaultSaveDebounce,
		saveMaxWait:     DefaultSaveMaxWait,
		syncDelay:       DefaultSyncDebounce,
		syncMaxWait:     DefaultSyncMaxWait,
		shutdownTimeout: DefaultShutdownTimeout,
		observers:       make(map[int]chan Update),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.syncDelay < MinSyncDebounce {
		e.logger.Warn("sync debounce raised to minimum", "configured", e.syncDelay, "minimum", MinSyncDebounce)
		e.syncDelay = MinSyncDebounce
	}
	e.state = rules.Initial()
	e.lastTick = c.Now()
	e.remoteCtx, e.remoteCancel = context.WithCancel(context.Background())

	e.saveDebounce = debounce.New(c, e.saveDelay, e.saveMaxWait, func() {
		e.queue.Enqueue(event{kind: eventSaveDue})
	})
	e.syncDebounce = debounce.New(c, e.syncDelay, e.syncMaxWait, func() {
		e.queue.Enqueue(event{kind: eventPushDue})
	})
	if e.store != nil {
		e.pusher = reconcile.NewPusher(e.store, c, e.logger, func(r reconcile.PushResult) {
			e.queue.Enqueue(event{kind: eventPushDone, push: &r})
		})
	}
	return e
}

// Load restores the local save with offline catch-up and makes it the
// canonical state. A caught-up, abandoned or corrupt save is scheduled
// for saving. Must be called before Run.
func (e *Engine) Load(ctx context.Context) (save.Loaded, error) {
	loaded, err := e.gateway.Load(ctx)
	if err != nil {
		return loaded, err
	}

	e.state = loaded.State
	e.gen = e.gateway.Generation()
	e.hasSave = loaded.Found && !loaded.Corrupt
	e.lastTick = e.clock.Now()

	if loaded.Corrupt || loaded.Offline.Seconds > 0 || loaded.Offline.AbandonedMinigame != "" {
		e.markDirty()
	}
	e.logger.Info("save loaded",
		"found", loaded.Found,
		"corrupt", loaded.Corrupt,
		"offline_seconds", loaded.Offline.Seconds,
		"character_id", e.state.CharacterID,
		"level", e.state.CharacterLevel,
	)
	e.publish()
	return loaded, nil
}

// Submit queues cmd and waits for its result. Commands are applied in
// submission order. The error is ErrStopped after Stop, a BlockedError
// while a conflict is open, or whatever the command itself failed with.
func (e *Engine) Submit(ctx context.Context, cmd Command) (Result, error) {
	ch := make(chan reply, 1)
	if !e.queue.Enqueue(event{kind: eventCommand, cmd: cmd, reply: ch}) {
		return Result{}, ErrStopped
	}
	select {
	case r := <-ch:
		return r.result, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Subscribe registers an observer. The channel holds at most one
// pending Update; a slow observer sees only the latest one. Call the
// returned function to unsubscribe.
func (e *Engine) Subscribe() (<-chan Update, func()) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()

	id := e.nextObs
	e.nextObs++
	ch := make(chan Update, 1)
	e.observers[id] = ch

	return ch, func() {
		e.obsMu.Lock()
		defer e.obsMu.Unlock()
		delete(e.observers, id)
	}
}

// Run starts the single-writer loop. It blocks until Stop is called
// (after draining queued commands) or ctx is cancelled, then writes any
// pending save and waits for the last push.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: A command that fails is reported to its submitter and
// logged; the loop continues with the state unchanged.
func (e *Engine) Run(ctx context.Context) error {
	e.started.Store(true)
	defer close(e.done)

	e.logger.Info("engine starting", "tick_interval", e.tickInterval)
	ticker := e.clock.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			e.process(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			e.rejectQueued()
			e.shutdown()
			return ctx.Err()

		case <-ticker.C:
			e.tick()

		case <-e.queue.Wait():
			if e.queue.Drained() {
				e.logger.Info("engine stopping: queue closed")
				e.shutdown()
				return nil
			}
		}
	}
}

// Stop closes the queue and waits for Run to finish its shutdown. Queued
// commands are still applied.
func (e *Engine) Stop(ctx context.Context) error {
	e.queue.Close()
	if !e.started.Load() {
		e.shutdown()
		return nil
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// process routes an event to its handler.
// CRITICAL: Called only from the Run goroutine.
func (e *Engine) process(ctx context.Context, ev event) {
	switch ev.kind {
	case eventCommand:
		if e.beginAsync(ev) {
			return
		}
		res, err := e.handle(ctx, ev.cmd)
		ev.reply <- reply{result: res, err: err}

	case eventSaveDue:
		e.persist(ctx)

	case eventPushDue:
		e.pushNow(ctx)

	case eventIdentity:
		res, err := e.applyIdentity(ctx, ev.identity)
		ev.reply <- reply{result: res, err: err}

	case eventSignedOut:
		res, err := e.applySignOut(ctx, ev.signOut)
		ev.reply <- reply{result: res, err: err}

	case eventPushDone:
		e.applyPush(*ev.push)

	default:
		e.logger.Error("unknown event kind", "kind", ev.kind)
	}
}

// handle applies a synchronous command.
func (e *Engine) handle(ctx context.Context, cmd Command) (Result, error) {
	seq := e.seq.Next()
	now := e.clock.Now()
	res := Result{Seq: seq, Command: cmd.Name(), Outcome: game.Outcome{Status: game.StatusNoop}}

	if e.status.Blocked && rejectedWhileBlocked(cmd) {
		return e.finish(res), &BlockedError{Command: cmd.Name(), Reason: e.status.Reason}
	}

	if !e.status.Blocked {
		if s, changed := game.Sweep(e.state, now); changed {
			e.commit(s)
		}
	}

	var (
		next game.State
		out  game.Outcome
		err  error
	)
	switch c := cmd.(type) {
	case Click:
		next, out, res.Crits, err = e.click(c.Times, now)
	case Purchase:
		next, out, err = e.rules.Purchase(e.state, c.UpgradeID)
	case PurchasePrestige:
		next, out, err = e.rules.PurchasePrestige(e.state, c.UpgradeID)
	case StartMinigame:
		next, out, err = e.rules.StartMinigame(e.state, now)
	case CompleteMinigame:
		next, out, err = e.rules.CompleteMinigame(e.state, e.withBuffID(c.Reward), now)
	case ChangeSettings:
		next, out = game.ChangeSettings(e.state, c.Patch)
	case Ascend:
		next, out, err = e.rules.Ascend(e.state)
	case Reset:
		res.Outcome = game.Outcome{Status: game.StatusOK}
		err := e.reset(ctx)
		return e.finish(res), err
	case ResolveConflict:
		if err := e.resolve(ctx, c.Choice); err != nil {
			return e.finish(res), err
		}
		res.Outcome = game.Outcome{Status: game.StatusOK}
		return e.finish(res), nil
	case Flush:
		e.persist(ctx)
		if e.pushDirty {
			e.pushNow(ctx)
		}
		res.Outcome = game.Outcome{Status: game.StatusOK}
		return e.finish(res), nil
	case Snapshot:
		res.Outcome = game.Outcome{Status: game.StatusOK}
		return e.finish(res), nil
	default:
		e.logger.Error("unknown command", "command", cmd.Name(), "seq", seq)
		return e.finish(res), nil
	}

	if err != nil {
		e.logger.Error("command failed", "command", cmd.Name(), "seq", seq, "error", err)
		return e.finish(res), err
	}
	res.Outcome = out
	if out.Status.Changed() {
		e.commit(next)
	}
	e.logger.Debug("command applied", "command", cmd.Name(), "seq", seq, "status", out.Status)
	return e.finish(res), nil
}

// click applies times taps. The outcome sums the deltas and merges the
// progress of every tap.
func (e *Engine) click(times int, now time.Time) (game.State, game.Outcome, int, error) {
	if times <= 0 {
		times = 1
	}
	s := e.state
	total := game.Outcome{Status: game.StatusOK}
	crits := 0
	for range times {
		next, out, err := e.rules.Click(s, now, e.roll())
		if err != nil {
			return e.state, game.Outcome{}, 0, err
		}
		s = next
		total.CurrencyDelta += out.CurrencyDelta
		total.ExpGained += out.ExpGained
		total.Progress = total.Progress.Merge(out.Progress)
		if out.Crit {
			total.Crit = true
			crits++
		}
	}
	return s, total, crits, nil
}

// withBuffID returns reward with a fresh BuffID when it grants a buff
// that has none.
func (e *Engine) withBuffID(reward *game.Reward) *game.Reward {
	if reward == nil || reward.Type != game.RewardBuff || reward.BuffID != "" {
		return reward
	}
	r := *reward
	r.BuffID = e.ids.Generate()
	return &r
}

// tick applies passive accrual for the time since the previous tick.
// While blocked the cursor still moves, so the paused interval is never
// credited.
func (e *Engine) tick() {
	now := e.clock.Now()
	elapsed := now.Sub(e.lastTick)
	e.lastTick = now
	if e.status.Blocked {
		return
	}

	next, out, err := e.rules.Tick(e.state, elapsed, now)
	if err != nil {
		e.logger.Error("tick failed", "error", err, "character_id", e.state.CharacterID)
		return
	}
	if out.Status.Changed() {
		e.commit(next)
	}
}

// reset clears the local save. The generation bump inside the gateway
// drops any save of the old state that is still pending.
func (e *Engine) reset(ctx context.Context) error {
	e.saveDebounce.Cancel()
	initial, gen, err := e.gateway.Reset(ctx)
	e.gen = gen
	e.state = initial
	e.lastTick = e.clock.Now()
	e.hasSave = false
	e.dirty = false

	if err != nil {
		// The old save may still be on disk; overwrite it.
		e.logger.Error("reset could not clear the save", "error", err)
		e.markDirty()
		e.publish()
		return err
	}
	e.pushDirty = true
	if e.status.Enabled {
		e.syncDebounce.Trigger()
	}
	e.logger.Info("game reset")
	e.publish()
	return nil
}

// commit makes s canonical and schedules saving it.
func (e *Engine) commit(s game.State) {
	e.state = s
	e.markDirty()
	e.publish()
}

func (e *Engine) markDirty() {
	e.dirty = true
	e.pushDirty = true
	e.saveDebounce.Trigger()
	if e.status.Enabled && !e.status.Blocked {
		e.syncDebounce.Trigger()
	}
}

// persist writes the state to the local store if it changed. A failed
// write is retried after another debounce period.
func (e *Engine) persist(ctx context.Context) {
	if !e.dirty || e.status.Blocked {
		return
	}
	if e.status.Pending {
		// Reconciliation compares the timestamp loaded from disk; a
		// write now would look like divergent progress.
		e.saveDebounce.Trigger()
		return
	}
	saved, err := e.gateway.Save(ctx, e.state, e.gen)
	if err != nil {
		e.logger.Warn("local save failed", "error", err)
		e.saveDebounce.Trigger()
		return
	}
	e.state.LastSavedTime = saved.LastSavedTime
	e.dirty = false
	e.hasSave = true
	e.logger.Debug("local save written", "last_saved", saved.LastSavedTime)
}

// pushNow saves locally, then hands the same snapshot to the pusher so
// both sides carry the same LastSavedTime.
func (e *Engine) pushNow(ctx context.Context) {
	if e.pusher == nil || e.session == nil || !e.status.Enabled || e.status.Blocked {
		return
	}
	if !e.hasSave {
		e.dirty = true
	}
	e.persist(ctx)
	if e.dirty {
		e.syncDebounce.Trigger()
		return
	}
	e.pusher.Submit(e.session.UserID, e.state)
	e.pushDirty = false
}

func (e *Engine) applyPush(r reconcile.PushResult) {
	if e.session == nil || r.UserID != e.session.UserID {
		return
	}
	if r.Err != nil {
		e.status.LastError = r.Err.Error()
		e.pushDirty = true
		if e.status.Enabled {
			e.syncDebounce.Trigger()
		}
	} else {
		e.status.LastError = ""
	}
	e.publish()
}

// finish fills the parts of a Result that describe the current state.
func (e *Engine) finish(res Result) Result {
	res.State = e.state.Clone()
	res.Sync = e.status
	if e.session != nil {
		res.Identity = &Identity{
			UserID:   e.session.UserID,
			Email:    e.session.Email,
			Nickname: e.session.Nickname,
		}
	}
	return res
}

// publish hands each observer a clone of the state, replacing any
// Update it has not read yet.
func (e *Engine) publish() {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()

	for _, ch := range e.observers {
		u := Update{Seq: e.seq.Current(), State: e.state.Clone(), Sync: e.status}
		select {
		case ch <- u:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}

// rejectQueued fails every command still queued after cancellation.
func (e *Engine) rejectQueued() {
	for {
		ev, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		if ev.reply != nil {
			ev.reply <- reply{err: ErrStopped}
		}
	}
}

// shutdown writes the pending save, pushes it when sync is on, and waits
// for the pusher, all bounded by the shutdown timeout.
func (e *Engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), e.shutdownTimeout)
	defer cancel()

	e.saveDebounce.Cancel()
	e.syncDebounce.Cancel()
	// An identity result still in flight is never applied.
	e.status.Pending = false
	e.persist(ctx)
	if e.pushDirty {
		e.pushNow(ctx)
	}
	if e.pusher != nil {
		if err := e.pusher.Close(ctx); err != nil {
			e.logger.Warn("remote push abandoned at shutdown", "error", err)
		}
	}
	e.remoteCancel()
	e.logger.Info("engine stopped", "seq", e.seq.Current())
}
