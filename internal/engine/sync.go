package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/evolve/internal/game"
	"github.com/roach88/evolve/internal/reconcile"
	"github.com/roach88/evolve/internal/remote"
	"github.com/roach88/evolve/internal/save"
)

// identityResult is what a sign-in goroutine hands back to the loop.
type identityResult struct {
	cmd      string
	session  remote.Session
	record   *remote.Record
	authErr  error
	fetchErr error
	// remember stores the session in the local store.
	remember bool
}

// beginAsync starts the remote half of an account command on its own
// goroutine and reports whether it did. The reply is sent when the
// result re-enters the loop as an event.
// CRITICAL: Called only from the Run goroutine.
func (e *Engine) beginAsync(ev event) bool {
	switch ev.cmd.(type) {
	case SignUp, SignIn, ResumeSession, Resync, SignOut:
	default:
		return false
	}

	fail := func(err error) bool {
		res := Result{Seq: e.seq.Next(), Command: ev.cmd.Name(), Outcome: game.Outcome{Status: game.StatusNoop}}
		ev.reply <- reply{result: e.finish(res), err: err}
		return true
	}
	if e.store == nil || e.auth == nil {
		return fail(ErrNoRemote)
	}
	if e.status.Pending {
		return fail(ErrSyncPending)
	}
	if e.status.Blocked && rejectedWhileBlocked(ev.cmd) {
		return fail(&BlockedError{Command: ev.cmd.Name(), Reason: e.status.Reason})
	}

	ctx := e.remoteCtx
	switch c := ev.cmd.(type) {
	case SignUp:
		e.startIdentity(ev, func() (remote.Session, error) {
			return e.auth.SignUp(ctx, c.Email, c.Password, c.Nickname)
		}, true)

	case SignIn:
		e.startIdentity(ev, func() (remote.Session, error) {
			return e.auth.SignIn(ctx, c.Email, c.Password)
		}, true)

	case ResumeSession:
		stored, ok, err := e.gateway.LoadSession(ctx)
		if err != nil {
			return fail(fmt.Errorf("read session: %w", err))
		}
		if !ok {
			return fail(remote.ErrNotSignedIn)
		}
		e.startIdentity(ev, func() (remote.Session, error) {
			return e.auth.Resume(ctx, stored.Token)
		}, false)

	case Resync:
		if e.session == nil {
			return fail(remote.ErrNotSignedIn)
		}
		sess := *e.session
		e.startIdentity(ev, func() (remote.Session, error) {
			return sess, nil
		}, false)

	case SignOut:
		if e.session == nil {
			return fail(remote.ErrNotSignedIn)
		}
		// Send pending progress before the identity goes away.
		if e.pushDirty {
			e.pushNow(ctx)
		}
		token := e.session.Token
		go func() {
			err := e.auth.SignOut(ctx, token)
			if !e.queue.Enqueue(event{kind: eventSignedOut, signOut: err, cmd: ev.cmd, reply: ev.reply}) {
				ev.reply <- reply{err: ErrStopped}
			}
		}()
	}
	return true
}

// startIdentity authenticates and fetches the remote save off the loop.
func (e *Engine) startIdentity(ev event, authenticate func() (remote.Session, error), remember bool) {
	e.status.Pending = true
	e.publish()

	ctx := e.remoteCtx
	go func() {
		r := &identityResult{cmd: ev.cmd.Name(), remember: remember}
		r.session, r.authErr = authenticate()
		if r.authErr == nil {
			r.record, r.fetchErr = e.store.Fetch(ctx, r.session.UserID)
		}
		if !e.queue.Enqueue(event{kind: eventIdentity, identity: r, cmd: ev.cmd, reply: ev.reply}) {
			ev.reply <- reply{err: ErrStopped}
		}
	}()
}

// applyIdentity establishes the session and reconciles the local save
// with the fetched remote one.
// CRITICAL: Called only from the Run goroutine.
func (e *Engine) applyIdentity(ctx context.Context, r *identityResult) (Result, error) {
	e.status.Pending = false
	res := Result{Seq: e.seq.Next(), Command: r.cmd, Outcome: game.Outcome{Status: game.StatusNoop}}

	if r.authErr != nil {
		if r.cmd == (ResumeSession{}).Name() && errors.Is(r.authErr, remote.ErrNotSignedIn) {
			// The remembered token expired; forget it.
			if err := e.gateway.ClearSession(ctx); err != nil {
				e.logger.Warn("could not clear expired session", "error", err)
			}
		}
		e.logger.Warn("sign-in failed", "command", r.cmd, "error", r.authErr)
		e.publish()
		return e.finish(res), r.authErr
	}

	sess := r.session
	e.session = &sess
	e.status.UserID = sess.UserID
	if r.remember {
		if err := e.gateway.SaveSession(ctx, save.Session(sess)); err != nil {
			e.logger.Warn("could not remember session", "error", err)
		}
	}

	if r.fetchErr != nil {
		e.status.Enabled = false
		e.status.LastError = r.fetchErr.Error()
		e.logger.Warn("remote fetch failed", "user_id", sess.UserID, "error", r.fetchErr)
		e.publish()
		return e.finish(res), fmt.Errorf("fetch remote save: %w", r.fetchErr)
	}
	e.status.LastError = ""

	var local, theirs *game.State
	if e.hasSave {
		l := e.state
		local = &l
	}
	if r.record != nil {
		rs := e.rules.Refresh(save.Sanitize(r.record.State.Clone(), e.rules.Initial()))
		theirs = &rs
	}

	d := reconcile.Decide(local, theirs, e.policy)
	e.logger.Info("saves reconciled", "user_id", sess.UserID, "verdict", d.Verdict)

	switch d.Verdict {
	case reconcile.VerdictUseLocal:
		e.status.Enabled = true
		e.pushNow(ctx)

	case reconcile.VerdictAdoptRemote:
		if err := e.adopt(ctx, *theirs); err != nil {
			e.publish()
			return e.finish(res), err
		}
		e.status.Enabled = true

	case reconcile.VerdictInSync:
		e.status.Enabled = true
		if e.pushDirty {
			e.syncDebounce.Trigger()
		}

	case reconcile.VerdictConflict:
		e.block(d.Conflict)
	}

	res.Outcome = game.Outcome{Status: game.StatusOK}
	e.publish()
	return e.finish(res), nil
}

// adopt replaces the local state and save with s, keeping its
// LastSavedTime.
func (e *Engine) adopt(ctx context.Context, s game.State) error {
	if err := e.gateway.Store(ctx, s, e.gen); err != nil {
		e.logger.Error("could not store adopted save", "error", err)
		return fmt.Errorf("store adopted save: %w", err)
	}
	e.install(s)
	return nil
}

// keep writes s as the local save stamped at now. The state already
// carries the accrual up to now, so the next load must not repeat it.
func (e *Engine) keep(ctx context.Context, s game.State) error {
	saved, err := e.gateway.Save(ctx, s, e.gen)
	if err != nil {
		e.logger.Error("could not save kept state", "error", err)
		return fmt.Errorf("save kept state: %w", err)
	}
	e.install(saved)
	return nil
}

func (e *Engine) install(s game.State) {
	e.saveDebounce.Cancel()
	e.state = s
	e.hasSave = true
	e.dirty = false
	e.pushDirty = false
	e.lastTick = e.clock.Now()
}

// block opens a conflict. Nothing is written to either side until it is
// resolved.
func (e *Engine) block(c *reconcile.Conflict) {
	e.conflict = c
	e.status.Enabled = false
	e.status.Blocked = true
	e.status.Reason = c.Reason
	e.saveDebounce.Cancel()
	e.syncDebounce.Cancel()
	if e.pusher != nil {
		e.pusher.Discard()
	}
	e.logger.Warn("save conflict", "reason", c.Reason)
}

// resolve closes the conflict. The chosen snapshot becomes the state
// and is written to the side that lost. A kept local snapshot is
// stamped at now before it is saved and pushed; a cloud snapshot keeps
// its own LastSavedTime.
// CRITICAL: Called only from the Run goroutine.
func (e *Engine) resolve(ctx context.Context, choice reconcile.Choice) error {
	if e.conflict == nil {
		return ErrNoConflict
	}
	res, err := e.conflict.Resolve(choice)
	if err != nil {
		return err
	}
	write := e.adopt
	if res.Push {
		write = e.keep
	}
	if err := write(ctx, res.State); err != nil {
		return err
	}

	e.conflict = nil
	e.status.Blocked = false
	e.status.Reason = ""
	e.status.Enabled = true
	if res.Push && e.session != nil {
		e.pusher.Submit(e.session.UserID, e.state)
	}
	e.logger.Info("save conflict resolved", "choice", choice)
	e.publish()
	return nil
}

// applySignOut drops the remote identity. An unknown token still signs
// out locally; any other failure keeps the session.
// CRITICAL: Called only from the Run goroutine.
func (e *Engine) applySignOut(ctx context.Context, err error) (Result, error) {
	res := Result{Seq: e.seq.Next(), Command: (SignOut{}).Name(), Outcome: game.Outcome{Status: game.StatusNoop}}
	if err != nil && !errors.Is(err, remote.ErrNotSignedIn) {
		e.logger.Warn("sign-out failed", "error", err)
		return e.finish(res), err
	}

	if clearErr := e.gateway.ClearSession(ctx); clearErr != nil {
		e.logger.Warn("could not clear session", "error", clearErr)
	}
	// A push already handed to the pusher still lands; it carries the
	// signed-out user's own id.
	e.syncDebounce.Cancel()
	if e.status.Blocked {
		// Keep the local side; the paused interval is not credited.
		e.lastTick = e.clock.Now()
	}
	e.session = nil
	e.conflict = nil
	e.status = reconcile.Status{}
	e.logger.Info("signed out")

	res.Outcome = game.Outcome{Status: game.StatusOK}
	e.publish()
	return e.finish(res), nil
}
