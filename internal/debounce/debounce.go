// Package debounce coalesces bursts of triggers into one call with
// bounded staleness.
//
// A Debouncer fires delay after the last Trigger, but never later than
// maxWait after the first Trigger of a burst, so a steady stream of
// triggers (rapid clicks) cannot postpone the call indefinitely.
package debounce

import (
	"sync"
	"time"

	"github.com/roach88/evolve/internal/clock"
)

// Debouncer runs fn once per burst of Trigger calls.
//
// fn runs on the clock's timer goroutine (or synchronously inside
// FakeClock.Advance) and must not call back into the Debouncer.
type Debouncer struct {
	clock   clock.Clock
	delay   time.Duration
	maxWait time.Duration
	fn      func()

	mu      sync.Mutex
	timer   *clock.Timer
	pending bool
	first   time.Time
	// generation guards against a stopped timer whose callback was
	// already dispatched.
	generation uint64
}

// New creates a Debouncer. maxWait <= 0 disables the staleness bound.
func New(c clock.Clock, delay, maxWait time.Duration, fn func()) *Debouncer {
	return &Debouncer{clock: c, delay: delay, maxWait: maxWait, fn: fn}
}

// Trigger schedules fn, restarting the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	now := d.clock.Now()
	if !d.pending {
		d.pending = true
		d.first = now
	}

	wait := d.delay
	if d.maxWait > 0 {
		if limit := d.first.Add(d.maxWait).Sub(now); limit < wait {
			wait = limit
		}
	}

	d.stopLocked()
	if wait <= 0 {
		d.pending = false
		d.mu.Unlock()
		d.fn()
		return
	}

	d.generation++
	gen := d.generation
	d.timer = d.clock.AfterFunc(wait, func() { d.fire(gen) })
	d.mu.Unlock()
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.generation || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}

// Flush runs fn now if a call is pending and reports whether it did.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	d.pending = false
	d.stopLocked()
	d.mu.Unlock()

	d.fn()
	return true
}

// Cancel drops a pending call without running it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = false
	d.stopLocked()
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer) stopLocked() {
	d.generation++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
