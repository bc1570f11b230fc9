package engine

import (
	"sync"

	"github.com/roach88/evolve/internal/reconcile"
)

// eventKind distinguishes between event kinds.
type eventKind int

const (
	// eventCommand is a caller's Command awaiting a reply.
	eventCommand eventKind = iota + 1
	// eventSaveDue fires when the local save debounce elapses.
	eventSaveDue
	// eventPushDue fires when the remote push debounce elapses.
	eventPushDue
	// eventIdentity carries a finished sign-in and remote fetch.
	eventIdentity
	// eventSignedOut carries a finished sign-out.
	eventSignedOut
	// eventPushDone carries a finished remote push.
	eventPushDone
)

// event is one unit of work for the Run loop.
type event struct {
	kind     eventKind
	cmd      Command
	reply    chan<- reply
	identity *identityResult
	signOut  error
	push     *reconcile.PushResult
}

type reply struct {
	result Result
	err    error
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so timer callbacks and remote goroutines never
// block on a busy loop. The signal channel enables context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue. Safe from any
// goroutine. Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}

	e := q.events[0]
	// Release the slot's pointers for GC.
	q.events[0] = event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that signals when events may be available. It
// is closed by Close.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drained reports whether the queue is closed and empty. A signal can
// outlive the event it announced, so an empty queue alone does not mean
// the loop should stop.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close stops further enqueues and wakes any waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
