package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrBlocked is matched by every BlockedError.
	ErrBlocked = errors.New("engine: blocked by an unresolved save conflict")

	// ErrStopped is returned for commands submitted after Stop, or still
	// queued when the loop exits.
	ErrStopped = errors.New("engine: stopped")

	// ErrNoConflict is returned by ResolveConflict when nothing is blocked.
	ErrNoConflict = errors.New("engine: no save conflict to resolve")

	// ErrNoRemote is returned by account commands when no remote store
	// is configured.
	ErrNoRemote = errors.New("engine: remote features are not configured")

	// ErrSyncPending is returned when an account command arrives while a
	// sign-in is still in flight.
	ErrSyncPending = errors.New("engine: a sign-in is already in progress")
)

// BlockedError rejects a mutating command while a conflict is open.
type BlockedError struct {
	// Command names the rejected command.
	Command string
	// Reason is the human-readable conflict description.
	Reason string
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Command, e.Reason)
}

// Is matches ErrBlocked.
func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// IsBlocked reports whether err is a BlockedError. Uses errors.Is to
// handle wrapped errors.
func IsBlocked(err error) bool {
	return errors.Is(err, ErrBlocked)
}
