// Package reconcile decides what to do when a local save and a remote
// save meet, and pushes local state to the remote store.
//
// The decision compares lastSavedTime only. Equal timestamps mean both
// sides hold the same save. Different timestamps mean both sides moved
// independently; that is a conflict, and nothing is written to either
// side until the player chooses one. There is no merge.
package reconcile

import (
	"fmt"
	"time"

	"github.com/roach88/evolve/internal/game"
)

// Verdict is the outcome of comparing two saves.
type Verdict string

const (
	// VerdictUseLocal keeps the local state and pushes it. Chosen when
	// the remote has no save.
	VerdictUseLocal Verdict = "use_local"
	// VerdictAdoptRemote replaces local state with the remote save.
	// Chosen when there is no local save.
	VerdictAdoptRemote Verdict = "adopt_remote"
	// VerdictInSync means both sides hold the same save.
	VerdictInSync Verdict = "in_sync"
	// VerdictConflict blocks mutation until Resolve.
	VerdictConflict Verdict = "conflict"
)

// Policy tunes Decide.
type Policy struct {
	// AutoPushNewerLocal resolves a conflict in favour of local without
	// asking when the local save is strictly newer.
	AutoPushNewerLocal bool
}

// Decision is the result of Decide.
type Decision struct {
	Verdict  Verdict
	Conflict *Conflict
}

// Decide compares the local and remote saves. A nil pointer means that
// side has no save. When neither side has one the local state is used.
func Decide(local, remote *game.State, policy Policy) Decision {
	switch {
	case remote == nil:
		return Decision{Verdict: VerdictUseLocal}
	case local == nil:
		return Decision{Verdict: VerdictAdoptRemote}
	case local.LastSavedTime.Equal(remote.LastSavedTime):
		return Decision{Verdict: VerdictInSync}
	case policy.AutoPushNewerLocal && local.LastSavedTime.After(remote.LastSavedTime):
		return Decision{Verdict: VerdictUseLocal}
	}

	return Decision{
		Verdict: VerdictConflict,
		Conflict: &Conflict{
			Local:  local.Clone(),
			Remote: remote.Clone(),
			Reason: conflictReason(local.LastSavedTime, remote.LastSavedTime),
		},
	}
}

func conflictReason(local, remote time.Time) string {
	newer := "cloud"
	if local.After(remote) {
		newer = "local"
	}
	return fmt.Sprintf(
		"save conflict: local save from %s and cloud save from %s differ (%s is newer); choose local or cloud",
		local.UTC().Format(time.RFC3339), remote.UTC().Format(time.RFC3339), newer,
	)
}

// Choice selects the side that wins a conflict.
type Choice string

const (
	ChoiceLocal Choice = "local"
	ChoiceCloud Choice = "cloud"
)

// ParseChoice accepts "local" or "cloud".
func ParseChoice(s string) (Choice, error) {
	switch c := Choice(s); c {
	case ChoiceLocal, ChoiceCloud:
		return c, nil
	}
	return "", fmt.Errorf("unknown conflict choice %q (want local or cloud)", s)
}

// Conflict holds both snapshots taken when the conflict was detected.
type Conflict struct {
	Local  game.State
	Remote game.State
	Reason string
}

// Resolution is what a caller must do after a conflict is resolved.
type Resolution struct {
	// State becomes the canonical state. It equals the chosen snapshot.
	State game.State
	// Push is true when State must be pushed over the remote save.
	// Otherwise State must be written to the local store verbatim.
	Push bool
}

// Resolve picks one side.
func (c *Conflict) Resolve(choice Choice) (Resolution, error) {
	switch choice {
	case ChoiceLocal:
		return Resolution{State: c.Local.Clone(), Push: true}, nil
	case ChoiceCloud:
		return Resolution{State: c.Remote.Clone()}, nil
	}
	return Resolution{}, fmt.Errorf("unknown conflict choice %q", choice)
}

// Status is the sync state owned by the controller.
type Status struct {
	// UserID is empty when no remote identity is established.
	UserID string `json:"userId,omitempty"`
	// Enabled is true when local mutations are pushed to the remote.
	Enabled bool `json:"enabled"`
	// Pending is true while the remote save is being fetched.
	Pending bool `json:"pending,omitempty"`
	// Blocked is true while a conflict is unresolved. Reason explains it.
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
	// LastError is the most recent remote failure, cleared on success.
	LastError string `json:"lastError,omitempty"`
}
