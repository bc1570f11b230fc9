package engine

import (
	"github.com/roach88/evolve/internal/game"
	"github.com/roach88/evolve/internal/reconcile"
)

// Command is a request handled by the Run loop. The implementations are
// the types in this file.
type Command interface {
	// Name identifies the command in logs and errors.
	Name() string
}

// Click taps the character Times times. Times <= 0 means once. Each tap
// draws its own crit roll.
type Click struct {
	Times int
}

// Purchase buys one level of a regular upgrade.
type Purchase struct {
	UpgradeID string
}

// PurchasePrestige buys one level of a prestige upgrade.
type PurchasePrestige struct {
	UpgradeID string
}

// StartMinigame enters the current species' minigame.
type StartMinigame struct{}

// CompleteMinigame ends the active minigame with Reward, which may be
// nil. A buff reward without an id is assigned one.
type CompleteMinigame struct {
	Reward *game.Reward
}

// ChangeSettings updates preferences.
type ChangeSettings struct {
	Patch game.SettingsPatch
}

// Ascend converts progress into prestige currency.
type Ascend struct{}

// Reset clears the local save and restarts from the initial state.
type Reset struct{}

// SignUp creates an account, signs in and reconciles the saves.
type SignUp struct {
	Email    string
	Password string
	Nickname string
}

// SignIn signs in and reconciles the saves.
type SignIn struct {
	Email    string
	Password string
}

// ResumeSession re-establishes the session remembered in the local
// store and reconciles the saves.
type ResumeSession struct{}

// Resync fetches the remote save again for the current session and
// reconciles. Used after a failed fetch.
type Resync struct{}

// SignOut pushes pending progress and drops the remote identity.
type SignOut struct{}

// ResolveConflict unblocks a conflict by picking one side.
type ResolveConflict struct {
	Choice reconcile.Choice
}

// Flush writes the local save and pushes to the remote now.
type Flush struct{}

// Snapshot reads the state without changing it.
type Snapshot struct{}

func (Click) Name() string            { return "click" }
func (Purchase) Name() string         { return "purchase" }
func (PurchasePrestige) Name() string { return "purchase_prestige" }
func (StartMinigame) Name() string    { return "start_minigame" }
func (CompleteMinigame) Name() string { return "complete_minigame" }
func (ChangeSettings) Name() string   { return "change_settings" }
func (Ascend) Name() string           { return "ascend" }
func (Reset) Name() string            { return "reset" }
func (SignUp) Name() string           { return "sign_up" }
func (SignIn) Name() string           { return "sign_in" }
func (ResumeSession) Name() string    { return "resume_session" }
func (Resync) Name() string           { return "resync" }
func (SignOut) Name() string          { return "sign_out" }
func (ResolveConflict) Name() string  { return "resolve_conflict" }
func (Flush) Name() string            { return "flush" }
func (Snapshot) Name() string         { return "snapshot" }

// rejectedWhileBlocked reports whether cmd must fail with ErrBlocked
// while a conflict is open. Gameplay commands would diverge the state
// from both snapshots; identity commands would start a second
// reconciliation.
func rejectedWhileBlocked(cmd Command) bool {
	switch cmd.(type) {
	case Click, Purchase, PurchasePrestige, StartMinigame, CompleteMinigame,
		ChangeSettings, Ascend, Reset, SignUp, SignIn, ResumeSession, Resync:
		return true
	}
	return false
}

// Identity is the signed-in account as shown to callers. The session
// token is never exposed.
type Identity struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
}

// Result is the reply to a Command.
type Result struct {
	// Seq is the logical sequence number the command was applied at.
	Seq     int64        `json:"seq"`
	Command string       `json:"command"`
	Outcome game.Outcome `json:"outcome"`
	// Crits counts critical taps of a Click.
	Crits int `json:"crits,omitempty"`
	// State is a clone of the canonical state after the command.
	State    game.State       `json:"state"`
	Sync     reconcile.Status `json:"sync"`
	Identity *Identity        `json:"identity,omitempty"`
}

// Update is delivered to observers after every state or sync change.
type Update struct {
	// Seq is the number of the last command applied before the update.
	// Ticks publish without advancing it.
	Seq   int64
	State game.State
	Sync  reconcile.Status
}
