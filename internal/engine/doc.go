// Package engine implements the evolve game state controller.
//
// The engine owns the one canonical game state. It applies player
// commands, passive accrual ticks and remote sync results, and it
// schedules local saves and remote pushes.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every state change happens in the goroutine running Engine.Run. This
// ensures:
//   - Commands apply in submission order, each stamped with a logical
//     sequence number
//   - A click and a tick never interleave inside a reducer
//   - Observers see whole states only
//
// Event Processing Flow:
//  1. Submit enqueues a Command with a reply channel
//  2. Run dequeues events one at a time; the clock's ticker drives accrual
//  3. Reducers from package game compute the next state
//  4. The state is published to observers and the save debounce restarts
//  5. When the debounce fires, an internal event writes the save (and,
//     with sync enabled, hands the same snapshot to the pusher)
//
// Remote I/O (sign-in, fetch, push) never runs on the loop. Its results
// come back as events, so the loop decides against the current state.
//
// CRITICAL PATTERNS:
//
// Conflict gating:
// When the local and remote saves disagree the engine is blocked.
// Gameplay commands return a BlockedError, ticks advance the accrual
// cursor without crediting anything, and nothing is written to either
// store until ResolveConflict picks a side. The resolved state equals
// the chosen snapshot exactly.
//
// Shared timestamps:
// A push always follows a local save of the same snapshot, so both
// stores carry the same lastSavedTime and the next reconciliation finds
// them in sync.
package engine
