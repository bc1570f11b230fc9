// Package game implements the progression and economy rules of the
// idle game as pure reducers over an immutable State value.
//
// Every reducer has the shape
//
//	func (r *Rules) X(s State, ...) (State, Outcome, error)
//
// and never mutates its input: maps and slices are copied before they
// change. Expected conditions (not enough currency, minigame still
// cooling down, ascension not yet available) are reported through
// Outcome.Status with the input state returned unchanged and a nil
// error. A non-nil error is always an *IntegrityError: the state
// references an id the catalog does not define. The input state is
// returned unchanged in that case too, so a caller can log and carry on.
//
// Time never comes from a running timer. Callers pass now explicitly
// and every time-dependent rule (buff expiry, cooldowns, accrual,
// offline catch-up) is a comparison against stored timestamps.
package game
