// Package clock abstracts wall-clock time for the game loop.
//
// Every time-dependent transition in the game (passive accrual, buff
// expiry, minigame cooldowns, debounced saves) is derived from Now()
// comparisons rather than from long-running timers, so a suspended or
// killed process never loses correctness. Timers are only used to wake
// the loop up: the tick ticker and the debounce AfterFunc callbacks.
//
// Production code uses Real(). Tests use Fake(), which only moves when
// Advance is called and fires AfterFunc callbacks synchronously in
// deadline order.
package clock
