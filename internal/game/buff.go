package game

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// BuffKind selects which rate a buff multiplies.
type BuffKind string

const (
	// BuffXPMultiplier multiplies experience from clicks and passive accrual.
	BuffXPMultiplier BuffKind = "xp_multiplier"
	// BuffEnergyMultiplier multiplies currency from clicks and passive accrual.
	BuffEnergyMultiplier BuffKind = "energy_multiplier"
	// BuffCritChance multiplies the base critical-click chance.
	BuffCritChance BuffKind = "crit_chance_boost"
)

// Valid reports whether k is a known buff kind.
func (k BuffKind) Valid() bool {
	switch k {
	case BuffXPMultiplier, BuffEnergyMultiplier, BuffCritChance:
		return true
	}
	return false
}

func (k BuffKind) title() string {
	switch k {
	case BuffXPMultiplier:
		return "XP multiplier"
	case BuffEnergyMultiplier:
		return "Energy multiplier"
	case BuffCritChance:
		return "Crit chance"
	}
	return string(k)
}

// Buff is a time-bounded multiplicative modifier. It is active from
// StartTime until ExpiresAt and is removed, not flagged, afterwards.
type Buff struct {
	ID         string    `json:"id"`
	Kind       BuffKind  `json:"kind"`
	Multiplier float64   `json:"multiplier"`
	StartTime  time.Time `json:"startTime"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ActiveAt reports whether the buff still applies at now.
func (b Buff) ActiveAt(now time.Time) bool {
	return now.Before(b.ExpiresAt)
}

// AddBuff returns a new list with b appended.
func AddBuff(buffs []Buff, b Buff) []Buff {
	out := make([]Buff, 0, len(buffs)+1)
	out = append(out, buffs...)
	return append(out, b)
}

// SweepBuffs drops buffs expired at now, preserving insertion order.
// The input slice is returned as-is, with changed=false, when nothing
// expired.
func SweepBuffs(buffs []Buff, now time.Time) ([]Buff, bool) {
	kept := slices.DeleteFunc(slices.Clone(buffs), func(b Buff) bool {
		return !b.ActiveAt(now)
	})
	if len(kept) == len(buffs) {
		return buffs, false
	}
	return kept, true
}

// Sweep applies SweepBuffs to a state.
func Sweep(s State, now time.Time) (State, bool) {
	buffs, changed := SweepBuffs(s.ActiveBuffs, now)
	if !changed {
		return s, false
	}
	s.ActiveBuffs = buffs
	return s, true
}

// EffectiveMultiplier is the product of the multipliers of all buffs of
// kind active at now. Expired entries are ignored whether or not they
// have been swept, so the answer never depends on sweep timing.
func EffectiveMultiplier(kind BuffKind, buffs []Buff, now time.Time) float64 {
	m := 1.0
	for _, b := range buffs {
		if b.Kind == kind && b.ActiveAt(now) {
			m *= b.Multiplier
		}
	}
	return m
}

// Description is a display view of a buff.
type Description struct {
	Title            string `json:"title"`
	RemainingSeconds int    `json:"remainingSeconds"`
}

// Describe renders a buff for display. Remaining time rounds up so a
// buff that is still active never shows zero.
func Describe(b Buff, now time.Time) Description {
	remaining := b.ExpiresAt.Sub(now).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	return Description{
		Title:            fmt.Sprintf("%s x%g", b.Kind.title(), b.Multiplier),
		RemainingSeconds: int(math.Ceil(remaining)),
	}
}
