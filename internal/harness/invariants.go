package harness

import (
	"fmt"
	"math"

	"github.com/roach88/evolve/internal/game"
)

// Invariant is a property every reachable game state satisfies.
type Invariant struct {
	Name  string
	Check func(r *game.Rules, s game.State) error
}

// Invariants are checked after every scenario step.
var Invariants = []Invariant{
	{"currency_non_negative", func(_ *game.Rules, s game.State) error {
		if !nonNegative(s.Currency) {
			return fmt.Errorf("currency is %v", s.Currency)
		}
		if !nonNegative(s.PrestigeCurrency) {
			return fmt.Errorf("prestige currency is %v", s.PrestigeCurrency)
		}
		return nil
	}},
	{"species_known", func(r *game.Rules, s game.State) error {
		if _, ok := r.Catalog.LookupSpecies(s.CharacterID); !ok {
			return fmt.Errorf("species %q is not in the catalog", s.CharacterID)
		}
		return nil
	}},
	{"level_in_range", func(_ *game.Rules, s game.State) error {
		if s.CharacterLevel < 1 || s.CharacterLevel > game.MaxLevel {
			return fmt.Errorf("level %d outside [1, %d]", s.CharacterLevel, game.MaxLevel)
		}
		return nil
	}},
	{"exp_below_threshold", func(_ *game.Rules, s game.State) error {
		if !nonNegative(s.CharacterExp) || s.CharacterExp >= game.RequiredExp(s.CharacterLevel) {
			return fmt.Errorf("exp %v not in [0, %v) at level %d",
				s.CharacterExp, game.RequiredExp(s.CharacterLevel), s.CharacterLevel)
		}
		return nil
	}},
	{"yields_derived", func(r *game.Rules, s game.State) error {
		want := game.RecomputeYields(r.Catalog, s.UpgradeLedger, s.PrestigeLedger)
		if got := s.Yields(); got != want {
			return fmt.Errorf("yields %+v, ledgers give %+v", got, want)
		}
		return nil
	}},
	{"ledgers_non_negative", func(_ *game.Rules, s game.State) error {
		for id, level := range s.UpgradeLedger {
			if level < 0 {
				return fmt.Errorf("upgrade %s at level %d", id, level)
			}
		}
		for id, level := range s.PrestigeLedger {
			if level < 0 {
				return fmt.Errorf("prestige upgrade %s at level %d", id, level)
			}
		}
		return nil
	}},
}

// CheckInvariants returns one message per violated invariant.
func CheckInvariants(r *game.Rules, s game.State) []string {
	var msgs []string
	for _, inv := range Invariants {
		if err := inv.Check(r, s); err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: %v", inv.Name, err))
		}
	}
	return msgs
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
