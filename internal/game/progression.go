package game

import "math"

// MaxLevel bounds the level-up loop. At MaxLevel experience is clamped
// just below the threshold so the invariant exp < RequiredExp(level)
// still holds.
const MaxLevel = 10000

// RequiredExp returns the experience needed to advance from level:
// floor(100 * level^1.5), computed as level*sqrt(level) so perfect
// squares are exact. It depends on level alone, never on accumulated
// experience. Levels below 1 are treated as 1.
func RequiredExp(level int) float64 {
	if level < 1 {
		level = 1
	}
	l := float64(level)
	return math.Floor(100 * l * math.Sqrt(l))
}

// ApplyExperience adds gained experience and runs the level-up cascade:
// while exp reaches the threshold, the threshold is subtracted, the
// level increments and, if the species evolves at the new level, the
// character becomes its evolution target. One call with X produces the
// same (level, exp, characterId) as any sequence of calls summing to X.
//
// Non-positive or NaN gains are no-ops. An unknown species anywhere in
// the cascade leaves the state unchanged and returns an *IntegrityError.
func (r *Rules) ApplyExperience(s State, gained float64) (State, Progress, error) {
	if _, ok := r.Catalog.LookupSpecies(s.CharacterID); !ok {
		return s, Progress{}, unknownSpecies(s.CharacterID)
	}
	if !(gained > 0) {
		return s, Progress{}, nil
	}

	next := s
	next.CharacterExp += gained
	var p Progress

	for next.CharacterExp >= RequiredExp(next.CharacterLevel) {
		if next.CharacterLevel >= MaxLevel {
			next.CharacterExp = RequiredExp(MaxLevel) - 1
			break
		}

		species, ok := r.Catalog.LookupSpecies(next.CharacterID)
		if !ok {
			return s, Progress{}, unknownSpecies(next.CharacterID)
		}

		next.CharacterExp -= RequiredExp(next.CharacterLevel)
		next.CharacterLevel++
		p.LevelsGained++

		if species.EvolvesTo != "" && next.CharacterLevel >= species.EvolutionLevel {
			if _, ok := r.Catalog.LookupSpecies(species.EvolvesTo); !ok {
				return s, Progress{}, unknownSpecies(species.EvolvesTo)
			}
			next.CharacterID = species.EvolvesTo
			p.Evolutions = append(p.Evolutions, species.EvolvesTo)
		}
	}

	return next, p, nil
}
