package game

import (
	"fmt"
	"math"
	"time"
)

// Phase is the state of the minigame cooldown machine.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseCoolingDown Phase = "cooling-down"
	PhaseReady       Phase = "ready"
	PhaseActive      Phase = "active"
)

// CooldownPhase derives the phase from stored timestamps. A state that
// has never completed a minigame is idle; idle and ready both allow
// entry.
func CooldownPhase(s State, now time.Time) Phase {
	switch {
	case s.ActiveMinigameID != "":
		return PhaseActive
	case s.NextMinigameAvailableAt.IsZero():
		return PhaseIdle
	case now.Before(s.NextMinigameAvailableAt):
		return PhaseCoolingDown
	default:
		return PhaseReady
	}
}

// CooldownRemaining returns the time left before the next entry. It is
// frozen at the paused remainder while a minigame is active.
func CooldownRemaining(s State, now time.Time) time.Duration {
	if s.ActiveMinigameID != "" {
		return seconds(s.CooldownPausedRemaining)
	}
	if s.NextMinigameAvailableAt.IsZero() || !now.Before(s.NextMinigameAvailableAt) {
		return 0
	}
	return s.NextMinigameAvailableAt.Sub(now)
}

// CooldownProgress returns the completed fraction of the current
// cooldown window in [0,1], for display.
func CooldownProgress(s State, now time.Time) float64 {
	if s.CooldownTotalDuration <= 0 {
		return 1
	}
	remaining := CooldownRemaining(s, now).Seconds()
	p := 1 - remaining/s.CooldownTotalDuration
	return math.Max(0, math.Min(1, p))
}

// RewardType tags the Reward union.
type RewardType string

const (
	RewardXPBoost RewardType = "xp_boost"
	RewardBuff    RewardType = "buff"
	RewardPenalty RewardType = "penalty"
)

// PenaltyType selects what a penalty reward takes away.
type PenaltyType string

const (
	PenaltyExtraCooldown PenaltyType = "extra_cooldown_seconds"
	PenaltyEnergyLoss    PenaltyType = "energy_loss_percent"
)

// Reward is the terminal value a minigame reports. Exactly one variant
// applies, selected by Type:
//
//	xp_boost: Value is a percentage of the current level's threshold
//	buff:     BuffKind, Multiplier, DurationSeconds
//	penalty:  PenaltyType and Value (seconds or percent)
//
// BuffID is assigned by the caller before the reward is applied.
type Reward struct {
	Type            RewardType  `json:"type"`
	Value           float64     `json:"value,omitempty"`
	BuffKind        BuffKind    `json:"buffType,omitempty"`
	Multiplier      float64     `json:"multiplier,omitempty"`
	DurationSeconds float64     `json:"duration,omitempty"`
	PenaltyType     PenaltyType `json:"penaltyType,omitempty"`
	BuffID          string      `json:"buffId,omitempty"`
}

// MaxRewardSeconds bounds buff durations and cooldown penalties so the
// window stays representable as a time.Duration.
const MaxRewardSeconds = 365 * 24 * 60 * 60

// Validate checks that the fields for Type are present and sane.
func (r Reward) Validate() error {
	switch r.Type {
	case RewardXPBoost:
		if !(r.Value >= 0) {
			return invalidReward("xp_boost value must be >= 0, got %v", r.Value)
		}
	case RewardBuff:
		if !r.BuffKind.Valid() {
			return invalidReward("unknown buff type %q", r.BuffKind)
		}
		if !(r.Multiplier > 0) {
			return invalidReward("buff multiplier must be > 0, got %v", r.Multiplier)
		}
		if !(r.DurationSeconds > 0 && r.DurationSeconds <= MaxRewardSeconds) {
			return invalidReward("buff duration must be in (0,%d], got %v", MaxRewardSeconds, r.DurationSeconds)
		}
	case RewardPenalty:
		switch r.PenaltyType {
		case PenaltyExtraCooldown:
			if !(r.Value >= 0 && r.Value <= MaxRewardSeconds) {
				return invalidReward("extra cooldown must be in [0,%d], got %v", MaxRewardSeconds, r.Value)
			}
		case PenaltyEnergyLoss:
			if !(r.Value >= 0 && r.Value <= 100) {
				return invalidReward("energy loss percent must be in [0,100], got %v", r.Value)
			}
		default:
			return invalidReward("unknown penalty type %q", r.PenaltyType)
		}
	default:
		return invalidReward("unknown reward type %q", r.Type)
	}
	return nil
}

// ApplyMinigameReward applies one reward. A nil reward is a no-op. The
// returned duration is the extra cooldown a penalty adds to the next
// window.
func (r *Rules) ApplyMinigameReward(s State, reward *Reward, now time.Time) (State, time.Duration, Progress, error) {
	if reward == nil {
		return s, 0, Progress{}, nil
	}
	if err := reward.Validate(); err != nil {
		return s, 0, Progress{}, err
	}

	switch reward.Type {
	case RewardXPBoost:
		gained := math.Floor(RequiredExp(s.CharacterLevel) * reward.Value / 100)
		next, p, err := r.ApplyExperience(s, gained)
		return next, 0, p, err

	case RewardBuff:
		start := Stamp(now)
		id := reward.BuffID
		if id == "" {
			id = fmt.Sprintf("%s-%d", reward.BuffKind, start.UnixMilli())
		}
		s.ActiveBuffs = AddBuff(s.ActiveBuffs, Buff{
			ID:         id,
			Kind:       reward.BuffKind,
			Multiplier: reward.Multiplier,
			StartTime:  start,
			ExpiresAt:  start.Add(seconds(reward.DurationSeconds)),
		})
		return s, 0, Progress{}, nil

	default: // RewardPenalty
		if reward.PenaltyType == PenaltyExtraCooldown {
			return s, seconds(reward.Value), Progress{}, nil
		}
		s.Currency = math.Max(0, s.Currency-s.Currency*reward.Value/100)
		return s, 0, Progress{}, nil
	}
}

// StartMinigame enters the current species' minigame. Entry needs the
// idle or ready phase and a species with a minigame. A species naming a
// minigame the catalog lacks is an integrity error. The remaining
// cooldown is captured into CooldownPausedRemaining.
func (r *Rules) StartMinigame(s State, now time.Time) (State, Outcome, error) {
	species, ok := r.Catalog.LookupSpecies(s.CharacterID)
	if !ok {
		return s, Outcome{}, unknownSpecies(s.CharacterID)
	}

	switch CooldownPhase(s, now) {
	case PhaseActive:
		return s, Outcome{Status: StatusMinigameActive}, nil
	case PhaseCoolingDown:
		return s, Outcome{Status: StatusCoolingDown}, nil
	}

	if species.Minigame == "" {
		return s, Outcome{Status: StatusNoMinigame}, nil
	}
	m, ok := r.Catalog.Minigames[species.Minigame]
	if !ok {
		return s, Outcome{}, unknownMinigame(species.Minigame)
	}

	s.CooldownPausedRemaining = CooldownRemaining(s, now).Seconds()
	s.ActiveMinigameID = m.ID
	return s, Outcome{Status: StatusOK}, nil
}

// CompleteMinigame applies the reward of the active minigame and starts
// a fresh cooldown window at now: the base cooldown plus any penalty
// extension. The paused remainder is not reused.
func (r *Rules) CompleteMinigame(s State, reward *Reward, now time.Time) (State, Outcome, error) {
	if s.ActiveMinigameID == "" {
		return s, Outcome{Status: StatusNoActiveMinigame}, nil
	}

	next, extra, p, err := r.ApplyMinigameReward(s, reward, now)
	if err != nil {
		return s, Outcome{}, err
	}

	next = r.startCooldown(next, s.ActiveMinigameID, extra, now)
	return next, Outcome{
		Status:        StatusOK,
		Progress:      p,
		CurrencyDelta: next.Currency - s.Currency,
		Reward:        reward,
	}, nil
}

// AbandonMinigame ends an active minigame with no reward and starts the
// normal cooldown. Used on load: a minigame never survives a restart.
func (r *Rules) AbandonMinigame(s State, now time.Time) State {
	if s.ActiveMinigameID == "" {
		return s
	}
	return r.startCooldown(s, s.ActiveMinigameID, 0, now)
}

func (r *Rules) startCooldown(s State, minigameID string, extra time.Duration, now time.Time) State {
	window := r.cooldownFor(minigameID) + extra
	start := Stamp(now)
	s.ActiveMinigameID = ""
	s.CooldownPausedRemaining = 0
	s.CooldownStartedAt = start
	s.CooldownTotalDuration = window.Seconds()
	s.NextMinigameAvailableAt = start.Add(window)
	return s
}

func (r *Rules) cooldownFor(minigameID string) time.Duration {
	if r.Balance.BaseCooldown > 0 {
		return r.Balance.BaseCooldown
	}
	if m, ok := r.Catalog.Minigames[minigameID]; ok && m.CooldownSeconds > 0 {
		return m.Cooldown()
	}
	return fallbackCooldown
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
