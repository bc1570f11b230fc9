package game

import (
	"math"
	"time"
)

// Click applies one user click at now. roll is a uniform sample in
// [0,1) deciding a critical click; callers inject it so reducers stay
// deterministic.
func (r *Rules) Click(s State, now time.Time, roll float64) (State, Outcome, error) {
	if _, ok := r.Catalog.LookupSpecies(s.CharacterID); !ok {
		return s, Outcome{}, unknownSpecies(s.CharacterID)
	}
	swept, _ := Sweep(s, now)

	crit := roll < r.Balance.BaseCritChance*EffectiveMultiplier(BuffCritChance, swept.ActiveBuffs, now)
	energy := swept.YieldPerAction * EffectiveMultiplier(BuffEnergyMultiplier, swept.ActiveBuffs, now)
	if crit {
		energy *= r.Balance.CritMultiplier
	}
	xp := swept.XPPerAction * EffectiveMultiplier(BuffXPMultiplier, swept.ActiveBuffs, now)

	swept.Currency += energy
	next, p, err := r.ApplyExperience(swept, xp)
	if err != nil {
		return s, Outcome{}, err
	}
	return next, Outcome{
		Status:        StatusOK,
		Progress:      p,
		CurrencyDelta: energy,
		ExpGained:     xp,
		Crit:          crit,
	}, nil
}

// Purchase buys the next level of an upgrade and recomputes yields in
// the same step.
func (r *Rules) Purchase(s State, id string) (State, Outcome, error) {
	u, ok := r.Catalog.LookupUpgrade(id)
	if !ok {
		return s, Outcome{}, unknownUpgrade(id)
	}
	cost := u.Cost(s.UpgradeLedger[id])
	if s.Currency < cost {
		return s, Outcome{Status: StatusInsufficientFunds, Cost: cost}, nil
	}

	next := s.Clone()
	next.Currency = math.Max(0, next.Currency-cost)
	next.UpgradeLedger[id]++
	next = withYields(next, RecomputeYields(r.Catalog, next.UpgradeLedger, next.PrestigeLedger))
	return next, Outcome{Status: StatusOK, Cost: cost, CurrencyDelta: -cost}, nil
}

// PurchasePrestige buys the next level of a prestige upgrade with
// prestige currency. The track is locked until the first ascension.
func (r *Rules) PurchasePrestige(s State, id string) (State, Outcome, error) {
	p, ok := r.Catalog.LookupPrestigeUpgrade(id)
	if !ok {
		return s, Outcome{}, unknownPrestigeUpgrade(id)
	}
	if s.PrestigeCount < 1 {
		return s, Outcome{Status: StatusLocked}, nil
	}
	cost := p.Cost(s.PrestigeLedger[id])
	if s.PrestigeCurrency < cost {
		return s, Outcome{Status: StatusInsufficientFunds, Cost: cost}, nil
	}

	next := s.Clone()
	next.PrestigeCurrency = math.Max(0, next.PrestigeCurrency-cost)
	next.PrestigeLedger[id]++
	next = withYields(next, RecomputeYields(r.Catalog, next.UpgradeLedger, next.PrestigeLedger))
	return next, Outcome{Status: StatusOK, Cost: cost}, nil
}

// Tick sweeps expired buffs and applies passive accrual for elapsed
// wall-clock time ending at now. Buff multipliers are evaluated at now.
func (r *Rules) Tick(s State, elapsed time.Duration, now time.Time) (State, Outcome, error) {
	if _, ok := r.Catalog.LookupSpecies(s.CharacterID); !ok {
		return s, Outcome{}, unknownSpecies(s.CharacterID)
	}
	next, swept := Sweep(s, now)

	secs := elapsed.Seconds()
	if secs < 0 {
		secs = 0
	}
	energy := next.YieldPerSecond * secs * EffectiveMultiplier(BuffEnergyMultiplier, next.ActiveBuffs, now)
	xp := next.XPPerSecond * secs * EffectiveMultiplier(BuffXPMultiplier, next.ActiveBuffs, now)
	if energy <= 0 && xp <= 0 {
		if swept {
			return next, Outcome{Status: StatusOK}, nil
		}
		return s, Outcome{Status: StatusNoop}, nil
	}

	next.Currency += math.Max(0, energy)
	next, p, err := r.ApplyExperience(next, xp)
	if err != nil {
		return s, Outcome{}, err
	}
	return next, Outcome{
		Status:        StatusOK,
		Progress:      p,
		CurrencyDelta: math.Max(0, energy),
		ExpGained:     math.Max(0, xp),
	}, nil
}

// Offline reports what CatchUp applied.
type Offline struct {
	Seconds           float64  `json:"seconds"`
	Currency          float64  `json:"currency"`
	Exp               float64  `json:"exp"`
	Progress          Progress `json:"progress"`
	AbandonedMinigame string   `json:"abandonedMinigame,omitempty"`
}

// CatchUp applies the accrual for the time between LastSavedTime and
// now at the stored per-second rates, without buff multipliers. The
// elapsed time is clamped at zero and at Balance.MaxOffline when set. A
// minigame left active is abandoned with no reward and its cooldown
// starts at now. Expired buffs are swept.
//
// CatchUp does not touch LastSavedTime. The interval is consumed only
// when the result is saved, which stamps it.
func (r *Rules) CatchUp(s State, now time.Time) (State, Offline, error) {
	var report Offline
	if !s.LastSavedTime.IsZero() {
		report.Seconds = math.Max(0, now.Sub(s.LastSavedTime).Seconds())
	}
	if r.Balance.MaxOffline > 0 {
		report.Seconds = math.Min(report.Seconds, r.Balance.MaxOffline.Seconds())
	}
	report.Currency = s.YieldPerSecond * report.Seconds
	report.Exp = s.XPPerSecond * report.Seconds

	next, _ := Sweep(s, now)
	next.Currency += math.Max(0, report.Currency)

	next, p, err := r.ApplyExperience(next, report.Exp)
	if err != nil {
		return s, Offline{}, err
	}
	report.Progress = p

	if next.ActiveMinigameID != "" {
		report.AbandonedMinigame = next.ActiveMinigameID
		next = r.AbandonMinigame(next, now)
	}
	return next, report, nil
}

// AscensionGain is the prestige currency an ascension with currency grants.
func AscensionGain(currency float64) float64 {
	return 1 + math.Floor(math.Sqrt(math.Max(0, currency)/1000))
}

// CanAscend reports whether the character has finished its evolution
// chain: a terminal species at or past its evolution level.
func (r *Rules) CanAscend(s State) (bool, error) {
	species, ok := r.Catalog.LookupSpecies(s.CharacterID)
	if !ok {
		return false, unknownSpecies(s.CharacterID)
	}
	return species.Terminal() && s.CharacterLevel >= species.EvolutionLevel, nil
}

// Ascend trades the current run for prestige currency. Progression
// returns to the initial state; the prestige ledger, prestige currency
// and settings carry over.
func (r *Rules) Ascend(s State) (State, Outcome, error) {
	ok, err := r.CanAscend(s)
	if err != nil {
		return s, Outcome{}, err
	}
	if !ok {
		return s, Outcome{Status: StatusLocked}, nil
	}

	gain := AscensionGain(s.Currency)
	next := r.Initial()
	next.LastSavedTime = s.LastSavedTime
	next.Settings = s.Settings
	next.PrestigeLedger = s.Clone().PrestigeLedger
	next.PrestigeCurrency = s.PrestigeCurrency + gain
	next.PrestigeCount = s.PrestigeCount + 1
	next = withYields(next, RecomputeYields(r.Catalog, next.UpgradeLedger, next.PrestigeLedger))
	return next, Outcome{Status: StatusOK, PrestigeGain: gain, CurrencyDelta: -s.Currency}, nil
}

// ChangeSettings applies a settings patch.
func ChangeSettings(s State, patch SettingsPatch) (State, Outcome) {
	next := s.Settings
	if patch.SoundEnabled != nil {
		next.SoundEnabled = *patch.SoundEnabled
	}
	if patch.VibrationEnabled != nil {
		next.VibrationEnabled = *patch.VibrationEnabled
	}
	if next == s.Settings {
		return s, Outcome{Status: StatusNoop}
	}
	s.Settings = next
	return s, Outcome{Status: StatusOK}
}
