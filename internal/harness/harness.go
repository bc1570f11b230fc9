package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/roach88/evolve/internal/catalog"
	"github.com/roach88/evolve/internal/game"
)

// Rolls used for clicks: critRoll is below any crit chance, plainRoll
// above it.
const (
	critRoll  = 0
	plainRoll = 0.999999
)

// Harness executes scenarios against the game rules.
// It owns the scenario clock and the sequence counter, so a scenario
// produces the same trace on every run.
type Harness struct {
	rules  *game.Rules
	start  time.Time
	now    time.Time
	seq    int64
	state  game.State
	logger *slog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger logs every step at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithBalance replaces the balance the scenario's overrides apply to.
func WithBalance(b game.Balance) Option {
	return func(h *Harness) { h.rules.Balance = b }
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Load the catalog and apply balance overrides
// 2. Build the initial state from setup
// 3. Execute steps, checking expect clauses and invariants after each
// 4. Evaluate assertions against the trace and final state
//
// A returned error means the scenario could not run at all; failed
// checks are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	c, err := loadCatalog(scenario.Catalog)
	if err != nil {
		return nil, err
	}

	start := scenario.Start
	if start.IsZero() {
		start = DefaultStart
	}
	h := &Harness{
		rules:  game.NewRules(c, game.DefaultBalance()),
		start:  game.Stamp(start),
		now:    game.Stamp(start),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for _, opt := range opts {
		opt(h)
	}
	applyBalance(&h.rules.Balance, scenario.Balance)

	h.state, err = h.initial(scenario.Setup)
	if err != nil {
		return nil, fmt.Errorf("failed to apply setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev := h.execute(step)
		result.AddTrace(ev)

		h.logger.Debug("step completed",
			"step", i,
			"action", step.Action,
			"status", ev.Status,
			"error", ev.Error,
		)

		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, ev) {
				result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Action, msg))
			}
		}
		for _, msg := range CheckInvariants(h.rules, h.state) {
			result.AddError(fmt.Sprintf("steps[%d] %s: invariant violated: %s", i, step.Action, msg))
		}
	}

	result.Final = h.snapshot()
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		return catalog.Default()
	}
	return catalog.LoadDir(dir)
}

func applyBalance(b *game.Balance, o BalanceOverrides) {
	if o.BaseCritChance != nil {
		b.BaseCritChance = *o.BaseCritChance
	}
	if o.CritMultiplier != nil {
		b.CritMultiplier = *o.CritMultiplier
	}
	if o.BaseCooldown > 0 {
		b.BaseCooldown = o.BaseCooldown
	}
	if o.MaxOffline > 0 {
		b.MaxOffline = o.MaxOffline
	}
}

// initial builds the starting state. Yields are derived from the ledgers,
// never taken from setup.
func (h *Harness) initial(setup Setup) (game.State, error) {
	s := h.rules.Initial()
	if setup.Species != "" {
		if _, ok := h.rules.Catalog.LookupSpecies(setup.Species); !ok {
			return s, fmt.Errorf("unknown species %q", setup.Species)
		}
		s.CharacterID = setup.Species
	}
	if setup.Level > 0 {
		s.CharacterLevel = min(setup.Level, game.MaxLevel)
	}
	if setup.Exp > 0 {
		s.CharacterExp = setup.Exp
	}
	s.Currency = setup.Currency
	s.PrestigeCurrency = setup.Prestige
	s.PrestigeCount = setup.Ascensions
	if setup.Upgrades != nil {
		s.UpgradeLedger = maps.Clone(setup.Upgrades)
	}
	if setup.PrestigeUpgrades != nil {
		s.PrestigeLedger = maps.Clone(setup.PrestigeUpgrades)
	}
	s.LastSavedTime = h.now
	return h.rules.Refresh(s), nil
}

// execute runs one step, updating the harness state, and returns its
// trace event.
func (h *Harness) execute(step Step) TraceEvent {
	h.seq++
	ev := TraceEvent{
		Seq:    h.seq,
		Action: step.Action,
		Args:   stepArgs(step),
	}

	next, out, delta, err := h.apply(step)
	switch {
	case err != nil:
		var integrity *game.IntegrityError
		if errors.As(err, &integrity) {
			ev.Error = string(integrity.Code)
		} else {
			ev.Error = err.Error()
		}
	default:
		h.state = next
		ev.Status = string(out.Status)
		if !delta.empty() {
			ev.Delta = &delta
		}
	}

	ev.At = h.now.Sub(h.start).Seconds()
	ev.State = h.snapshot()
	return ev
}

func (h *Harness) apply(step Step) (game.State, game.Outcome, Delta, error) {
	s := h.state
	switch step.Action {
	case ActionClick:
		return h.click(step)

	case ActionPurchase:
		next, out, err := h.rules.Purchase(s, step.ID)
		return next, out, outcomeDelta(out), err

	case ActionPurchasePrestige:
		next, out, err := h.rules.PurchasePrestige(s, step.ID)
		if err == nil && out.Status == game.StatusOK {
			// Prestige purchases spend prestige currency, not energy.
			return next, out, Delta{Cost: out.Cost, Prestige: -out.Cost}, nil
		}
		return next, out, outcomeDelta(out), err

	case ActionStartMinigame:
		next, out, err := h.rules.StartMinigame(s, h.now)
		return next, out, outcomeDelta(out), err

	case ActionCompleteMinigame:
		reward := step.Reward.reward(h.seq)
		next, out, err := h.rules.CompleteMinigame(s, reward, h.now)
		return next, out, outcomeDelta(out), err

	case ActionAscend:
		next, out, err := h.rules.Ascend(s)
		return next, out, outcomeDelta(out), err

	case ActionChangeSettings:
		next, out := game.ChangeSettings(s, game.SettingsPatch{
			SoundEnabled:     step.Sound,
			VibrationEnabled: step.Vibration,
		})
		return next, out, Delta{}, nil

	case ActionReset:
		next := h.rules.Initial()
		next.LastSavedTime = h.now
		return next, game.Outcome{Status: game.StatusOK}, Delta{}, nil

	case ActionTick:
		h.now = h.now.Add(step.Duration)
		next, out, err := h.rules.Tick(s, step.Duration, h.now)
		return next, out, outcomeDelta(out), err

	case ActionWait:
		h.now = h.now.Add(step.Duration)
		return s, game.Outcome{}, Delta{}, nil

	case ActionOffline:
		s.LastSavedTime = h.now
		h.now = h.now.Add(step.Duration)
		next, report, err := h.rules.CatchUp(s, h.now)
		if err != nil {
			return s, game.Outcome{}, Delta{}, err
		}
		next.LastSavedTime = h.now
		return next, game.Outcome{Status: game.StatusOK, Progress: report.Progress}, Delta{
			Currency:       report.Currency,
			Exp:            report.Exp,
			LevelsGained:   report.Progress.LevelsGained,
			Evolutions:     report.Progress.Evolutions,
			OfflineSeconds: report.Seconds,
		}, nil
	}
	return s, game.Outcome{}, Delta{}, fmt.Errorf("unknown action %q", step.Action)
}

// click applies Times clicks and sums their effects.
func (h *Harness) click(step Step) (game.State, game.Outcome, Delta, error) {
	roll := plainRoll
	if step.Crit {
		roll = critRoll
	}
	times := max(step.Times, 1)

	s := h.state
	var (
		d        Delta
		progress game.Progress
	)
	for range times {
		next, out, err := h.rules.Click(s, h.now, roll)
		if err != nil {
			return h.state, game.Outcome{}, Delta{}, err
		}
		s = next
		d.Currency += out.CurrencyDelta
		d.Exp += out.ExpGained
		progress = progress.Merge(out.Progress)
		if out.Crit {
			d.Crits++
		}
	}
	d.LevelsGained = progress.LevelsGained
	d.Evolutions = progress.Evolutions
	return s, game.Outcome{Status: game.StatusOK, Progress: progress}, d, nil
}

func outcomeDelta(out game.Outcome) Delta {
	return Delta{
		Currency:     out.CurrencyDelta,
		Exp:          out.ExpGained,
		Cost:         out.Cost,
		Prestige:     out.PrestigeGain,
		LevelsGained: out.Progress.LevelsGained,
		Evolutions:   out.Progress.Evolutions,
	}
}

// reward converts the scenario form. Buffs get an ID derived from the
// step sequence so traces stay deterministic.
func (r *RewardSpec) reward(seq int64) *game.Reward {
	if r == nil {
		return nil
	}
	out := &game.Reward{
		Type:            game.RewardType(r.Type),
		Value:           r.Value,
		BuffKind:        game.BuffKind(r.Buff),
		Multiplier:      r.Multiplier,
		DurationSeconds: r.Duration.Seconds(),
		PenaltyType:     game.PenaltyType(r.Penalty),
	}
	if out.Type == game.RewardBuff {
		out.BuffID = fmt.Sprintf("buff-%d", seq)
	}
	return out
}

// stepArgs lists the fields the step's action reads.
func stepArgs(step Step) map[string]any {
	args := map[string]any{}
	switch step.Action {
	case ActionClick:
		args["times"] = max(step.Times, 1)
		if step.Crit {
			args["crit"] = true
		}
	case ActionPurchase, ActionPurchasePrestige:
		args["id"] = step.ID
	case ActionCompleteMinigame:
		if r := step.Reward; r != nil {
			reward := map[string]any{"type": r.Type}
			if r.Value != 0 {
				reward["value"] = r.Value
			}
			if r.Buff != "" {
				reward["buff"] = r.Buff
				reward["multiplier"] = r.Multiplier
				reward["duration"] = r.Duration.String()
			}
			if r.Penalty != "" {
				reward["penalty"] = r.Penalty
			}
			args["reward"] = reward
		}
	case ActionChangeSettings:
		if step.Sound != nil {
			args["sound"] = *step.Sound
		}
		if step.Vibration != nil {
			args["vibration"] = *step.Vibration
		}
	case ActionTick, ActionWait, ActionOffline:
		args["duration"] = step.Duration.String()
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

// snapshot projects the harness state at the scenario clock.
func (h *Harness) snapshot() Snapshot {
	s := h.state
	snap := Snapshot{
		Species:     s.CharacterID,
		Level:       s.CharacterLevel,
		Exp:         s.CharacterExp,
		Currency:    s.Currency,
		PerTap:      s.YieldPerAction,
		PerSecond:   s.YieldPerSecond,
		XPPerTap:    s.XPPerAction,
		XPPerSecond: s.XPPerSecond,
		Prestige:    s.PrestigeCurrency,
		Ascensions:  s.PrestigeCount,
		Phase:       string(game.CooldownPhase(s, h.now)),
		Minigame:    s.ActiveMinigameID,
		Sound:       s.Settings.SoundEnabled,
		Vibration:   s.Settings.VibrationEnabled,
	}
	if len(s.UpgradeLedger) > 0 {
		snap.Upgrades = maps.Clone(s.UpgradeLedger)
	}
	if len(s.PrestigeLedger) > 0 {
		snap.PrestigeUpgrades = maps.Clone(s.PrestigeLedger)
	}
	for _, b := range s.ActiveBuffs {
		if b.ActiveAt(h.now) {
			snap.Buffs = append(snap.Buffs, string(b.Kind))
		}
	}
	slices.Sort(snap.Buffs)
	return snap
}
