package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/roach88/evolve/internal/engine"
	"github.com/roach88/evolve/internal/game"
	"github.com/roach88/evolve/internal/reconcile"
)

// StatusView is the display model of a game state.
type StatusView struct {
	State            game.State         `json:"state"`
	Species          string             `json:"species"`
	RequiredExp      float64            `json:"requiredExp"`
	Phase            game.Phase         `json:"minigamePhase"`
	Minigame         string             `json:"minigame,omitempty"`
	CooldownSeconds  float64            `json:"cooldownSeconds"`
	CooldownProgress float64            `json:"cooldownProgress"`
	Buffs            []game.Description `json:"buffs,omitempty"`
	CanAscend        bool               `json:"canAscend"`
	AscensionGain    float64            `json:"ascensionGain,omitempty"`
	Upgrades         []UpgradeView      `json:"upgrades"`
	Sync             reconcile.Status   `json:"sync"`
	Identity         *engine.Identity   `json:"identity,omitempty"`
	Offline          *game.Offline      `json:"offline,omitempty"`
}

// UpgradeView is one row of the upgrade shop.
type UpgradeView struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Level      int     `json:"level"`
	Cost       float64 `json:"cost"`
	Affordable bool    `json:"affordable"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current game state",
		Long: `Show the current game state after offline catch-up.

Loading applies the energy and experience earned since the last save,
so running status also saves the caught-up state.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, a, err := runCommand(cmd, rootOpts, engine.Snapshot{}, true)
			if err != nil {
				return err
			}
			view := buildStatus(a.rules, res, a.clock.Now())
			if a.loaded.Offline.Seconds > 0 {
				offline := a.loaded.Offline
				view.Offline = &offline
			}
			f := rootOpts.formatter(cmd)
			if f.Format == "json" {
				return f.Success(view)
			}
			renderStatus(f.Writer, view)
			return nil
		},
	}
	return cmd
}

// buildStatus derives the display model from a command result.
func buildStatus(rules *game.Rules, res engine.Result, now time.Time) StatusView {
	s := res.State
	v := StatusView{
		State:            s,
		Species:          s.CharacterID,
		RequiredExp:      game.RequiredExp(s.CharacterLevel),
		Phase:            game.CooldownPhase(s, now),
		CooldownSeconds:  game.CooldownRemaining(s, now).Seconds(),
		CooldownProgress: game.CooldownProgress(s, now),
		Sync:             res.Sync,
		Identity:         res.Identity,
	}
	if species, ok := rules.Catalog.LookupSpecies(s.CharacterID); ok && species.Name != "" {
		v.Species = species.Name
	}
	if m, ok := rules.Catalog.MinigameFor(s.CharacterID); ok {
		v.Minigame = m.Kind
	}
	for _, b := range s.ActiveBuffs {
		if b.ActiveAt(now) {
			v.Buffs = append(v.Buffs, game.Describe(b, now))
		}
	}
	if ok, err := rules.CanAscend(s); err == nil && ok {
		v.CanAscend = true
		v.AscensionGain = game.AscensionGain(s.Currency)
	}
	for _, id := range rules.Catalog.UpgradeIDs() {
		u, _ := rules.Catalog.LookupUpgrade(id)
		level := s.UpgradeLedger[id]
		cost := u.Cost(level)
		v.Upgrades = append(v.Upgrades, UpgradeView{
			ID:         id,
			Title:      u.Title,
			Level:      level,
			Cost:       cost,
			Affordable: s.Currency >= cost,
		})
	}
	return v
}

var (
	statusTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212"))
	statusLabelStyle = lipgloss.NewStyle().
				Width(10).
				Foreground(lipgloss.Color("245"))
	statusGoodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusWarnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))
	statusFaintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// renderStatus writes the text form of v.
func renderStatus(w io.Writer, v StatusView) {
	s := v.State
	line := func(label, value string) {
		fmt.Fprintf(w, "%s%s\n", statusLabelStyle.Render(label), value)
	}

	fmt.Fprintf(w, "%s  Lv %d  %s\n",
		statusTitleStyle.Render(v.Species),
		s.CharacterLevel,
		statusFaintStyle.Render(fmt.Sprintf("%s/%s exp", FormatNumber(s.CharacterExp), FormatNumber(v.RequiredExp))),
	)
	line("Energy", fmt.Sprintf("%s  (+%s/tap, +%s/s)",
		FormatNumber(s.Currency), formatRate(s.YieldPerAction), formatRate(s.YieldPerSecond)))
	line("XP", fmt.Sprintf("+%s/tap, +%s/s", formatRate(s.XPPerAction), formatRate(s.XPPerSecond)))

	if s.PrestigeCount > 0 || s.PrestigeCurrency > 0 {
		line("Prestige", fmt.Sprintf("%s  (%d ascensions)", FormatNumber(s.PrestigeCurrency), s.PrestigeCount))
	}
	if v.CanAscend {
		line("Ascend", statusGoodStyle.Render(fmt.Sprintf("ready: +%s prestige", FormatNumber(v.AscensionGain))))
	}

	if len(v.Buffs) > 0 {
		parts := make([]string, 0, len(v.Buffs))
		for _, b := range v.Buffs {
			parts = append(parts, fmt.Sprintf("%s (%ds)", b.Title, b.RemainingSeconds))
		}
		line("Buffs", strings.Join(parts, ", "))
	}

	if v.Minigame != "" {
		line("Minigame", fmt.Sprintf("%s %s", v.Minigame, describePhase(v)))
	}

	line("Sync", describeSync(v))

	if len(v.Upgrades) > 0 {
		fmt.Fprintln(w, statusLabelStyle.Render("Upgrades"))
		for _, u := range v.Upgrades {
			cost := "cost " + FormatNumber(u.Cost)
			if u.Affordable {
				cost = statusGoodStyle.Render(cost)
			} else {
				cost = statusFaintStyle.Render(cost)
			}
			fmt.Fprintf(w, "  %-16s %-20s Lv %-4d %s\n", u.ID, u.Title, u.Level, cost)
		}
	}
}

func describePhase(v StatusView) string {
	switch v.Phase {
	case game.PhaseActive:
		return statusWarnStyle.Render("in progress")
	case game.PhaseCoolingDown:
		return fmt.Sprintf("cooling down %ds (%.0f%%)", int(v.CooldownSeconds+0.999), v.CooldownProgress*100)
	}
	return statusGoodStyle.Render("ready")
}

func describeSync(v StatusView) string {
	switch {
	case v.Sync.Blocked:
		return statusWarnStyle.Render("CONFLICT: "+v.Sync.Reason) +
			statusFaintStyle.Render("  (evolve resolve local|cloud)")
	case v.Identity == nil:
		return statusFaintStyle.Render("local only")
	case v.Sync.LastError != "":
		return fmt.Sprintf("%s, %s", v.Identity.Nickname, statusWarnStyle.Render("error: "+v.Sync.LastError))
	case v.Sync.Enabled:
		return fmt.Sprintf("%s, %s", v.Identity.Nickname, statusGoodStyle.Render("synced"))
	}
	return fmt.Sprintf("%s, sync paused", v.Identity.Nickname)
}

// formatRate shows small fractional rates that FormatNumber would floor.
func formatRate(v float64) string {
	if v > 0 && v < 1000 && v != float64(int64(v)) {
		return fmt.Sprintf("%.1f", v)
	}
	return FormatNumber(v)
}
