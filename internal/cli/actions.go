package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/evolve/internal/engine"
	"github.com/roach88/evolve/internal/game"
)

// NewClickCommand creates the click command.
func NewClickCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "click [times]",
		Short: "Tap the character",
		Long: `Tap the character for energy and experience.

Each tap rolls for a critical hit on its own. Taps that push experience
over the level threshold level up, and may evolve the character.

Example:
  evolve click
  evolve click 25`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			times := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return invalidArgument(rootOpts.formatter(cmd), fmt.Sprintf("times must be a positive integer, got %q", args[0]))
				}
				times = n
			}
			return runAction(cmd, rootOpts, engine.Click{Times: times}, false)
		},
	}
	return cmd
}

// NewBuyCommand creates the buy command.
func NewBuyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buy <upgrade-id>",
		Short: "Buy one level of an upgrade",
		Long: `Buy one level of an upgrade with evolution energy.

Run "evolve status" for the upgrade ids and their current prices.

Example:
  evolve buy stronger_click`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, rootOpts, engine.Purchase{UpgradeID: args[0]}, false)
		},
	}
	return cmd
}

// NewPrestigeCommand creates the prestige command.
func NewPrestigeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prestige <upgrade-id>",
		Short: "Buy one level of a prestige upgrade",
		Long: `Buy one level of a prestige upgrade with prestige currency.

Prestige upgrades unlock after the first ascension and survive later
ascensions.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, rootOpts, engine.PurchasePrestige{UpgradeID: args[0]}, false)
		},
	}
	return cmd
}

// NewAscendCommand creates the ascend command.
func NewAscendCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ascend",
		Short: "Trade all progress for prestige currency",
		Long: `Ascend once the final evolution reaches its evolution level.

Energy, upgrades, species and level restart from the beginning; prestige
currency, prestige upgrades and settings are kept.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, rootOpts, engine.Ascend{}, false)
		},
	}
	return cmd
}

// MinigameOptions holds flags for the minigame complete command.
type MinigameOptions struct {
	*RootOptions
	Reward string
}

// NewMinigameCommand creates the minigame command group.
func NewMinigameCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "minigame",
		Short: "Start or complete the species minigame",
	}

	start := &cobra.Command{
		Use:           "start",
		Short:         "Enter the minigame when its cooldown is over",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, rootOpts, engine.StartMinigame{}, false)
		},
	}

	opts := &MinigameOptions{RootOptions: rootOpts}
	complete := &cobra.Command{
		Use:   "complete",
		Short: "Finish the active minigame with its reward",
		Long: `Finish the active minigame and apply the reward it reported.

The reward is JSON with a "type" of xp_boost, buff or penalty. Omit
--reward to finish without one.

Example:
  evolve minigame complete --reward '{"type":"xp_boost","value":25}'
  evolve minigame complete --reward '{"type":"buff","buffType":"energy_multiplier","multiplier":2,"duration":60}'
  evolve minigame complete --reward '{"type":"penalty","penaltyType":"energy_loss_percent","value":10}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var reward *game.Reward
			if opts.Reward != "" {
				reward = &game.Reward{}
				if err := json.Unmarshal([]byte(opts.Reward), reward); err != nil {
					return invalidArgument(rootOpts.formatter(cmd), fmt.Sprintf("invalid --reward JSON: %v", err))
				}
			}
			return runAction(cmd, rootOpts, engine.CompleteMinigame{Reward: reward}, false)
		},
	}
	complete.Flags().StringVar(&opts.Reward, "reward", "", "reward as JSON")

	cmd.AddCommand(start, complete)
	return cmd
}

// SettingsOptions holds flags for the settings command.
type SettingsOptions struct {
	*RootOptions
	Sound     bool
	Vibration bool
}

// NewSettingsCommand creates the settings command.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SettingsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change preferences",
		Long: `Show or change preferences. Only the flags given are changed.

Example:
  evolve settings --sound=false`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch game.SettingsPatch
			if cmd.Flags().Changed("sound") {
				patch.SoundEnabled = &opts.Sound
			}
			if cmd.Flags().Changed("vibration") {
				patch.VibrationEnabled = &opts.Vibration
			}
			res, _, err := runCommand(cmd, rootOpts, engine.ChangeSettings{Patch: patch}, true)
			if err != nil {
				return err
			}
			f := rootOpts.formatter(cmd)
			if f.Format == "json" {
				return f.Success(res.State.Settings)
			}
			fmt.Fprintf(f.Writer, "sound: %s\nvibration: %s\n",
				onOff(res.State.Settings.SoundEnabled), onOff(res.State.Settings.VibrationEnabled))
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Sound, "sound", true, "enable sound")
	cmd.Flags().BoolVar(&opts.Vibration, "vibration", true, "enable vibration")

	return cmd
}

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	Yes bool
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the local save and start over",
		Long: `Delete the local save and start over from the initial state.

When signed in, the fresh state is pushed over the remote save too.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Yes {
				return invalidArgument(rootOpts.formatter(cmd), "reset deletes all progress; pass --yes to confirm")
			}
			return runAction(cmd, rootOpts, engine.Reset{}, false)
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "confirm the reset")

	return cmd
}

// runAction submits a gameplay command and reports its result.
func runAction(cmd *cobra.Command, opts *RootOptions, c engine.Command, allowNoop bool) error {
	res, _, err := runCommand(cmd, opts, c, allowNoop)
	if err != nil {
		return err
	}
	f := opts.formatter(cmd)
	if f.Format == "json" {
		return f.Success(res)
	}
	for _, line := range summarize(res) {
		fmt.Fprintln(f.Writer, line)
	}
	return nil
}

// summarize describes a result in a few lines of text.
func summarize(res engine.Result) []string {
	out := res.Outcome
	s := res.State
	var lines []string

	switch res.Command {
	case engine.Click{}.Name():
		line := fmt.Sprintf("+%s energy, +%s exp", FormatNumber(out.CurrencyDelta), FormatNumber(out.ExpGained))
		if res.Crits > 0 {
			line += fmt.Sprintf(" (%d crit)", res.Crits)
		}
		lines = append(lines, line)
	case engine.Purchase{}.Name(), engine.PurchasePrestige{}.Name():
		lines = append(lines, fmt.Sprintf("Bought for %s", FormatNumber(out.Cost)))
	case engine.Ascend{}.Name():
		lines = append(lines, fmt.Sprintf("Ascended: +%s prestige (%d total ascensions)", FormatNumber(out.PrestigeGain), s.PrestigeCount))
	case engine.StartMinigame{}.Name():
		lines = append(lines, fmt.Sprintf("Minigame %s started", s.ActiveMinigameID))
	case engine.CompleteMinigame{}.Name():
		lines = append(lines, describeReward(out.Reward))
	case engine.Reset{}.Name():
		lines = append(lines, "Progress reset")
	}

	if out.Progress.LevelsGained > 0 {
		lines = append(lines, fmt.Sprintf("Level up! Now level %d", s.CharacterLevel))
	}
	for _, id := range out.Progress.Evolutions {
		lines = append(lines, fmt.Sprintf("Evolved into %s!", id))
	}
	lines = append(lines, fmt.Sprintf("Energy %s  Lv %d  %s/%s exp",
		FormatNumber(s.Currency), s.CharacterLevel,
		FormatNumber(s.CharacterExp), FormatNumber(game.RequiredExp(s.CharacterLevel))))
	return lines
}

func describeReward(r *game.Reward) string {
	if r == nil {
		return "Minigame finished without a reward"
	}
	switch r.Type {
	case game.RewardXPBoost:
		return fmt.Sprintf("Reward: +%g%% of the level threshold as experience", r.Value)
	case game.RewardBuff:
		return fmt.Sprintf("Reward: %s x%g for %gs", r.BuffKind, r.Multiplier, r.DurationSeconds)
	case game.RewardPenalty:
		return fmt.Sprintf("Penalty: %s %g", r.PenaltyType, r.Value)
	}
	return "Minigame finished"
}

// invalidArgument reports a bad flag or argument.
func invalidArgument(f *OutputFormatter, message string) error {
	_ = f.Error(ErrCodeInvalid, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", ErrCodeInvalid, message))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
