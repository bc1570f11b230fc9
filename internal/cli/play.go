package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/evolve/internal/engine"
	"github.com/roach88/evolve/internal/game"
	"github.com/roach88/evolve/internal/reconcile"
)

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions
	Duration time.Duration
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Run the game loop interactively",
		Long: `Run the game loop: passive income accrues every tick and each line
read from stdin is one action.

Actions:
  <enter>, tap, click [n]   tap the character
  buy <id>, prestige <id>   buy an upgrade level
  ascend                    ascend for prestige currency
  start                     enter the minigame
  complete [reward-json]    finish the minigame
  resolve local|cloud       resolve a save conflict
  status                    show the full status
  quit                      save and exit

The game saves and syncs in the background and once more on exit
(quit, end of --duration, or Ctrl-C).

Example:
  evolve play
  evolve play --duration 10m`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until quit or Ctrl-C)")

	return cmd
}

// errQuit ends the play loop.
var errQuit = errors.New("quit")

func runPlay(opts *PlayOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := commandContext(cmd)
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	if opts.Duration > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, opts.Duration)
		defer timeoutCancel()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	a, err := openApp(ctx, cmd, opts.RootOptions, f, appOptions{resume: true})
	if err != nil {
		return err
	}

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	updates, unsubscribe := a.engine.Subscribe()
	defer unsubscribe()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	if f.Format != "json" {
		fmt.Fprintln(f.Writer, "Playing. Press enter to tap, type quit to exit.")
	}

	var last string
loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case u := <-updates:
			last = renderUpdate(f, u, last)

		case line, ok := <-lines:
			if !ok {
				// stdin closed: keep idling until the duration or a signal.
				lines = nil
				continue
			}
			if err := playLine(ctx, a, f, line); errors.Is(err, errQuit) {
				break loop
			}
		}
	}

	if err := a.Close(parentCtx); err != nil {
		return f.failWith(ErrCodeStorage, ExitFailure, "failed to save", err)
	}
	if f.Format != "json" {
		fmt.Fprintln(f.Writer, "Game saved.")
	}
	return nil
}

// renderUpdate prints u when its summary differs from the previous one
// and returns the new summary.
func renderUpdate(f *OutputFormatter, u engine.Update, last string) string {
	s := u.State
	line := fmt.Sprintf("Energy %s  Lv %d  %s/%s exp",
		FormatNumber(s.Currency), s.CharacterLevel,
		FormatNumber(s.CharacterExp), FormatNumber(game.RequiredExp(s.CharacterLevel)))
	if u.Sync.Blocked {
		line += "  [paused: save conflict]"
	}
	if line == last {
		return last
	}
	if f.Format == "json" {
		_ = f.Success(u)
	} else {
		fmt.Fprintln(f.Writer, line)
	}
	return line
}

// playLine runs one line of input. Failures are reported and play goes
// on; only quit returns an error.
func playLine(ctx context.Context, a *app, f *OutputFormatter, line string) error {
	c, err := parsePlayLine(line)
	if err != nil {
		if !errors.Is(err, errQuit) {
			_ = f.Error(ErrCodeInvalid, err.Error(), nil)
		}
		return err
	}

	res, err := a.engine.Submit(ctx, c)
	if err != nil {
		code, _ := classify(err)
		_ = f.Error(code, err.Error(), nil)
		return nil
	}

	if _, ok := c.(engine.Snapshot); ok {
		if f.Format == "json" {
			return f.Success(buildStatus(a.rules, res, a.clock.Now()))
		}
		renderStatus(f.Writer, buildStatus(a.rules, res, a.clock.Now()))
		return nil
	}
	if f.Format == "json" {
		return f.Success(res)
	}
	if !res.Outcome.Status.Changed() {
		fmt.Fprintf(f.Writer, "%s: %s\n", res.Command, res.Outcome.Status)
		return nil
	}
	if res.Command == (engine.Click{}).Name() {
		// The state line follows from the update.
		if res.Crits > 0 {
			fmt.Fprintf(f.Writer, "Critical! +%s\n", FormatNumber(res.Outcome.CurrencyDelta))
		}
		return nil
	}
	for _, l := range summarize(res) {
		fmt.Fprintln(f.Writer, l)
	}
	return nil
}

// parsePlayLine maps one input line to a command.
func parsePlayLine(line string) (engine.Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return engine.Click{Times: 1}, nil
	}

	verb, rest := strings.ToLower(fields[0]), fields[1:]
	arg := func() (string, error) {
		if len(rest) != 1 {
			return "", fmt.Errorf("%s takes one argument", verb)
		}
		return rest[0], nil
	}

	switch verb {
	case "tap", "click", "c":
		times := 1
		if len(rest) > 0 {
			n, err := strconv.Atoi(rest[0])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("click count must be a positive integer, got %q", rest[0])
			}
			times = n
		}
		return engine.Click{Times: times}, nil
	case "buy":
		id, err := arg()
		if err != nil {
			return nil, err
		}
		return engine.Purchase{UpgradeID: id}, nil
	case "prestige":
		id, err := arg()
		if err != nil {
			return nil, err
		}
		return engine.PurchasePrestige{UpgradeID: id}, nil
	case "ascend":
		return engine.Ascend{}, nil
	case "start":
		return engine.StartMinigame{}, nil
	case "complete":
		if len(rest) == 0 {
			return engine.CompleteMinigame{}, nil
		}
		reward := &game.Reward{}
		raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		if err := json.Unmarshal([]byte(raw), reward); err != nil {
			return nil, fmt.Errorf("invalid reward JSON: %w", err)
		}
		return engine.CompleteMinigame{Reward: reward}, nil
	case "resolve":
		s, err := arg()
		if err != nil {
			return nil, err
		}
		choice, err := reconcile.ParseChoice(s)
		if err != nil {
			return nil, err
		}
		return engine.ResolveConflict{Choice: choice}, nil
	case "status", "s":
		return engine.Snapshot{}, nil
	case "quit", "q", "exit":
		return nil, errQuit
	}
	return nil, fmt.Errorf("unknown action %q", verb)
}
