package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/roach88/evolve/internal/engine"
	"github.com/roach88/evolve/internal/reconcile"
	"github.com/roach88/evolve/internal/remote"
)

// AccountOptions holds flags for signup and login.
type AccountOptions struct {
	*RootOptions
	Email    string
	Password string
	Nickname string
}

// NewSignUpCommand creates the signup command.
func NewSignUpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sync this save to it",
		Long: `Create an account on the remote store, sign in and reconcile saves.

The password is read from the first line of stdin when --password is
not given. The nickname is shown on the leaderboard.

Example:
  evolve signup --email ash@example.com --nickname Ash`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, opts.Password)
			if err != nil {
				return invalidArgument(rootOpts.formatter(cmd), err.Error())
			}
			return runAccount(cmd, rootOpts, engine.SignUp{Email: opts.Email, Password: password, Nickname: opts.Nickname}, false)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password (default: read from stdin)")
	cmd.Flags().StringVar(&opts.Nickname, "nickname", remote.DefaultNickname, "leaderboard nickname")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and reconcile the local and remote saves",
		Long: `Sign in and reconcile the local and remote saves.

Saves with different timestamps are a conflict: gameplay stays blocked
until "evolve resolve local" or "evolve resolve cloud" picks a side.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, opts.Password)
			if err != nil {
				return invalidArgument(rootOpts.formatter(cmd), err.Error())
			}
			return runAccount(cmd, rootOpts, engine.SignIn{Email: opts.Email, Password: password}, false)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password (default: read from stdin)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "logout",
		Short:         "Push pending progress and sign out",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccount(cmd, rootOpts, engine.SignOut{}, true)
		},
	}
	return cmd
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <local|cloud>",
		Short: "Resolve a save conflict by keeping one side",
		Long: `Resolve a save conflict by keeping one side exactly.

local pushes this device's save over the remote one; cloud replaces the
local save with the remote one.`,
		Args:          cobra.ExactArgs(1),
		ValidArgs:     []string{string(reconcile.ChoiceLocal), string(reconcile.ChoiceCloud)},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			choice, err := reconcile.ParseChoice(args[0])
			if err != nil {
				return invalidArgument(rootOpts.formatter(cmd), err.Error())
			}
			return runAccount(cmd, rootOpts, engine.ResolveConflict{Choice: choice}, true)
		},
	}
	return cmd
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Save now and push to the remote",
		Long: `Write the local save and push it to the remote save now.

Also reports the sync state, including a conflict left open by an
earlier run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccount(cmd, rootOpts, engine.Flush{}, true)
		},
	}
	return cmd
}

// AccountView is the payload of the account commands.
type AccountView struct {
	Command  string           `json:"command"`
	Identity *engine.Identity `json:"identity,omitempty"`
	Sync     reconcile.Status `json:"sync"`
}

// runAccount submits an account command. resume re-establishes the
// remembered session first.
func runAccount(cmd *cobra.Command, opts *RootOptions, c engine.Command, resume bool) error {
	f := opts.formatter(cmd)
	ctx := commandContext(cmd)

	a, err := openApp(ctx, cmd, opts, f, appOptions{resume: resume})
	if err != nil {
		return err
	}
	res, submitErr := a.engine.Submit(ctx, c)
	closeErr := a.Close(ctx)
	if submitErr != nil {
		return f.Fail(fmt.Sprintf("%s failed", c.Name()), submitErr)
	}
	if closeErr != nil {
		return f.failWith(ErrCodeStorage, ExitFailure, "failed to save", closeErr)
	}

	view := AccountView{Command: res.Command, Identity: res.Identity, Sync: res.Sync}
	if f.Format == "json" {
		return f.Success(view)
	}

	switch {
	case res.Identity == nil:
		fmt.Fprintln(f.Writer, "Signed out; playing locally")
	default:
		fmt.Fprintf(f.Writer, "Signed in as %s (%s)\n", res.Identity.Nickname, res.Identity.Email)
	}
	if res.Sync.Blocked {
		fmt.Fprintf(f.Writer, "Save conflict: %s\n", res.Sync.Reason)
		fmt.Fprintln(f.Writer, "Gameplay is paused until you run: evolve resolve local|cloud")
	} else if res.Sync.LastError != "" {
		fmt.Fprintf(f.Writer, "Sync error: %s\n", res.Sync.LastError)
	} else if res.Sync.Enabled {
		fmt.Fprintln(f.Writer, "Saves in sync")
	}
	return nil
}

// readPassword returns flag, or the first line of stdin.
func readPassword(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("no password given: %w", err)
		}
		return "", fmt.Errorf("no password given")
	}
	return line, nil
}

// LeaderboardOptions holds flags for the leaderboard command.
type LeaderboardOptions struct {
	*RootOptions
	Limit int
}

// NewLeaderboardCommand creates the leaderboard command.
func NewLeaderboardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LeaderboardOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top remote saves",
		Long: `Show the top remote saves, ranked by ascensions, then level, then
energy.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeaderboard(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "number of rows")

	return cmd
}

func runLeaderboard(opts *LeaderboardOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return f.failWith(ErrCodeConfig, ExitCommandError, "failed to load config", err)
	}
	if cfg.Storage.RemotePath == "" {
		return f.Fail("leaderboard unavailable", engine.ErrNoRemote)
	}

	f.VerboseLog("Opening remote store %s", cfg.Storage.RemotePath)
	st, err := remote.OpenSQLite(cfg.Storage.RemotePath)
	if err != nil {
		return f.failWith(ErrCodeStorage, ExitCommandError, "failed to open remote store", err)
	}
	defer st.Close()

	entries, err := st.Leaderboard(commandContext(cmd), opts.Limit)
	if err != nil {
		return f.failWith(ErrCodeStorage, ExitFailure, "failed to read leaderboard", err)
	}

	if f.Format == "json" {
		if entries == nil {
			entries = []remote.Entry{}
		}
		return f.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(f.Writer, "No saves yet")
		return nil
	}

	header := lipgloss.NewStyle().Bold(true)
	fmt.Fprintln(f.Writer, header.Render(fmt.Sprintf("%-4s %-20s %10s %6s %10s", "#", "Nickname", "Ascensions", "Level", "Energy")))
	for _, e := range entries {
		fmt.Fprintf(f.Writer, "%-4d %-20s %10d %6d %10s\n", e.Rank, e.Nickname, e.Ascensions, e.Level, FormatNumber(e.Energy))
	}
	return nil
}
