package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/evolve/internal/catalog"
	"github.com/roach88/evolve/internal/clock"
	"github.com/roach88/evolve/internal/config"
	"github.com/roach88/evolve/internal/engine"
	"github.com/roach88/evolve/internal/game"
	"github.com/roach88/evolve/internal/reconcile"
	"github.com/roach88/evolve/internal/remote"
	"github.com/roach88/evolve/internal/save"
)

// app is one running game: the stores, the rules and the engine loop.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	rules  *game.Rules
	clock  clock.Clock
	engine *engine.Engine
	local  *save.SQLiteStore
	cloud  *remote.SQLiteStore
	loaded save.Loaded

	cancel context.CancelFunc
	runErr chan error
}

// appOptions control how openApp starts the game.
type appOptions struct {
	// resume re-establishes the remembered session, reconciling saves.
	resume bool
	// clock defaults to the wall clock.
	clock clock.Clock
}

// loadConfig reads the config named by --config or $EVOLVE_CONFIG.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	return config.Load(opts.Config)
}

// newLogger logs to the command's stderr at the configured level, or at
// debug level with --verbose.
func newLogger(cmd *cobra.Command, opts *RootOptions, cfg *config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// loadCatalog returns the catalog from catalog_dir, or the embedded one.
func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogDir == "" {
		return catalog.Default()
	}
	return catalog.LoadDir(cfg.CatalogDir)
}

// openApp loads config, catalog and saves, starts the engine loop and,
// when asked, resumes the remembered session. Failures are reported
// through f; the returned error is the ExitError to return.
func openApp(ctx context.Context, cmd *cobra.Command, opts *RootOptions, f *OutputFormatter, ao appOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, f.failWith(ErrCodeConfig, ExitCommandError, "failed to load config", err)
	}
	logger := newLogger(cmd, opts, cfg)

	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, f.failWith(ErrCodeCatalog, ExitCommandError, "failed to load catalog", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		rules:  game.NewRules(cat, cfg.GameBalance()),
		clock:  ao.clock,
		runErr: make(chan error, 1),
	}
	if a.clock == nil {
		a.clock = clock.Real()
	}

	logger.Debug("opening local store", "path", cfg.Storage.LocalPath)
	a.local, err = save.OpenSQLite(cfg.Storage.LocalPath)
	if err != nil {
		return nil, f.failWith(ErrCodeStorage, ExitCommandError, "failed to open local store", err)
	}
	if cfg.Storage.RemotePath != "" {
		logger.Debug("opening remote store", "path", cfg.Storage.RemotePath)
		a.cloud, err = remote.OpenSQLite(cfg.Storage.RemotePath, remote.WithDefaults(a.rules.Initial()))
		if err != nil {
			a.closeStores()
			return nil, f.failWith(ErrCodeStorage, ExitCommandError, "failed to open remote store", err)
		}
	}

	gateway := save.NewGateway(a.local, a.rules, a.clock, logger)
	engOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithTickInterval(cfg.TickInterval),
		engine.WithSaveDebounce(cfg.Save.Debounce, cfg.Save.MaxWait),
		engine.WithSyncDebounce(cfg.Sync.Debounce, cfg.Sync.MaxWait),
		engine.WithPolicy(reconcile.Policy{AutoPushNewerLocal: cfg.Sync.AutoPushNewerLocal}),
	}
	if a.cloud != nil {
		engOpts = append(engOpts, engine.WithRemote(a.cloud, a.cloud))
	}
	a.engine = engine.New(a.rules, gateway, a.clock, engOpts...)

	a.loaded, err = a.engine.Load(ctx)
	if err != nil {
		a.closeStores()
		return nil, f.failWith(ErrCodeStorage, ExitCommandError, "failed to load save", err)
	}
	if a.loaded.Offline.Seconds > 0 {
		f.VerboseLog("Offline for %.0fs: +%s energy", a.loaded.Offline.Seconds, FormatNumber(a.loaded.Offline.Currency))
	}

	// The loop outlives cmd's context so Close can drain it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	go func() { a.runErr <- a.engine.Run(runCtx) }()

	if ao.resume && a.cloud != nil {
		if _, err := a.engine.Submit(ctx, engine.ResumeSession{}); err != nil && !errors.Is(err, remote.ErrNotSignedIn) {
			// Local play continues without the remote.
			logger.Warn("could not resume session", "error", err)
		}
	}
	return a, nil
}

// Close stops the engine, which writes the pending save and waits for
// the last push, then closes the stores.
func (a *app) Close(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), engine.DefaultShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.engine.Stop(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop engine: %w", err))
	} else if err := <-a.runErr; err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	a.cancel()
	if err := a.closeStores(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *app) closeStores() error {
	var errs []error
	if a.cloud != nil {
		if err := a.cloud.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close remote store: %w", err))
		}
	}
	if a.local != nil {
		if err := a.local.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close local store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// commandContext returns cmd's context, or Background when run outside
// Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// runCommand opens the game, submits c and closes the game again so the
// result is saved before it is reported. A reducer outcome other than
// ok is reported as rejected unless allowNoop is set.
func runCommand(cmd *cobra.Command, opts *RootOptions, c engine.Command, allowNoop bool) (engine.Result, *app, error) {
	f := opts.formatter(cmd)
	ctx := commandContext(cmd)

	a, err := openApp(ctx, cmd, opts, f, appOptions{resume: true})
	if err != nil {
		return engine.Result{}, nil, err
	}

	res, submitErr := a.engine.Submit(ctx, c)
	closeErr := a.Close(ctx)
	switch {
	case submitErr != nil:
		return res, a, f.Fail(fmt.Sprintf("%s failed", c.Name()), submitErr)
	case closeErr != nil:
		return res, a, f.failWith(ErrCodeStorage, ExitFailure, "failed to save", closeErr)
	case !allowNoop && !res.Outcome.Status.Changed():
		return res, a, f.Rejected(c.Name(), res.Outcome)
	}
	return res, a, nil
}
