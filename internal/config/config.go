// Package config loads the evolve configuration from a single YAML file.
//
// The file is optional. Keys that are absent keep their defaults; unknown
// keys are an error. The path comes from --config, then the EVOLVE_CONFIG
// environment variable.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/evolve/internal/game"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "EVOLVE_CONFIG"

// MinSyncDebounce is the shortest allowed remote push debounce.
const MinSyncDebounce = 500 * time.Millisecond

// Config is the full configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// TickInterval is the period of passive accrual and buff sweeps.
	TickInterval time.Duration `yaml:"tick_interval"`

	// CatalogDir, when set, replaces the embedded catalog with the CUE
	// files in that directory.
	CatalogDir string `yaml:"catalog_dir"`

	Storage StorageConfig  `yaml:"storage"`
	Save    DebounceConfig `yaml:"save"`
	Sync    SyncConfig     `yaml:"sync"`
	Balance BalanceConfig  `yaml:"balance"`
}

// StorageConfig locates the SQLite files.
type StorageConfig struct {
	// LocalPath is the device-local save store.
	LocalPath string `yaml:"local_path"`
	// RemotePath is the SQLite file standing in for the cloud service.
	// Empty disables remote features.
	RemotePath string `yaml:"remote_path"`
}

// DebounceConfig bounds how long writes may be coalesced.
type DebounceConfig struct {
	// Debounce is the quiet period after the last mutation.
	Debounce time.Duration `yaml:"debounce"`
	// MaxWait caps the delay after the first mutation of a burst.
	MaxWait time.Duration `yaml:"max_wait"`
}

// SyncConfig configures remote pushes.
type SyncConfig struct {
	DebounceConfig `yaml:",inline"`

	// AutoPushNewerLocal resolves a conflict without asking when the
	// local save is newer than the remote one.
	AutoPushNewerLocal bool `yaml:"auto_push_newer_local"`
}

// BalanceConfig holds gameplay constants outside the catalog.
type BalanceConfig struct {
	// BaseCooldown overrides every minigame cooldown when non-zero.
	BaseCooldown   time.Duration `yaml:"base_cooldown"`
	BaseCritChance float64       `yaml:"base_crit_chance"`
	CritMultiplier float64       `yaml:"crit_multiplier"`
	// MaxOffline caps offline catch-up. Zero means unlimited.
	MaxOffline time.Duration `yaml:"max_offline"`
}

// Default returns the built-in configuration.
func Default() *Config {
	b := game.DefaultBalance()
	return &Config{
		LogLevel:     "info",
		TickInterval: time.Second,
		Storage: StorageConfig{
			LocalPath:  "evolve.db",
			RemotePath: "cloud.db",
		},
		Save: DebounceConfig{
			Debounce: time.Second,
			MaxWait:  5 * time.Second,
		},
		Sync: SyncConfig{
			DebounceConfig: DebounceConfig{
				Debounce: MinSyncDebounce,
				MaxWait:  5 * time.Second,
			},
		},
		Balance: BalanceConfig{
			BaseCritChance: b.BaseCritChance,
			CritMultiplier: b.CritMultiplier,
		},
	}
}

// Load reads the config at path, or at $EVOLVE_CONFIG when path is
// empty. With neither set it returns Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error

	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval))
	}
	if c.Storage.LocalPath == "" {
		errs = append(errs, errors.New("storage.local_path is required"))
	}
	if c.Save.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("save.debounce must be positive, got %s", c.Save.Debounce))
	}
	if c.Save.MaxWait < c.Save.Debounce {
		errs = append(errs, fmt.Errorf("save.max_wait (%s) must be at least save.debounce (%s)", c.Save.MaxWait, c.Save.Debounce))
	}
	if c.Sync.Debounce < MinSyncDebounce {
		errs = append(errs, fmt.Errorf("sync.debounce must be at least %s, got %s", MinSyncDebounce, c.Sync.Debounce))
	}
	if c.Sync.MaxWait < c.Sync.Debounce {
		errs = append(errs, fmt.Errorf("sync.max_wait (%s) must be at least sync.debounce (%s)", c.Sync.MaxWait, c.Sync.Debounce))
	}
	if c.Balance.BaseCooldown < 0 {
		errs = append(errs, fmt.Errorf("balance.base_cooldown must not be negative, got %s", c.Balance.BaseCooldown))
	}
	if c.Balance.BaseCritChance < 0 || c.Balance.BaseCritChance > 1 {
		errs = append(errs, fmt.Errorf("balance.base_crit_chance must be in [0,1], got %v", c.Balance.BaseCritChance))
	}
	if c.Balance.CritMultiplier < 1 {
		errs = append(errs, fmt.Errorf("balance.crit_multiplier must be >= 1, got %v", c.Balance.CritMultiplier))
	}
	if c.Balance.MaxOffline < 0 {
		errs = append(errs, fmt.Errorf("balance.max_offline must not be negative, got %s", c.Balance.MaxOffline))
	}

	return errors.Join(errs...)
}

// GameBalance converts the balance section for the reducers.
func (c *Config) GameBalance() game.Balance {
	return game.Balance{
		BaseCritChance: c.Balance.BaseCritChance,
		CritMultiplier: c.Balance.CritMultiplier,
		BaseCooldown:   c.Balance.BaseCooldown,
		MaxOffline:     c.Balance.MaxOffline,
	}
}

// SlogLevel returns LogLevel as a slog.Level. Invalid values map to Info;
// Validate reports them.
func (c *Config) SlogLevel() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error, got %q", s)
}
