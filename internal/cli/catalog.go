package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/evolve/internal/catalog"
)

// ValidationResult holds catalog validation results.
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	Species   int    `json:"species"`
	Upgrades  int    `json:"upgrades"`
	Prestige  int    `json:"prestigeUpgrades"`
	Minigames int    `json:"minigames"`
	Line      int    `json:"line,omitempty"`
	File      string `json:"file,omitempty"`
}

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and validate game data catalogs",
	}
	cmd.AddCommand(newCatalogValidateCommand(rootOpts))
	cmd.AddCommand(newCatalogListCommand(rootOpts))
	return cmd
}

func newCatalogValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog-dir>",
		Short: "Validate a CUE catalog directory",
		Long: `Validate the CUE files of a catalog directory against the catalog
schema and check the cross references between its tables.

A valid directory can be used as catalog_dir in the config.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCatalogValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	formatter.VerboseLog("Loading catalog from %s", dir)

	c, err := catalog.LoadDir(dir)
	if err != nil {
		var loadErr *catalog.LoadError
		if !errors.As(err, &loadErr) {
			return formatter.failWith(ErrCodeCatalog, ExitCommandError, "failed to load catalog", err)
		}
		result := ValidationResult{Valid: false}
		if loadErr.Pos.IsValid() {
			result.File = loadErr.Pos.Filename()
			result.Line = loadErr.Pos.Line()
		}
		_ = formatter.Error(loadErr.Code, loadErr.Message, result)
		// Missing or empty directories are command errors (exit code 2);
		// invalid content is a validation failure (exit code 1).
		exit := ExitFailure
		if loadErr.Code == catalog.ErrCodeNotFound || loadErr.Code == catalog.ErrCodeNoFiles {
			exit = ExitCommandError
		}
		return NewExitError(exit, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
	}

	result := ValidationResult{
		Valid:     true,
		Species:   len(c.Species),
		Upgrades:  len(c.Upgrades),
		Prestige:  len(c.PrestigeUpgrades),
		Minigames: len(c.Minigames),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Catalog valid: %d species, %d upgrades, %d prestige upgrades, %d minigames\n",
		result.Species, result.Upgrades, result.Prestige, result.Minigames)
	return nil
}

func newCatalogListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List the species and upgrades of the configured catalog",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return f.failWith(ErrCodeConfig, ExitCommandError, "failed to load config", err)
			}
			c, err := loadCatalog(cfg)
			if err != nil {
				return f.failWith(ErrCodeCatalog, ExitCommandError, "failed to load catalog", err)
			}
			if f.Format == "json" {
				return f.Success(c)
			}

			fmt.Fprintln(f.Writer, "Species")
			for cur := c.StartingSpecies; cur != ""; cur = c.Species[cur].EvolvesTo {
				s := c.Species[cur]
				line := fmt.Sprintf("  %-10s %-10s stage %d", s.ID, s.Name, s.EvolutionStage)
				if s.EvolvesTo != "" {
					line += fmt.Sprintf(", evolves to %s at level %d", s.EvolvesTo, s.EvolutionLevel)
				}
				if s.Minigame != "" {
					line += fmt.Sprintf(", minigame %s", s.Minigame)
				}
				fmt.Fprintln(f.Writer, line)
			}
			fmt.Fprintln(f.Writer, "Upgrades")
			for _, id := range c.UpgradeIDs() {
				u := c.Upgrades[id]
				fmt.Fprintf(f.Writer, "  %-16s base %-6s %s %g\n", id, FormatNumber(u.BaseCost), u.Effect.Type, u.Effect.Value)
			}
			fmt.Fprintln(f.Writer, "Prestige upgrades")
			for _, id := range c.PrestigeUpgradeIDs() {
				p := c.PrestigeUpgrades[id]
				fmt.Fprintf(f.Writer, "  %-16s base %-6s %s +%g/level\n", id, FormatNumber(p.BaseCost), p.Category, p.BonusPerLevel)
			}
			return nil
		},
	}
	return cmd
}
