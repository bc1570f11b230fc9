package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

//go:embed schema.cue
var schemaCUE []byte

//go:embed default.cue
var defaultCUE []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded catalog. The result is shared; callers
// must not modify it.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		ctx := cuecontext.New()
		data := ctx.CompileBytes(defaultCUE, cue.Filename("default.cue"))
		if err := data.Err(); err != nil {
			defaultErr = cueError(ErrCodeBuildFailed, err)
			return
		}
		defaultCatalog, defaultErr = build(ctx, data)
	})
	return defaultCatalog, defaultErr
}

// MustDefault is Default for tests and static initialisation.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded catalog invalid: %v", err))
	}
	return c
}

// LoadDir loads every CUE file in dir as one package, unifies it with
// the embedded schema and returns the resulting catalog.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing catalog directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil || len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	data := ctx.BuildInstance(inst)
	if err := data.Err(); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}
	return build(ctx, data)
}

// build unifies data with the schema, validates it and decodes the tables.
func build(ctx *cue.Context, data cue.Value) (*Catalog, error) {
	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}

	value := schema.Unify(data)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}

	c := &Catalog{}
	if err := value.Decode(c); err != nil {
		return nil, cueError(ErrCodeDecode, err)
	}
	if c.Species == nil {
		c.Species = map[string]Species{}
	}
	if c.Upgrades == nil {
		c.Upgrades = map[string]Upgrade{}
	}
	if c.PrestigeUpgrades == nil {
		c.PrestigeUpgrades = map[string]PrestigeUpgrade{}
	}
	if c.Minigames == nil {
		c.Minigames = map[string]Minigame{}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the cross references CUE cannot express: evolution
// targets and minigames must exist, the starting species must exist,
// and evolution chains must not loop.
func (c *Catalog) Validate() error {
	if _, ok := c.Species[c.StartingSpecies]; !ok {
		return &LoadError{Code: ErrCodeReference, Message: fmt.Sprintf("starting species %q not defined", c.StartingSpecies)}
	}

	for _, id := range sortedKeys(c.Species) {
		s := c.Species[id]
		if s.EvolvesTo != "" {
			if _, ok := c.Species[s.EvolvesTo]; !ok {
				return &LoadError{Code: ErrCodeReference, Message: fmt.Sprintf("species %q evolves to unknown species %q", id, s.EvolvesTo)}
			}
		}
		if s.Minigame != "" {
			if _, ok := c.Minigames[s.Minigame]; !ok {
				return &LoadError{Code: ErrCodeReference, Message: fmt.Sprintf("species %q references unknown minigame %q", id, s.Minigame)}
			}
		}
	}

	for _, id := range sortedKeys(c.Species) {
		seen := map[string]bool{}
		for cur := id; cur != ""; cur = c.Species[cur].EvolvesTo {
			if seen[cur] {
				return &LoadError{Code: ErrCodeReference, Message: fmt.Sprintf("evolution chain starting at %q loops", id)}
			}
			seen[cur] = true
		}
	}
	return nil
}

// cueError converts a CUE error into a LoadError carrying the position
// of the first reported error.
func cueError(code string, err error) *LoadError {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	loadErr := &LoadError{Code: code, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		loadErr.Pos = positions[0]
	}
	return loadErr
}
