package save

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/evolve/internal/clock"
	"github.com/roach88/evolve/internal/game"
)

// ErrStaleGeneration is returned when a save was taken before the most
// recent Reset. The write is dropped.
var ErrStaleGeneration = errors.New("save: state predates reset")

// Generation identifies the reset epoch a state snapshot belongs to.
type Generation uint64

// Gateway reads and writes the game state in a LocalStore. All methods
// are safe for concurrent use; writes are serialised.
type Gateway struct {
	store  LocalStore
	rules  *game.Rules
	clock  clock.Clock
	logger *slog.Logger

	mu         sync.Mutex
	generation Generation
}

// NewGateway creates a Gateway. A nil logger uses slog.Default().
func NewGateway(store LocalStore, rules *game.Rules, c clock.Clock, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{store: store, rules: rules, clock: c, logger: logger}
}

// Loaded is the result of Load.
type Loaded struct {
	State game.State
	// Found is false when no save existed; State is then the initial state.
	Found bool
	// Corrupt is true when a save existed but could not be decoded.
	Corrupt bool
	Offline game.Offline
}

// Load reads the save and applies offline catch-up up to now. The
// result is not written back: LastSavedTime keeps the time of the last
// write, which the reconciliation protocol compares against the remote
// save. Loading twice in a row therefore computes the catch-up from the
// same base and never applies it twice. Missing or corrupt saves yield
// the initial state. The error is non-nil only when the store cannot be
// read.
func (g *Gateway) Load(ctx context.Context) (Loaded, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	initial := g.rules.Initial()
	data, ok, err := g.store.Get(ctx, StateKey)
	if err != nil {
		return Loaded{State: initial}, fmt.Errorf("load: %w", err)
	}
	if !ok {
		return Loaded{State: initial}, nil
	}

	stored, err := Decode(data, initial)
	if err != nil {
		g.logger.Error("discarding corrupt save", "error", err)
		return Loaded{State: initial, Found: true, Corrupt: true}, nil
	}
	stored = g.rules.Refresh(stored)

	now := g.clock.Now()
	s, offline, err := g.rules.CatchUp(stored, now)
	if err != nil {
		g.logger.Error("offline catch-up skipped", "error", err, "character_id", stored.CharacterID)
		s = g.rules.AbandonMinigame(stored, now)
		offline = game.Offline{}
	}
	return Loaded{State: s, Found: true, Offline: offline}, nil
}

// Generation returns the current reset epoch. Take it together with the
// state snapshot that will later be passed to Save.
func (g *Gateway) Generation() Generation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation
}

// Save stamps LastSavedTime with the current time and writes the state.
// It returns the stamped state.
func (g *Gateway) Save(ctx context.Context, s game.State, gen Generation) (game.State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if gen != g.generation {
		return s, ErrStaleGeneration
	}
	s.LastSavedTime = game.Stamp(g.clock.Now())
	if err := g.write(ctx, s); err != nil {
		return s, err
	}
	return s, nil
}

// Store writes the state verbatim, keeping its LastSavedTime. Used when
// adopting a remote save so both sides keep the same timestamp.
func (g *Gateway) Store(ctx context.Context, s game.State, gen Generation) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if gen != g.generation {
		return ErrStaleGeneration
	}
	return g.write(ctx, s)
}

// Reset clears the save and returns the initial state. Saves taken
// before Reset fail with ErrStaleGeneration afterwards, even if the
// removal itself fails.
func (g *Gateway) Reset(ctx context.Context) (game.State, Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.generation++
	if err := g.store.Remove(ctx, StateKey); err != nil {
		return g.rules.Initial(), g.generation, fmt.Errorf("reset: %w", err)
	}
	return g.rules.Initial(), g.generation, nil
}

// Exists reports whether a save is stored.
func (g *Gateway) Exists(ctx context.Context) (bool, error) {
	_, ok, err := g.store.Get(ctx, StateKey)
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return ok, nil
}

func (g *Gateway) write(ctx context.Context, s game.State) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, StateKey, data); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Session is the remote identity remembered between runs.
type Session struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Token    string `json:"token"`
}

// LoadSession returns the remembered session, if any. An unreadable
// session is treated as absent.
func (g *Gateway) LoadSession(ctx context.Context) (Session, bool, error) {
	data, ok, err := g.store.Get(ctx, SessionKey)
	if err != nil || !ok {
		return Session{}, false, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil || sess.UserID == "" {
		g.logger.Warn("ignoring unreadable session", "error", err)
		return Session{}, false, nil
	}
	return sess, true, nil
}

// SaveSession remembers a session.
func (g *Gateway) SaveSession(ctx context.Context, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return g.store.Set(ctx, SessionKey, string(data))
}

// ClearSession forgets the session.
func (g *Gateway) ClearSession(ctx context.Context) error {
	return g.store.Remove(ctx, SessionKey)
}
