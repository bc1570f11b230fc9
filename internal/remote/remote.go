// Package remote is the cloud side of the save: an opaque per-user save
// store with last-write-wins upsert, an identity provider and a
// leaderboard.
//
// SQLiteStore implements all three on a local SQLite file so the game can
// be run and tested end to end without a network service.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/evolve/internal/game"
)

// Authentication errors. They are surfaced to the caller verbatim.
var (
	ErrInvalidCredentials = errors.New("remote: invalid email or password")
	ErrEmailTaken         = errors.New("remote: email already registered")
	ErrNotSignedIn        = errors.New("remote: not signed in")
)

// DefaultLeaderboardLimit is the number of rows Leaderboard returns when
// limit <= 0.
const DefaultLeaderboardLimit = 100

// Record is a remote save row.
type Record struct {
	State     game.State
	UpdatedAt time.Time
}

// Entry is one leaderboard row.
type Entry struct {
	Rank       int     `json:"rank"`
	Nickname   string  `json:"nickname"`
	Ascensions int     `json:"ascensions"`
	Level      int     `json:"level"`
	Energy     float64 `json:"energy"`
}

// Store is the remote save store. Writes are last-write-wins per user.
type Store interface {
	// Fetch returns the user's save, or nil when none exists.
	Fetch(ctx context.Context, userID string) (*Record, error)
	// Upsert replaces the user's save.
	Upsert(ctx context.Context, userID string, s game.State, updatedAt time.Time) error
	// Leaderboard ranks saves by ascensions, then level, then energy.
	Leaderboard(ctx context.Context, limit int) ([]Entry, error)
}

// Session is an authenticated identity.
type Session struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Token    string `json:"token"`
}

// Authenticator is the identity provider.
type Authenticator interface {
	SignUp(ctx context.Context, email, password, nickname string) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	// Resume re-validates a session token from a previous run.
	Resume(ctx context.Context, token string) (Session, error)
	SignOut(ctx context.Context, token string) error
}
