package save

import "context"

// LocalStore is a durable string key-value store. Set is durable when it
// returns.
type LocalStore interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Keys used in the local store.
const (
	StateKey   = "evolve.gameState"
	SessionKey = "evolve.session"
)
