// Package save is the persistence gateway between the game state and a
// durable local key-value store.
//
// A save is a JSON envelope around the state:
//
//	{"version":1,"checksum":"<blake3 hex of state>","state":{...}}
//
// The state object uses the field names of game.State. Loading is
// additive-only: fields missing from an older save are backfilled from
// the initial state. A bare state object without an envelope is accepted
// as a legacy save. A checksum mismatch or undecodable payload is
// ErrCorrupt and loads as the initial state.
//
// # Local store
//
// SQLiteStore keeps key-value pairs in one table with:
//   - WAL mode for concurrent reads during writes
//   - synchronous=FULL: a Set is durable before it returns
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// # Reset and concurrent saves
//
// Every Save carries the generation it was taken from. Reset bumps the
// generation under the same lock that serialises writes, so a save of
// pre-reset state that arrives afterwards fails with ErrStaleGeneration
// instead of resurrecting it.
package save
