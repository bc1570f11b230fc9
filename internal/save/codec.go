package save

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/roach88/evolve/internal/game"
)

// EnvelopeVersion is written into every new save.
const EnvelopeVersion = 1

// ErrCorrupt reports a save that cannot be decoded or fails its checksum.
var ErrCorrupt = errors.New("save: corrupt data")

type envelope struct {
	Version  int             `json:"version"`
	Checksum string          `json:"checksum"`
	State    json.RawMessage `json:"state"`
}

// Encode serialises a state into the save envelope.
func Encode(s game.State) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	data, err := json.Marshal(envelope{
		Version:  EnvelopeVersion,
		Checksum: checksum(raw),
		State:    raw,
	})
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(data), nil
}

// Decode parses a save, backfilling missing fields from initial. Errors
// wrap ErrCorrupt.
func Decode(data string, initial game.State) (game.State, error) {
	raw := []byte(data)

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return initial, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Version > 0 {
		if len(env.State) == 0 {
			return initial, fmt.Errorf("%w: envelope without state", ErrCorrupt)
		}
		if got := checksum(env.State); got != env.Checksum {
			return initial, fmt.Errorf("%w: checksum %s, want %s", ErrCorrupt, got, env.Checksum)
		}
		raw = env.State
	}

	s := initial.Clone()
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&s); err != nil {
		return initial, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return Sanitize(s.Clone(), initial), nil
}

// Sanitize restores the numeric invariants a hand-edited or truncated
// save may break. s is modified in place; pass a clone to keep the
// original.
func Sanitize(s, initial game.State) game.State {
	if s.CharacterID == "" {
		s.CharacterID = initial.CharacterID
	}
	if s.CharacterLevel < 1 {
		s.CharacterLevel = 1
	}
	if !(s.CharacterExp >= 0) {
		s.CharacterExp = 0
	}
	if !(s.Currency >= 0) {
		s.Currency = 0
	}
	if !(s.PrestigeCurrency >= 0) {
		s.PrestigeCurrency = 0
	}
	if s.PrestigeCount < 0 {
		s.PrestigeCount = 0
	}
	for id, level := range s.UpgradeLedger {
		if level < 0 {
			s.UpgradeLedger[id] = 0
		}
	}
	for id, level := range s.PrestigeLedger {
		if level < 0 {
			s.PrestigeLedger[id] = 0
		}
	}
	return s
}

func checksum(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}
