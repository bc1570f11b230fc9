package remote

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/roach88/evolve/internal/game"
)

// Remote payloads are deterministic CBOR compressed with zstd. Times
// are encoded as RFC 3339 strings with nanoseconds so the save's
// lastSavedTime survives the round trip exactly.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zenc *zstd.Encoder
	zdec *zstd.Decoder
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano

	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic("remote: CBOR encoder: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("remote: CBOR decoder: " + err.Error())
	}

	zenc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("remote: zstd encoder: " + err.Error())
	}
	zdec, err = zstd.NewReader(nil)
	if err != nil {
		panic("remote: zstd decoder: " + err.Error())
	}
}

func encodePayload(s game.State) ([]byte, error) {
	raw, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return zenc.EncodeAll(raw, nil), nil
}

// decodePayload decodes over a clone of base, so fields missing from
// older payloads keep base's values.
func decodePayload(b []byte, base game.State) (game.State, error) {
	raw, err := zdec.DecodeAll(b, nil)
	if err != nil {
		return game.State{}, fmt.Errorf("decompress payload: %w", err)
	}
	s := base.Clone()
	if err := decMode.Unmarshal(raw, &s); err != nil {
		return game.State{}, fmt.Errorf("decode payload: %w", err)
	}
	return s.Clone(), nil
}
