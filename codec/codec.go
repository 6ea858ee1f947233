package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrDecode indicates an inbound frame could not be decoded: the reverse
// transform failed (wrong key, corrupted data) or the envelope did not parse.
// Callers treat a decode failure as drop-and-log; it is never fatal to the
// connection.
var ErrDecode = errors.New("codec: decode failed")

// Envelope is the structured wrapper around message content for wire
// transmission. The JSON wire form is {"id","content","timestamp"} with an
// RFC 3339 timestamp. Timestamp precision on the wire is whole seconds;
// sub-second components are truncated during encoding.
type Envelope struct {
	ID        string
	Content   string
	Timestamp time.Time
}

type wireEnvelope struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Encode serializes the envelope and passes the serialized text through the
// cipher's forward transform. A nil cipher means no transform. The result is
// text-safe and is sent as a single frame.
func Encode(env Envelope, c Cipher) ([]byte, error) {
	wire := wireEnvelope{
		ID:        env.ID,
		Content:   env.Content,
		Timestamp: env.Timestamp.UTC().Truncate(time.Second).Format(time.RFC3339),
	}
	plain, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal envelope: %w", err)
	}
	if c == nil {
		return plain, nil
	}
	sealed, err := c.Seal(plain)
	if err != nil {
		return nil, fmt.Errorf("codec: seal envelope: %w", err)
	}
	return sealed, nil
}

// Decode is the inverse of Encode. Every failure mode (reverse transform,
// JSON parse, timestamp parse) comes back wrapped in ErrDecode so callers
// can match it with errors.Is. Decode never panics on malformed input.
func Decode(data []byte, c Cipher) (Envelope, error) {
	plain := data
	if c != nil {
		opened, err := c.Open(data)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		plain = opened
	}

	var wire wireEnvelope
	if err := json.Unmarshal(plain, &wire); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	ts, err := time.Parse(time.RFC3339, wire.Timestamp)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: bad timestamp: %v", ErrDecode, err)
	}

	return Envelope{
		ID:        wire.ID,
		Content:   wire.Content,
		Timestamp: ts.UTC(),
	}, nil
}
