package codec

import (
	"encoding/base64"
	"fmt"
)

// Cipher is a reversible transform applied to the serialized envelope before
// it goes on the wire. Seal must produce text-safe output (the wire carries
// one text frame per message) and Open must invert it exactly:
// Open(Seal(p)) == p for every payload p. Implementations range from plain
// obfuscation to authenticated encryption; they are interchangeable as long
// as both ends agree on the key.
type Cipher interface {
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// ForKey selects the cipher for a configured encryption key: the identity
// transform for an empty key, the keyed obfuscator otherwise. Callers that
// want authenticated encryption pass a Secretbox cipher explicitly instead.
func ForKey(key string) Cipher {
	if key == "" {
		return Identity{}
	}
	return NewObfuscator(key)
}

// Identity is the no-op transform used when no encryption key is configured.
type Identity struct{}

// Seal returns the payload unchanged.
func (Identity) Seal(plain []byte) ([]byte, error) { return plain, nil }

// Open returns the payload unchanged.
func (Identity) Open(sealed []byte) ([]byte, error) { return sealed, nil }

// Obfuscator is the minimum reversible byte-to-text transform: a repeating
// XOR keystream over the payload followed by base64. It hides the envelope
// from casual inspection only; it is not confidentiality. Use Secretbox when
// the payload needs real protection.
type Obfuscator struct {
	key []byte
}

// NewObfuscator creates an obfuscator for the given non-empty key.
func NewObfuscator(key string) *Obfuscator {
	return &Obfuscator{key: []byte(key)}
}

// Seal XORs the payload with the keystream and base64-encodes the result.
func (o *Obfuscator) Seal(plain []byte) ([]byte, error) {
	mixed := o.xor(plain)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(mixed)))
	base64.StdEncoding.Encode(out, mixed)
	return out, nil
}

// Open base64-decodes the payload and reverses the keystream. A wrong key
// yields garbage that fails the envelope parse downstream.
func (o *Obfuscator) Open(sealed []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(sealed)))
	n, err := base64.StdEncoding.Decode(raw, sealed)
	if err != nil {
		return nil, fmt.Errorf("obfuscator: %w", err)
	}
	return o.xor(raw[:n]), nil
}

// xor is its own inverse, which is what makes the transform reversible.
func (o *Obfuscator) xor(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ o.key[i%len(o.key)]
	}
	return out
}
