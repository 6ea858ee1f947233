package codec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// secretboxSalt is a fixed derivation label. Both ends configure the
	// same passphrase, so both must derive the same symmetric key.
	secretboxSalt = "wireline-codec-v1"

	// secretboxIterations is the PBKDF2 work factor for passphrase-derived
	// keys. Derivation happens once per cipher construction.
	secretboxIterations = 100000

	nonceSize = 24
)

// Secretbox is the authenticated-encryption drop-in for the obfuscator. It
// derives a 32-byte key from the passphrase with PBKDF2-SHA256, seals the
// payload with NaCl secretbox under a random nonce (carried as a prefix),
// and base64-encodes the result so the frame stays text-safe. It satisfies
// the same reversibility contract as every other Cipher.
type Secretbox struct {
	key [32]byte
}

// NewSecretbox creates the cipher for the given non-empty passphrase.
func NewSecretbox(passphrase string) *Secretbox {
	c := &Secretbox{}
	derived := pbkdf2.Key([]byte(passphrase), []byte(secretboxSalt), secretboxIterations, 32, sha256.New)
	copy(c.key[:], derived)
	return c
}

// Seal encrypts the payload and returns nonce||box as base64 text.
func (c *Secretbox) Seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("secretbox: nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &c.key)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

// Open decodes, splits off the nonce, and authenticates the box. It fails on
// truncated input, a wrong key, or any tampering.
func (c *Secretbox) Open(sealed []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(sealed)))
	n, err := base64.StdEncoding.Decode(raw, sealed)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	raw = raw[:n]
	if len(raw) < nonceSize+secretbox.Overhead {
		return nil, errors.New("secretbox: sealed payload too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return nil, errors.New("secretbox: authentication failed")
	}
	return plain, nil
}
