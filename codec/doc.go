// Package codec converts messages to and from their wire form: a JSON
// envelope {"id","content","timestamp"} passed through a pluggable
// reversible transform keyed by the configured encryption key.
//
// The round-trip law holds for every Cipher c and envelope e:
// Decode(Encode(e, c), c) reproduces e's id, content, and timestamp exactly.
// Timestamps travel at whole-second precision (RFC 3339); encoding truncates
// sub-second components, which is the only lossy step and is applied before
// the round trip is measured.
package codec
