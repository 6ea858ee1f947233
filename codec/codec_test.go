package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEnvelope() Envelope {
	return Envelope{
		ID:        "3f1c9a2e-0b7d-4f7a-9c3e-d8a1b2c3d4e5",
		Content:   "hello over the wire",
		Timestamp: time.Date(2025, 11, 3, 14, 22, 7, 0, time.UTC),
	}
}

func TestRoundTrip(t *testing.T) {
	ciphers := map[string]Cipher{
		"nil":        nil,
		"identity":   Identity{},
		"obfuscator": NewObfuscator("hunter2"),
		"secretbox":  NewSecretbox("hunter2"),
	}

	for name, c := range ciphers {
		t.Run(name, func(t *testing.T) {
			env := sampleEnvelope()
			data, err := Encode(env, c)
			require.NoError(t, err)

			got, err := Decode(data, c)
			require.NoError(t, err)
			assert.Equal(t, env.ID, got.ID)
			assert.Equal(t, env.Content, got.Content)
			assert.True(t, env.Timestamp.Equal(got.Timestamp),
				"timestamp %v != %v", env.Timestamp, got.Timestamp)
		})
	}
}

func TestRoundTripContents(t *testing.T) {
	contents := []string{
		"a",
		"plain ascii",
		"unicode: héllo wörld 你好 🎉",
		`{"nested":"json","n":1}`,
		"newlines\nand\ttabs",
		string(make([]byte, 2048)),
	}
	c := NewObfuscator("key-material")

	for _, content := range contents {
		env := Envelope{ID: "id-1", Content: content, Timestamp: time.Now().UTC().Truncate(time.Second)}
		data, err := Encode(env, c)
		require.NoError(t, err)
		got, err := Decode(data, c)
		require.NoError(t, err)
		assert.Equal(t, content, got.Content)
	}
}

func TestEncodeTruncatesSubsecond(t *testing.T) {
	env := sampleEnvelope()
	env.Timestamp = env.Timestamp.Add(847 * time.Millisecond)

	data, err := Encode(env, nil)
	require.NoError(t, err)
	got, err := Decode(data, nil)
	require.NoError(t, err)

	assert.True(t, got.Timestamp.Equal(env.Timestamp.Truncate(time.Second)),
		"wire timestamps carry whole seconds")
}

func TestDecodeFailures(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		cipher Cipher
	}{
		{"not json", []byte("definitely not json"), nil},
		{"json but wrong shape timestamp", []byte(`{"id":"x","content":"y","timestamp":"not-a-time"}`), nil},
		{"bad base64", []byte("!!!not-base64!!!"), NewObfuscator("k")},
		{"wrong obfuscation key", mustEncode(t, NewObfuscator("right")), NewObfuscator("wrong")},
		{"wrong secretbox key", mustEncode(t, NewSecretbox("right")), NewSecretbox("wrong")},
		{"truncated secretbox", []byte("AAAA"), NewSecretbox("k")},
		{"empty frame", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, tt.cipher)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func mustEncode(t *testing.T, c Cipher) []byte {
	t.Helper()
	data, err := Encode(sampleEnvelope(), c)
	require.NoError(t, err)
	return data
}

func TestForKey(t *testing.T) {
	assert.IsType(t, Identity{}, ForKey(""))
	assert.IsType(t, &Obfuscator{}, ForKey("secret"))
}

func TestObfuscatorOutputIsText(t *testing.T) {
	c := NewObfuscator("k3y")
	data, err := Encode(sampleEnvelope(), c)
	require.NoError(t, err)
	for _, b := range data {
		assert.True(t, b >= 0x20 && b < 0x7f, "byte %#x is not printable ascii", b)
	}
}

func TestSecretboxNonceVaries(t *testing.T) {
	// Two seals of the same payload must differ (random nonce) yet both open.
	c := NewSecretbox("pass")
	env := sampleEnvelope()

	a, err := Encode(env, c)
	require.NoError(t, err)
	b, err := Encode(env, c)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	for _, data := range [][]byte{a, b} {
		got, err := Decode(data, c)
		require.NoError(t, err)
		assert.Equal(t, env.Content, got.Content)
	}
}
