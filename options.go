package wireline

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wireline/codec"
	"github.com/opd-ai/wireline/connection"
	"github.com/opd-ai/wireline/messaging"
	"github.com/opd-ai/wireline/transport"
)

// Options contains configuration options for creating a Client.
type Options struct {
	// Endpoint is the connection URI (ws:// or wss://). Required unless
	// Transport is set.
	Endpoint string
	// AuthToken, when non-empty, is attached to the connection URI as
	// the "token" query parameter.
	AuthToken string
	// EncryptionKey keys the reversible wire transform. Empty means
	// frames travel as plain JSON.
	EncryptionKey string
	// Cipher overrides the transform derived from EncryptionKey. Use it
	// to swap in stronger encryption such as codec.NewSecretbox.
	Cipher codec.Cipher
	// Retry configures reconnect behavior. Zero fields fall back to
	// connection.DefaultRetryPolicy values.
	Retry connection.RetryPolicy
	// QueueCapacity bounds the outbound queue. Zero means unbounded.
	QueueCapacity int
	// MaxContentBytes bounds submitted message content. Zero falls back
	// to messaging.MaxContentBytes.
	MaxContentBytes int
	// RetryJitterMin and RetryJitterMax bound the random delay that
	// precedes each automatic message retry, so a burst of failures does
	// not turn into a synchronized retry storm.
	RetryJitterMin time.Duration
	RetryJitterMax time.Duration
	// Logger receives structured logs. Nil falls back to the logrus
	// standard logger.
	Logger *logrus.Logger
	// Transport overrides the WebSocket transport built from Endpoint
	// and AuthToken. Tests plug the simulator in here.
	Transport transport.Transport
	// Rand is the jitter source. Nil seeds one from the clock; tests
	// inject a fixed seed for reproducible schedules.
	Rand *rand.Rand
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		Retry:           connection.DefaultRetryPolicy(),
		MaxContentBytes: messaging.MaxContentBytes,
		RetryJitterMin:  200 * time.Millisecond,
		RetryJitterMax:  1500 * time.Millisecond,
	}
}
