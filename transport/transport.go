package transport

import (
	"context"
	"errors"
)

// Close codes, mirroring RFC 6455. CloseNormal marks a deliberate shutdown;
// the reconnect logic treats every other code as abnormal.
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// ErrNotConnected indicates a send was attempted with no live connection.
var ErrNotConnected = errors.New("transport: not connected")

// Transport is the event contract shared by the real WebSocket transport and
// the fault-injecting simulator, so the connection manager needs no
// branching logic to drive either.
//
// Connect never blocks on the network: it starts the connection attempt and
// returns, reporting the outcome through OnOpen or OnError/OnClose. Send
// hands one frame to the connection and returns without waiting for any
// acknowledgment. Close tears the connection down silently; events describe
// only transport-initiated lifecycle, never the caller's own Close.
//
// Implementations guarantee that an error event is always followed by
// exactly one close event, so an observer never sees a half-open transport.
// Callback setters replace the previous callback; they do not accumulate.
type Transport interface {
	Connect(ctx context.Context) error
	Send(data []byte) error
	Close() error

	OnOpen(func())
	OnMessage(func(data []byte))
	OnError(func(err error))
	OnClose(func(code int, reason string))
}
