package connection

// State identifies where the connection lifecycle currently sits.
type State uint8

const (
	// StateDisconnected means no connection exists and none is being
	// attempted. This is the initial state and the result of a clean
	// shutdown.
	StateDisconnected State = iota
	// StateConnecting means a dial is in flight for a manual Connect.
	StateConnecting
	// StateConnected means the transport is open and frames may flow.
	StateConnected
	// StateReconnecting means the connection was lost and a new dial is
	// scheduled or in flight. The Change carries the attempt number.
	StateReconnecting
	// StateFailed means the retry policy was exhausted. Only a manual
	// Connect leaves this state.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Change describes a single lifecycle transition.
type Change struct {
	// State is the lifecycle state being entered.
	State State
	// Attempt is the reconnect attempt number. It is non-zero only for
	// StateReconnecting.
	Attempt int
	// Err carries the failure that caused the transition, if any. It is
	// set for StateReconnecting and StateFailed.
	Err error
}

// ChangeCallback is called for every lifecycle transition, in order.
type ChangeCallback func(change Change)

// MessageCallback is called for every raw frame received while connected.
type MessageCallback func(data []byte)
