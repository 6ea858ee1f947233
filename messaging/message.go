package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies which side of the conversation produced a message.
type Role uint8

const (
	// RoleLocal marks a message composed by this client.
	RoleLocal Role = iota
	// RoleRemote marks a message received from the peer.
	RoleRemote
)

// String returns a human-readable name for the role.
func (r Role) String() string {
	switch r {
	case RoleLocal:
		return "local"
	case RoleRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// DeliveryState represents the delivery state of an outbound message.
type DeliveryState uint8

const (
	// DeliveryPending means the message was accepted and is waiting for
	// connectivity.
	DeliveryPending DeliveryState = iota
	// DeliverySending means a send attempt for the message is in progress.
	DeliverySending
	// DeliverySent means the message was handed to the transport. This is a
	// handoff confirmation, not a server acknowledgment.
	DeliverySent
	// DeliveryFailed means a send attempt for the message failed.
	DeliveryFailed
)

// String returns a human-readable name for the delivery state.
func (s DeliveryState) String() string {
	switch s {
	case DeliveryPending:
		return "pending"
	case DeliverySending:
		return "sending"
	case DeliverySent:
		return "sent"
	case DeliveryFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is a single chat message. Identity is the ID; Content, Role, and
// CreatedAt never change after creation. Only the delivery metadata
// (DeliveryState, RetryCount) is mutated, and only by the client that owns
// the message. Messages are value-like records and are passed by value.
type Message struct {
	ID            string
	Content       string
	Role          Role
	CreatedAt     time.Time
	DeliveryState DeliveryState
	RetryCount    int
}

// NewMessage creates a message with a fresh unique id in DeliveryPending
// state. CreatedAt is truncated to whole seconds in UTC so it survives a
// wire round trip exactly (the envelope timestamp carries second precision).
func NewMessage(content string, role Role) Message {
	return Message{
		ID:            uuid.NewString(),
		Content:       content,
		Role:          role,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
		DeliveryState: DeliveryPending,
	}
}
