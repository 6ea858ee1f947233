package messaging

import (
	"errors"
	"sync"
)

// ErrQueueFull indicates the outbound queue reached its configured capacity.
var ErrQueueFull = errors.New("messaging: outbound queue full")

// OutboundQueue buffers messages composed while the connection is down.
// It is strictly FIFO: messages drain in the order they were enqueued.
//
// The queue is safe for concurrent use on its own, but invariants that span
// the queue and the failed registry (a message id living in at most one of
// them) are enforced by the single caller that owns both.
type OutboundQueue struct {
	mu       sync.Mutex
	entries  []Message
	capacity int
}

// NewOutboundQueue creates a queue. A capacity of zero or less means
// unbounded; otherwise Enqueue fails with ErrQueueFull once the cap is hit.
func NewOutboundQueue(capacity int) *OutboundQueue {
	return &OutboundQueue{capacity: capacity}
}

// Enqueue appends a message to the tail of the queue.
func (q *OutboundQueue) Enqueue(m Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.entries) >= q.capacity {
		return ErrQueueFull
	}
	q.entries = append(q.entries, m)
	return nil
}

// Drain removes and returns every queued message in enqueue order.
func (q *OutboundQueue) Drain() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.entries
	q.entries = nil
	return drained
}

// Len reports how many messages are waiting.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns a copy of the queued messages in enqueue order without
// removing them.
func (q *OutboundQueue) Snapshot() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Message, len(q.entries))
	copy(out, q.entries)
	return out
}
