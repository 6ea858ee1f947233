package messaging

import (
	"errors"
	"sync"
)

// ErrNotFound indicates the requested message id is not in the registry.
var ErrNotFound = errors.New("messaging: message not found")

// FailedRegistry tracks messages whose send attempt failed after the queue
// (or a direct send) had already accepted them, keyed by message id. This is
// distinct from the outbound queue: queued messages are waiting for
// connectivity and have never been attempted, registry entries have been
// attempted and need a retry. Entries leave the registry only through a
// successful retry or an explicit Take.
type FailedRegistry struct {
	mu      sync.Mutex
	entries map[string]Message
}

// NewFailedRegistry creates an empty registry.
func NewFailedRegistry() *FailedRegistry {
	return &FailedRegistry{entries: make(map[string]Message)}
}

// Put stores or replaces the entry for the message's id.
func (r *FailedRegistry) Put(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[m.ID] = m
}

// Take removes and returns the message with the given id. The caller owns
// the entry for the duration of a retry attempt and puts it back on failure.
func (r *FailedRegistry) Take(id string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.entries[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	delete(r.entries, id)
	return m, nil
}

// Get returns the message with the given id without removing it.
func (r *FailedRegistry) Get(id string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.entries[id]
	return m, ok
}

// IDs returns the ids of all registered messages. Order is unspecified;
// failed messages retry independently of each other.
func (r *FailedRegistry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// Len reports how many messages are registered.
func (r *FailedRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns a copy of all registered messages. Order is unspecified.
func (r *FailedRegistry) Snapshot() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Message, 0, len(r.entries))
	for _, m := range r.entries {
		out = append(out, m)
	}
	return out
}
