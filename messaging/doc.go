// Package messaging defines the message model and the two containers that
// give the client its at-least-once delivery intent: the FIFO OutboundQueue
// for messages composed while disconnected, and the FailedRegistry for
// messages whose send attempt failed and that are eligible for retry.
//
// A message id lives in at most one of {queue, registry, in-flight/sent} at
// any time. The containers are individually thread-safe, but that invariant
// spans both of them and is enforced by the owning client, which serializes
// every mutation behind a single mutex.
package messaging
