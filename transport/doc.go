// Package transport defines the open/message/error/close event contract a
// physical connection presents to the connection manager, plus the
// production WebSocket implementation of it. The fault-injecting simulator
// implements the same contract, so everything above this layer is identical
// whether it runs against a live endpoint or a simulated one.
package transport
