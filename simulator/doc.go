// Package simulator provides an in-memory, fault-injecting implementation
// of transport.Transport for exercising connection and delivery logic
// without a live network.
//
// The Simulator honors the exact event contract of the real transport:
// non-blocking Connect, open/message/error/close callbacks, errors always
// followed by a close, and a silent explicit Close. On top of that it can
// delay dials, fail the first N dials, drop inbound frames with a
// configured probability, blow up the connection at random on send, and
// echo sent frames back after a delay.
//
// All randomness flows through a single seeded source, so a fixed
// Config.Seed makes a fault schedule reproducible.
package simulator
