// Package connection drives the lifecycle of one logical connection over
// a transport.Transport: dial, stay connected, reconnect with backoff
// after abnormal closes, and fail permanently once the retry policy is
// exhausted.
//
// The state machine is
//
//	Disconnected -> Connecting -> Connected
//	Connected    -> Reconnecting(n) -> Connecting   (abnormal close)
//	Connected    -> Disconnected                    (close code 1000)
//	Reconnecting -> Failed                          (attempts exhausted)
//
// A close with code 1000 received while connected is a deliberate
// shutdown and suppresses reconnection; every other teardown walks the
// reconnect path. StateFailed is terminal until a manual Connect.
//
// The Manager serializes every transition and delivers state changes and
// inbound frames to the application in order.
package connection
