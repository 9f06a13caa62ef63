// Package gateway runs the gateway session state machine.
//
// # Overview
//
// Engine owns one connection at a time and loops for the life of the
// process:
//
//	Discover -> Connect -> WaitHandshake -> Established
//	    ^                        |               |
//	    +------------------------+---------------+  (any failure)
//
//   - Discover asks the Discoverer for a gateway URL
//   - Connect dials it with the Dialer
//   - WaitHandshake waits for Hello{code: 0}, at most HandshakeTimeout from
//     connect completion; other frames are ignored
//   - Established races heartbeat ticks against inbound frames
//
// Every failure tears down the connection and starts again from Discover with
// no backoff. Nothing survives a reconnect: the sequence high-water mark and
// the heartbeat counter are rebuilt from zero.
//
// # Established
//
// A single goroutine reads frames and hands them to the engine over a channel,
// so the engine can select over ticks, frames and cancellation and remain the
// only writer on the connection.
//
//   - Event: raise max sequence, hand to the Dispatcher, keep reading
//   - Pong: reset the heartbeat counter
//   - Reconnect: tear down
//   - undecodable frame: log and skip
//   - read error: tear down
//
// The heartbeat ticks once on entry and then every HeartbeatInterval. The
// fifth tick without a pong sends a Ping carrying the max sequence; the sixth
// gives up.
//
// # Cancellation
//
// Run returns ctx.Err() once ctx is done, from any state. Dispatched handler
// work is not cancelled by reconnects.
package gateway
