// Package bot wires kook-gateway together.
//
// # Lifecycle
//
// Run looks up the bot's identity once, then starts:
//
//   - the event dispatcher, with an optional msg_id dedupe cache
//   - the gateway session engine, which runs until ctx is cancelled
//   - an optional HTTP server for health and metrics
//
// On shutdown the HTTP server is stopped, the engine returns, and Run waits
// for in-flight handler invocations before returning.
//
// # HTTP Endpoints
//
//   - GET /health - always 200 while the process runs
//   - GET /health/ready - 200 only while the session is Established
//   - GET /metrics - Prometheus metrics, when enabled
package bot
