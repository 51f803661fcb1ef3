// Package gateway wires the realtime components together and owns the servers.
//
// # Connection lifecycle
//
// A client opens GET /ws with a bearer token in ?token= or the Authorization
// header. The origin allowlist and the Gatekeeper run before the upgrade, so a
// rejected client gets a plain JSON error response and no session exists.
// After the upgrade:
//
//  1. The session registry opens a session and joins it to user:<id>.
//  2. A writer goroutine drains the session's bounded outbound queue.
//  3. The read loop decodes frames, applies the per-connection rate limit,
//     and hands envelopes to the dispatcher.
//  4. Whichever side fails first closes the session exactly once; the
//     registry purges its channel memberships and cancels in-flight work.
//
// # HTTP surface
//
//   - GET /ws - WebSocket endpoint
//   - GET /health - liveness, live connection count, process stats
//   - GET /metrics - Prometheus exposition (when metrics are enabled)
//   - GET /api/sessions - live sessions (admin bearer token)
//   - GET /api/usage - feature usage aggregates (admin bearer token)
//
// The gRPC server only carries grpc.health.v1 and listens when grpc_addr is
// set or on :50051 of the tailnet.
//
// # Shutdown
//
// Shutdown marks the health service NOT_SERVING, stops the HTTP server,
// closes every live session with "going away", stops the heartbeat, waits for
// in-flight processing, then releases the processing cache and the store.
package gateway
