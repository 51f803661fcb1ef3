// Package session tracks the live realtime connections admitted by the
// gateway.
//
// A Session is created by Registry.Open only after the handshake succeeded
// and is destroyed exactly once by Registry.Close, which cancels the
// session's context and purges all of its channel memberships. Outbound
// frames go through a bounded queue; Deliver never blocks and silently drops
// frames for a closed session.
package session
