// Package dedupe suppresses repeated client messages within a time window.
//
// Clients retry conversation messages after reconnecting and tag each one
// with a client-generated id. A Window remembers (user, id) pairs for a TTL
// so a retried message is fanned out to the room only once.
package dedupe
