// ABOUTME: Resolved connection identity and its propagation through context
// ABOUTME: Provides WithIdentity/FromContext for handlers downstream of the gatekeeper

package auth

import (
	"context"
)

// Identity is the authenticated user behind a session. It never changes after
// the handshake.
type Identity struct {
	UserID string
	Email  string
	Tier   string
}

// identityKey is the key type for storing an Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok {
		return nil
	}
	return id
}
