// Package auth authenticates realtime connections and operator requests.
//
// # Handshake
//
// Every WebSocket upgrade passes through Gatekeeper.Admit before the
// connection is accepted. The token is read from the "token" query parameter
// or an "Authorization: Bearer" header, verified as an HS256 JWT signed with
// the secret shared with the platform's REST API, and its subject is looked
// up in the identity directory. A rejection is a *RejectionError carrying a
// stable machine-readable kind and the HTTP status to answer with:
//
//   - missing_token, invalid_token, token_expired: 401
//   - unknown_identity: 401, account_inactive: 403
//   - identity_unavailable: 503 when the directory cannot be reached
//
// Raw tokens never reach the logs.
//
// # Operator Endpoints
//
// RequireAdminHTTP guards the /api routes. It accepts the same JWTs but only
// for subjects listed in auth.admin_user_ids.
//
// # Identity
//
// The resolved Identity is immutable for the life of a session and travels
// through request contexts via WithIdentity and FromContext.
package auth
