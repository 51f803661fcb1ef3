// ABOUTME: Handshake gatekeeper that authenticates WebSocket upgrade requests
// ABOUTME: Extracts the bearer token, verifies it, and resolves an active identity

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/vision-gateway/internal/store"
)

//go:generate go run go.uber.org/mock/mockgen -source=gatekeeper.go -destination=../mocks/mock_identity.go -package=mocks

// IdentityLookup resolves a token subject to a directory record.
type IdentityLookup interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// RejectionKind classifies why a handshake was refused.
type RejectionKind string

const (
	RejectMissingToken   RejectionKind = "missing_token"
	RejectMalformedToken RejectionKind = "invalid_token"
	RejectExpiredToken   RejectionKind = "token_expired"
	RejectUnknownUser    RejectionKind = "unknown_identity"
	RejectInactive       RejectionKind = "account_inactive"
	RejectLookupFailed   RejectionKind = "identity_unavailable"
)

// RejectionError is returned by Admit when a handshake must be refused.
type RejectionError struct {
	Kind   RejectionKind
	Reason string
	Status int
	UserID string
	Err    error
}

func (e *RejectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *RejectionError) Unwrap() error { return e.Err }

func reject(kind RejectionKind, status int, reason string, err error) *RejectionError {
	return &RejectionError{Kind: kind, Reason: reason, Status: status, Err: err}
}

// Gatekeeper admits or rejects handshake requests.
type Gatekeeper struct {
	verifier      TokenVerifier
	users         IdentityLookup
	logger        *slog.Logger
	lookupTimeout time.Duration
}

// NewGatekeeper creates a gatekeeper. Pass nil logger for default.
func NewGatekeeper(verifier TokenVerifier, users IdentityLookup, logger *slog.Logger) *Gatekeeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gatekeeper{
		verifier:      verifier,
		users:         users,
		logger:        logger.With("component", "gatekeeper"),
		lookupTimeout: 5 * time.Second,
	}
}

// Admit authenticates the request. On failure the error is a *RejectionError.
// The raw token is never logged.
func (g *Gatekeeper) Admit(r *http.Request) (*Identity, error) {
	token := extractToken(r)
	if token == "" {
		rej := reject(RejectMissingToken, http.StatusUnauthorized, "authentication token required", nil)
		g.logAuthFailure(r, rej)
		return nil, rej
	}

	claims, err := g.verifier.Verify(token)
	if err != nil {
		var rej *RejectionError
		if errors.Is(err, ErrExpiredToken) {
			rej = reject(RejectExpiredToken, http.StatusUnauthorized, "token expired", err)
		} else {
			rej = reject(RejectMalformedToken, http.StatusUnauthorized, "invalid token", err)
		}
		g.logAuthFailure(r, rej)
		return nil, rej
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.lookupTimeout)
	defer cancel()

	user, err := g.users.GetUser(ctx, claims.Subject)
	if err != nil {
		var rej *RejectionError
		if errors.Is(err, store.ErrNotFound) {
			rej = reject(RejectUnknownUser, http.StatusUnauthorized, "user not found", err)
		} else {
			rej = reject(RejectLookupFailed, http.StatusServiceUnavailable, "identity lookup unavailable", err)
		}
		rej.UserID = claims.Subject
		g.logAuthFailure(r, rej)
		return nil, rej
	}

	if errMsg := checkUserStatus(user); errMsg != "" {
		rej := reject(RejectInactive, http.StatusForbidden, errMsg, nil)
		rej.UserID = user.ID
		g.logAuthFailure(r, rej, "email", user.Email)
		return nil, rej
	}

	id := &Identity{
		UserID: user.ID,
		Email:  user.Email,
		Tier:   string(user.Tier),
	}
	g.logger.Info("connection admitted",
		"user_id", id.UserID,
		"email", id.Email,
		"tier", id.Tier,
		"remote_addr", r.RemoteAddr,
	)
	return id, nil
}

// extractToken reads the token from the query string, falling back to the
// Authorization header.
func extractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg != "" {
		return ""
	}
	return token
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// checkUserStatus validates that a user may connect.
// Returns an error message (empty if allowed).
func checkUserStatus(user *store.User) string {
	if !user.Active {
		return "account is deactivated"
	}
	return ""
}

// logAuthFailure logs a rejected handshake with enough context to debug it.
func (g *Gatekeeper) logAuthFailure(r *http.Request, rej *RejectionError, attrs ...any) {
	args := []any{
		"kind", string(rej.Kind),
		"reason", rej.Reason,
		"remote_addr", r.RemoteAddr,
	}
	if rej.UserID != "" {
		args = append(args, "user_id", rej.UserID)
	}
	if rej.Err != nil {
		args = append(args, "error", rej.Err)
	}
	args = append(args, attrs...)
	g.logger.Warn("auth failure", args...)
}
