// ABOUTME: HTTP middleware for JWT authentication on operator endpoints
// ABOUTME: Extracts the bearer token and requires the subject to be a configured admin

package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
)

// writeAuthError writes a JSON error body with the given status.
func writeAuthError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

// WriteRejection renders a handshake rejection as a JSON HTTP response.
func WriteRejection(w http.ResponseWriter, rej *RejectionError) {
	writeAuthError(w, rej.Status, string(rej.Kind), rej.Reason)
}

// RequireAdminHTTP creates middleware that only lets through bearer tokens
// whose subject is in adminIDs. The caller's Identity is added to the context.
func RequireAdminHTTP(verifier TokenVerifier, adminIDs []string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "admin_auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeAuthError(w, http.StatusUnauthorized, string(RejectMissingToken), errMsg)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logger.Warn("auth failure", "reason", "invalid token", "remote_addr", r.RemoteAddr, "error", err)
				writeAuthError(w, http.StatusUnauthorized, string(RejectMalformedToken), "invalid token")
				return
			}

			if !slices.Contains(adminIDs, claims.Subject) {
				logger.Warn("auth failure", "reason", "not an admin", "user_id", claims.Subject, "remote_addr", r.RemoteAddr)
				writeAuthError(w, http.StatusForbidden, "forbidden", "admin access required")
				return
			}

			ctx := WithIdentity(r.Context(), &Identity{
				UserID: claims.Subject,
				Email:  claims.Email,
				Tier:   claims.Tier,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
