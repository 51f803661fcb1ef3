// ABOUTME: Tests for the handshake gatekeeper
// ABOUTME: Covers every rejection kind, token sources, and that raw tokens never reach the logs

package auth

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/2389/vision-gateway/internal/mocks"
	"github.com/2389/vision-gateway/internal/store"
)

func newCapturingLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func seededStore(t *testing.T) *store.MockStore {
	t.Helper()
	s := store.NewMockStore()
	require.NoError(t, s.CreateUser(t.Context(), &store.User{ID: "user-1", Email: "ana@example.com", Tier: store.TierPremium, Active: true}))
	require.NoError(t, s.CreateUser(t.Context(), &store.User{ID: "user-off", Email: "off@example.com", Active: false}))
	return s
}

func TestGatekeeper_AdmitsQueryToken(t *testing.T) {
	verifier := newTestVerifier(t)
	logger, logs := newCapturingLogger()
	gk := NewGatekeeper(verifier, seededStore(t), logger)

	token, err := verifier.Generate("user-1", "", "", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	id, err := gk.Admit(req)
	require.NoError(t, err)

	assert.Equal(t, &Identity{UserID: "user-1", Email: "ana@example.com", Tier: "premium"}, id)
	assert.Contains(t, logs.String(), "connection admitted")
	assert.NotContains(t, logs.String(), token)
}

func TestGatekeeper_AdmitsBearerHeader(t *testing.T) {
	verifier := newTestVerifier(t)
	gk := NewGatekeeper(verifier, seededStore(t), nil)

	token, err := verifier.Generate("user-1", "", "", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	id, err := gk.Admit(req)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
}

func TestGatekeeper_Rejections(t *testing.T) {
	verifier := newTestVerifier(t)

	mint := func(sub string, ttl time.Duration) string {
		token, err := verifier.Generate(sub, "", "", ttl)
		require.NoError(t, err)
		return token
	}

	tests := []struct {
		name       string
		token      string
		lookupErr  error
		wantKind   RejectionKind
		wantStatus int
	}{
		{name: "missing token", token: "", wantKind: RejectMissingToken, wantStatus: http.StatusUnauthorized},
		{name: "malformed token", token: "not-a-jwt", wantKind: RejectMalformedToken, wantStatus: http.StatusUnauthorized},
		{name: "expired token", token: mint("user-1", -time.Minute), wantKind: RejectExpiredToken, wantStatus: http.StatusUnauthorized},
		{name: "unknown identity", token: mint("user-404", time.Hour), wantKind: RejectUnknownUser, wantStatus: http.StatusUnauthorized},
		{name: "inactive account", token: mint("user-off", time.Hour), wantKind: RejectInactive, wantStatus: http.StatusForbidden},
		{name: "lookup unavailable", token: mint("user-1", time.Hour), lookupErr: errors.New("connection refused"), wantKind: RejectLookupFailed, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := seededStore(t)
			users.GetUserErr = tt.lookupErr
			logger, logs := newCapturingLogger()
			gk := NewGatekeeper(verifier, users, logger)

			target := "/ws"
			if tt.token != "" {
				target += "?token=" + tt.token
			}
			id, err := gk.Admit(httptest.NewRequest(http.MethodGet, target, nil))
			require.Error(t, err)
			assert.Nil(t, id)

			var rej *RejectionError
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tt.wantKind, rej.Kind)
			assert.Equal(t, tt.wantStatus, rej.Status)

			assert.Contains(t, logs.String(), "auth failure")
			if tt.token != "" {
				assert.NotContains(t, logs.String(), tt.token, "raw token must never be logged")
			}
		})
	}
}

func TestGatekeeper_LooksUpTokenSubject(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockIdentityLookup(ctrl)
	verifier := newTestVerifier(t)

	users.EXPECT().
		GetUser(gomock.Any(), "user-7").
		Return(&store.User{ID: "user-7", Email: "seven@example.com", Tier: store.TierEnterprise, Active: true}, nil).
		Times(1)

	token, err := verifier.Generate("user-7", "stale@example.com", "free", time.Hour)
	require.NoError(t, err)

	id, err := NewGatekeeper(verifier, users, nil).Admit(httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	require.NoError(t, err)

	// Directory record wins over claims embedded in the token.
	assert.Equal(t, "seven@example.com", id.Email)
	assert.Equal(t, "enterprise", id.Tier)
}

func TestGatekeeper_RejectsBeforeLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockIdentityLookup(ctrl)
	users.EXPECT().GetUser(gomock.Any(), gomock.Any()).Times(0)

	_, err := NewGatekeeper(newTestVerifier(t), users, nil).Admit(httptest.NewRequest(http.MethodGet, "/ws?token=garbage", nil))
	require.Error(t, err)
}

func TestWriteRejection(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRejection(rec, &RejectionError{Kind: RejectInactive, Reason: "account is deactivated", Status: http.StatusForbidden})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"account is deactivated","code":"account_inactive"}`, rec.Body.String())
}
