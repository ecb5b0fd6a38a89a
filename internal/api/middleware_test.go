package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivio/ranking-server/internal/service/billing"
	"github.com/rivio/ranking-server/internal/service/history"
	"github.com/rivio/ranking-server/internal/service/identity"
	"github.com/rivio/ranking-server/internal/service/match"
	"github.com/rivio/ranking-server/internal/service/support"
	"github.com/rivio/ranking-server/internal/token"
)

func testTokens() *token.Manager {
	return token.NewManager("test-secret", "otp-pepper", "pii-pepper", time.Hour, 24*time.Hour)
}

func echoUserID() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(userID(r.Context())))
	})
}

func TestRequireAuth(t *testing.T) {
	tokens := testTokens()
	handler := requireAuth(tokens)(echoUserID())

	t.Run("valid bearer token", func(t *testing.T) {
		access, err := tokens.MintAccess("u1", "s1", time.Now())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1", rec.Body.String())
	})
	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("refresh token rejected on access routes", func(t *testing.T) {
		refresh, err := tokens.MintRefresh("u1", "s1", time.Now())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+refresh)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestSecurityHeaders(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("hardening headers on every response", func(t *testing.T) {
		rec := httptest.NewRecorder()
		securityHeaders(true)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
		assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
		assert.Equal(t, "camera=(), microphone=(), geolocation=()", rec.Header().Get("Permissions-Policy"))
		assert.Equal(t, "frame-ancestors 'none'; base-uri 'self'", rec.Header().Get("Content-Security-Policy"))
	})
	t.Run("no HSTS in dev", func(t *testing.T) {
		rec := httptest.NewRecorder()
		securityHeaders(true)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
	})
	t.Run("HSTS in production", func(t *testing.T) {
		rec := httptest.NewRecorder()
		securityHeaders(false)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=")
	})
}

func TestTrustedHost(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("empty list allows everything", func(t *testing.T) {
		handler := trustedHost(nil)(ok)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "anything.example.com"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
	t.Run("allowed host with port", func(t *testing.T) {
		handler := trustedHost([]string{"api.rivio.app"})(ok)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "API.rivio.app:443"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
	t.Run("unknown host rejected", func(t *testing.T) {
		handler := trustedHost([]string{"api.rivio.app"})(ok)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "evil.example.com"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{identity.ErrInvalidContact, http.StatusBadRequest, "validation_error"},
		{billing.ErrBadSignature, http.StatusBadRequest, "validation_error"},
		{identity.ErrInvalidCredentials, http.StatusUnauthorized, "unauthenticated"},
		{match.ErrCreatorBlocked, http.StatusForbidden, "forbidden"},
		{history.ErrForbiddenScope, http.StatusForbidden, "forbidden"},
		{match.ErrNotParticipant, http.StatusNotFound, "not_found"},
		{history.ErrNotFound, http.StatusNotFound, "not_found"},
		{identity.ErrAlreadyRegistered, http.StatusConflict, "conflict"},
		{match.ErrProposalLimit, http.StatusConflict, "conflict"},
		{identity.ErrLoginThrottled, http.StatusTooManyRequests, "rate_limited"},
		{support.ErrTooSoon, http.StatusTooManyRequests, "rate_limited"},
		{support.ErrDisabled, http.StatusServiceUnavailable, "unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, code := statusFor(tc.err)
		assert.Equal(t, tc.wantStatus, status, tc.err.Error())
		assert.Equal(t, tc.wantCode, code, tc.err.Error())
	}
}

func TestRespondErrHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	respondErr(rec, errors.New("pq: secret table exploded"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "exploded")
	assert.Contains(t, rec.Body.String(), "internal server error")
}
