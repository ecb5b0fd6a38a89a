package api

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/rivio/ranking-server/internal/config"
)

// Route matching only; handlers are never invoked.
func TestRouteTable(t *testing.T) {
	mux := SetupRoutes(config.ServerConfig{Env: "dev"}, &Handlers{}, testTokens())

	matches := func(method, path string) bool {
		return mux.Match(chi.NewRouteContext(), method, path)
	}

	registered := []struct{ method, path string }{
		{http.MethodPost, "/auth/otp/request"},
		{http.MethodPost, "/auth/register/complete"},
		{http.MethodPost, "/auth/login"},
		{http.MethodPost, "/auth/refresh"},
		{http.MethodPost, "/auth/logout"},
		{http.MethodPost, "/auth/password-reset/request"},
		{http.MethodPost, "/auth/password-reset/confirm"},
		{http.MethodGet, "/rankings/HM/cat-1"},
		{http.MethodGet, "/config/clubs"},
		{http.MethodGet, "/config/ladders"},
		{http.MethodGet, "/config/categories"},
		{http.MethodGet, "/config/avatar-presets"},
		{http.MethodGet, "/me"},
		{http.MethodPatch, "/me/profile"},
		{http.MethodGet, "/me/ladder-states"},
		{http.MethodGet, "/me/play-eligibility"},
		{http.MethodGet, "/me/matches"},
		{http.MethodPost, "/me/contact-change/request"},
		{http.MethodPost, "/me/contact-change/confirm"},
		{http.MethodPost, "/me/account/delete"},
		{http.MethodPost, "/me/account/delete/cancel"},
		{http.MethodPost, "/matches"},
		{http.MethodGet, "/matches/m1"},
		{http.MethodGet, "/matches/m1/detail"},
		{http.MethodGet, "/matches/m1/confirmations"},
		{http.MethodPost, "/matches/m1/confirm"},
		{http.MethodGet, "/history/me"},
		{http.MethodGet, "/history/users/u1"},
		{http.MethodGet, "/history/users/u1/matches/m1"},
		{http.MethodGet, "/analytics/me"},
		{http.MethodGet, "/analytics/me/dashboard"},
		{http.MethodGet, "/analytics/users/u1"},
		{http.MethodGet, "/entitlements/me"},
		{http.MethodGet, "/entitlements/plans"},
		{http.MethodGet, "/billing/me"},
		{http.MethodPost, "/billing/checkout-session"},
		{http.MethodPost, "/billing/webhooks/manual"},
		{http.MethodPost, "/billing/store/app-store/validate"},
		{http.MethodPost, "/billing/store/google-play/validate"},
		{http.MethodGet, "/support/contact"},
		{http.MethodPost, "/support/tickets"},
		{http.MethodGet, "/support/tickets/me"},
	}
	for _, rt := range registered {
		assert.True(t, matches(rt.method, rt.path), "%s %s not routed", rt.method, rt.path)
	}

	// renamed paths must be gone
	unregistered := []struct{ method, path string }{
		{http.MethodPost, "/auth/register"},
		{http.MethodPost, "/auth/password/reset"},
		{http.MethodGet, "/me/ladders"},
		{http.MethodGet, "/me/eligibility"},
		{http.MethodGet, "/rankings"},
		{http.MethodPost, "/billing/checkout"},
		{http.MethodPost, "/billing/validate/app-store"},
		{http.MethodGet, "/v1/me"},
	}
	for _, rt := range unregistered {
		assert.False(t, matches(rt.method, rt.path), "%s %s should not be routed", rt.method, rt.path)
	}
}

func TestDevRoutesUnregisteredInProduction(t *testing.T) {
	dev := SetupRoutes(config.ServerConfig{Env: "dev"}, &Handlers{}, testTokens())
	prod := SetupRoutes(config.ServerConfig{Env: "production"}, &Handlers{}, testTokens())

	assert.True(t, dev.Match(chi.NewRouteContext(), http.MethodPost, "/billing/simulate/subscription"))
	assert.False(t, prod.Match(chi.NewRouteContext(), http.MethodPost, "/billing/simulate/subscription"))
	assert.False(t, prod.Match(chi.NewRouteContext(), http.MethodPost, "/billing/reconcile"))
}
