package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rivio/ranking-server/internal/config"
	"github.com/rivio/ranking-server/internal/pkg/logger"
	"github.com/rivio/ranking-server/internal/token"
)

// SetupRoutes builds the router. Dev-only endpoints (OTP echo is in the
// handler, simulate/reconcile here) are not registered outside dev, so
// they answer 404 in production.
func SetupRoutes(cfg config.ServerConfig, h *Handlers, tokens *token.Manager) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(cfg.IsDev()))
	r.Use(trustedHost(cfg.TrustedHosts))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Billing-Signature", "Stripe-Signature"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.healthCheck)

	// unauthenticated surface
	r.Route("/auth", func(r chi.Router) {
		r.Post("/otp/request", h.requestOTP(cfg.IsDev()))
		r.Post("/register/complete", h.register)
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.Post("/password-reset/request", h.requestPasswordReset(cfg.IsDev()))
		r.Post("/password-reset/confirm", h.confirmPasswordReset)
	})

	r.Get("/rankings/{ladderCode}/{categoryID}", h.rankings)

	r.Route("/config", func(r chi.Router) {
		r.Get("/clubs", h.clubs)
		r.Get("/ladders", h.ladders)
		r.Get("/categories", h.categories)
		r.Get("/avatar-presets", h.avatarPresets)
	})

	// webhook deliveries authenticate via signature, not bearer
	r.Post("/billing/webhooks/{provider}", h.billingWebhook)

	// authenticated surface
	r.Group(func(r chi.Router) {
		r.Use(requireAuth(tokens))

		r.Route("/me", func(r chi.Router) {
			r.Get("/", h.me)
			r.Patch("/profile", h.updateProfile)
			r.Get("/ladder-states", h.myLadders)
			r.Get("/play-eligibility", h.playEligibility)
			r.Get("/matches", h.myMatches)
			r.Put("/avatar/preset", h.setAvatarPreset)
			r.Post("/avatar", h.uploadAvatar)

			r.Post("/contact-change/request", h.requestContactChange(cfg.IsDev()))
			r.Post("/contact-change/confirm", h.confirmContactChange)

			r.Route("/account/delete", func(r chi.Router) {
				r.Get("/", h.deletionStatus)
				r.Post("/", h.requestDeletion)
				r.Post("/cancel", h.cancelDeletion)
			})
		})

		r.Route("/matches", func(r chi.Router) {
			r.Post("/", h.createMatch)
			r.Get("/{matchID}", h.getMatch)
			r.Get("/{matchID}/detail", h.matchDetail)
			r.Get("/{matchID}/confirmations", h.matchConfirmations)
			r.Post("/{matchID}/confirm", h.confirmMatch)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/me", h.myHistory)
			r.Get("/users/{userID}", h.userHistory)
			r.Get("/users/{userID}/matches/{matchID}", h.userHistoryDetail)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/me", h.myAnalytics)
			r.Get("/me/dashboard", h.analyticsDashboard)
			r.Get("/me/export", h.analyticsExport)
			r.Get("/users/{userID}", h.userAnalytics)
		})

		r.Route("/entitlements", func(r chi.Router) {
			r.Get("/me", h.myEntitlements)
			r.Get("/plans", h.planCatalog)
		})

		r.Route("/billing", func(r chi.Router) {
			r.Get("/me", h.billingMe)
			r.Post("/checkout-session", h.billingCheckout)
			r.Post("/store/app-store/validate", h.validateAppStore)
			r.Post("/store/google-play/validate", h.validateGooglePlay)
			if cfg.IsDev() {
				r.Post("/simulate/subscription", h.billingSimulate)
				r.Post("/reconcile", h.billingReconcile)
			}
		})

		r.Route("/support", func(r chi.Router) {
			r.Get("/contact", h.supportContact)
			r.Post("/tickets", h.createTicket)
			r.Get("/tickets/me", h.myTickets)
		})
	})

	return r
}

func (h *Handlers) healthCheck(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "dependency check failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
