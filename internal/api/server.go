package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/rivio/ranking-server/internal/config"
	"github.com/rivio/ranking-server/internal/service/analytics"
	"github.com/rivio/ranking-server/internal/service/billing"
	"github.com/rivio/ranking-server/internal/service/catalog"
	"github.com/rivio/ranking-server/internal/service/entitlement"
	"github.com/rivio/ranking-server/internal/service/history"
	"github.com/rivio/ranking-server/internal/service/identity"
	"github.com/rivio/ranking-server/internal/service/match"
	"github.com/rivio/ranking-server/internal/service/profile"
	"github.com/rivio/ranking-server/internal/service/ranking"
	"github.com/rivio/ranking-server/internal/service/support"
	"github.com/rivio/ranking-server/internal/token"
)

// Handlers bundles the service layer behind the HTTP surface.
type Handlers struct {
	Identity    *identity.Service
	Profile     *profile.Service
	Match       *match.Service
	Ranking     *ranking.Service
	History     *history.Service
	Analytics   *analytics.Service
	Entitlement *entitlement.Service
	Billing     *billing.Service
	Support     *support.Service
	Catalog     *catalog.Service

	Health func(ctx context.Context) error // nil-able DB ping
}

// Server is the HTTP front of the ranking platform.
type Server struct {
	cfg    config.ServerConfig
	server *http.Server
}

// NewServer wires the router and the listener.
func NewServer(cfg config.ServerConfig, h *Handlers, tokens *token.Manager) *Server {
	router := SetupRoutes(cfg, h, tokens)
	return &Server{
		cfg: cfg,
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	log.Printf("[api.Server] listening on %s (env=%s)", s.server.Addr, s.cfg.Env)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Printf("[api.Server] shutting down")
	return s.server.Shutdown(ctx)
}
