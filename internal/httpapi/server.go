// Package httpapi is the HTTP composition root: it builds the chi router,
// wires every feature group's routes against a per-project Manager, and
// owns the process's listen/shutdown lifecycle.
//
// Follows internal/server/server.go's shape (chi + cors + middleware
// stack, /healthz, Start/Shutdown over http.Server) and every
// internal/*/routes.go file's RegisterRoutes(r chi.Router, deps)
// convention, generalized from one fixed dependency bundle to a Manager
// that resolves those dependencies per project id.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/predictsh/predictd/internal/config"
	"github.com/predictsh/predictd/internal/logging"
)

// Server is predictd's HTTP composition root.
type Server struct {
	cfg        *config.Config
	manager    *Manager
	log        *logging.Logger
	router     chi.Router
	httpServer *http.Server
}

// New builds a Server, registering every feature group's routes against
// manager.
func New(cfg *config.Config, manager *Manager, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Default()
	}
	s := &Server{cfg: cfg, manager: manager, log: log.With("httpapi")}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	corsOpts := cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if len(corsOpts.AllowedOrigins) == 0 {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	registerIntentRoutes(r, s.manager)
	registerIndexRoutes(r, s.manager)
	registerRankRoutes(r, s.manager)
	registerPredictRoutes(r, s.manager)
	registerTunerRoutes(r, s.manager)
	registerStatusRoutes(r, s.manager)
	registerMetricsRoutes(r, s.manager)
	registerEventRoutes(r, s.manager)

	return r
}

// Router returns the chi router, for tests that want to drive it directly.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured bind address.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Bind,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.log.Infof("listening on %s", s.cfg.Bind)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
