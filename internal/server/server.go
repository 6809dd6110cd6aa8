// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package server wires the enrollment service, its stores and the HTTP
// surface into one runnable unit.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/keyward/go-fido-enroll/internal/config"
	"github.com/keyward/go-fido-enroll/pkg/enroll"
	enrollhttp "github.com/keyward/go-fido-enroll/pkg/enroll/http"
	"github.com/keyward/go-fido-enroll/pkg/enroll/sqlite"
	"github.com/keyward/go-fido-enroll/pkg/logging"
	"github.com/keyward/go-fido-enroll/pkg/metrics"
	"github.com/keyward/go-fido-enroll/pkg/ratelimit"
)

// Server is the enrollment HTTP server.
type Server struct {
	server     *http.Server
	service    *enroll.Service
	challenges *enroll.MemoryChallengeStore
	store      *sqlite.Store // nil when running on memory storage
	limiter    *ratelimit.Limiter
	logger     *logging.Logger
}

// New builds the server from configuration: credential storage, the
// enrollment service, the session resolver and the router.
func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := logging.NewLogger(cfg.Logging.Debug)

	var creds enroll.CredentialStore
	var store *sqlite.Store
	if cfg.Storage.Path != "" {
		var err error
		store, err = sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open credential store: %w", err)
		}
		creds = store
	} else {
		logger.Warn("no storage path configured, credentials will not survive restarts")
		creds = enroll.NewMemoryCredentialStore()
	}

	var tokens enroll.TokenGenerator
	if cfg.Token.Secret != "" {
		var err error
		tokens, err = enroll.NewJWTTokenGenerator(&enroll.JWTTokenGeneratorConfig{
			Secret:    []byte(cfg.Token.Secret),
			Issuer:    cfg.Token.Issuer,
			ExpiresIn: cfg.Token.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("create token generator: %w", err)
		}
	}

	challenges := enroll.NewMemoryChallengeStoreWithTTL(cfg.Enroll.CeremonyTTL)

	service, err := enroll.NewService(enroll.ServiceParams{
		Config:          &cfg.Enroll,
		ChallengeStore:  challenges,
		CredentialStore: creds,
		TokenGenerator:  tokens,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create enrollment service: %w", err)
	}

	resolver := enrollhttp.NewStaticResolver()
	for sessionID, account := range cfg.Sessions {
		resolver.Add(sessionID, enroll.Account{
			ID:           account.ID,
			EmailAddress: account.Email,
			DisplayName:  account.Name,
		})
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.Limits.Enabled,
		RequestsPerMinute: cfg.Limits.RequestsPerMinute,
		Burst:             cfg.Limits.Burst,
	})

	srv := &Server{
		service:    service,
		challenges: challenges,
		store:      store,
		limiter:    limiter,
		logger:     logger,
	}

	router := srv.setupRouter(enrollhttp.NewHandler(service, resolver))

	srv.server = &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv, nil
}

// Service returns the underlying enrollment service.
func (s *Server) Service() *enroll.Service {
	return s.service
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter(handler *enrollhttp.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health", s.healthHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1/enroll", func(r chi.Router) {
		r.Use(ratelimit.Middleware(s.limiter))
		enrollhttp.MountChi(r, handler)
	})

	return r
}

// healthHandler answers liveness probes.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting enrollment server", "addr", s.server.Addr)

	// Background cleanup keeps abandoned ceremonies from accumulating
	s.challenges.StartCleanupRoutine(ctx, time.Minute)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("start server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server and closes the credential store.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down enrollment server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	s.limiter.Stop()

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return fmt.Errorf("close credential store: %w", err)
		}
	}

	s.logger.Info("enrollment server stopped")
	return nil
}
