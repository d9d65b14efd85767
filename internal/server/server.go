// Package server is the composition root: it wires services and handlers
// onto the chi router and runs the HTTP server until it is told to stop.
//
// DEPENDENCY FLOW:
//
//	cmd/chores builds: config → logger → DB, hub, tokens, mailer
//	server.New builds: services(store, hub, ...) → handlers(services) → routes
//
// Handlers never touch the database and services never touch HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/chore-tracker/internal/auth"
	"github.com/sakif/chore-tracker/internal/handler"
	"github.com/sakif/chore-tracker/internal/middleware"
	"github.com/sakif/chore-tracker/internal/notify"
	"github.com/sakif/chore-tracker/internal/repository"
	"github.com/sakif/chore-tracker/internal/service"
	"github.com/sakif/chore-tracker/internal/watch"
)

// Store is the database the server owns. It is closed on shutdown.
type Store interface {
	repository.Store
	PingContext(ctx context.Context) error
	Close() error
}

type Config struct {
	Port int
	// SecureCookies marks auth cookies Secure (HTTPS deployments).
	SecureCookies bool
	// ShutdownTimeout bounds how long in-flight requests get to finish.
	ShutdownTimeout time.Duration
	Family          service.FamilyOptions
}

// Deps are built by the caller so tests can swap any of them.
type Deps struct {
	Store     Store
	Hub       *watch.Hub
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	Mailer    notify.Mailer
	// GitHub is optional; without it the /auth/github routes are not mounted.
	GitHub handler.GitHubAuthenticator
}

type Server struct {
	router *chi.Mux
	config Config
	deps   Deps
	logger *slog.Logger
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes mounts every route.
//
//	POST   /auth/signup                 POST /auth/login      POST /auth/logout
//	GET    /auth/github/login           GET  /auth/github/callback
//	GET    /api/me                      PATCH /api/me            GET /api/profile
//	GET    /api/session/route           GET  /api/session/events POST /api/session/navigate
//	GET    /api/family                  POST /api/family         GET /api/family/{code}
//	POST   /api/family/join             POST /api/family/leave   POST /api/family/invite
//	GET    /api/family/events
//	GET    /api/chores                  POST /api/chores         GET /api/chores/events
//	POST   /api/chores/{id}/toggle      DELETE /api/chores/{id}
//	GET    /healthz
//
// Middleware order: request id first so the logger can print it,
// recoverer innermost so a panic is still logged as a 500.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	d := s.deps
	authSvc := service.NewAuthService(d.Store, d.Tokens, d.Passwords, d.Hub, s.logger)
	familySvc := service.NewFamilyService(d.Store, d.Hub, d.Mailer, s.config.Family, s.logger)
	choreSvc := service.NewChoreService(d.Store, d.Hub, s.logger)

	authHandler := handler.NewAuthHandler(authSvc, d.GitHub, s.config.SecureCookies, s.logger)
	sessionHandler := handler.NewSessionHandler(d.Hub, d.Store.Profiles(), s.logger)
	familyHandler := handler.NewFamilyHandler(familySvc, d.Hub, s.logger)
	choreHandler := handler.NewChoreHandler(choreSvc, d.Hub, s.logger)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignUp)
		r.Post("/login", authHandler.HandleLogin)
		r.With(auth.OptionalAuth(d.Tokens)).Post("/logout", authHandler.HandleLogout)
		if d.GitHub != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(d.Tokens))
			r.Get("/session/route", sessionHandler.HandleRoute)
			r.Get("/session/events", sessionHandler.HandleEvents)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(d.Tokens))

			r.Get("/me", authHandler.HandleMe)
			r.Patch("/me", authHandler.HandleUpdateMe)
			r.Get("/profile", familyHandler.HandleProfile)

			r.Post("/session/navigate", sessionHandler.HandleNavigate)

			r.Get("/family", familyHandler.HandleCurrent)
			r.Post("/family", familyHandler.HandleCreate)
			r.Get("/family/events", familyHandler.HandleEvents)
			r.Get("/family/{code}", familyHandler.HandleGet)
			r.Post("/family/join", familyHandler.HandleJoin)
			r.Post("/family/leave", familyHandler.HandleLeave)
			r.Post("/family/invite", familyHandler.HandleInvite)

			r.Get("/chores", choreHandler.HandleList)
			r.Post("/chores", choreHandler.HandleCreate)
			r.Get("/chores/events", choreHandler.HandleEvents)
			r.Post("/chores/{id}/toggle", choreHandler.HandleToggle)
			r.Delete("/chores/{id}", choreHandler.HandleDelete)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.deps.Store.PingContext(ctx); err != nil {
		s.logger.WarnContext(ctx, "health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start serves until ctx is cancelled, SIGINT/SIGTERM arrives or the
// listener fails.
//
// Shutdown order matters: the hub is closed first so every open event
// stream returns (Shutdown would otherwise wait on them until the timeout),
// then in-flight requests drain, then the database closes.
func (s *Server) Start(ctx context.Context) error {
	defer s.deps.Store.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Event streams lift this per request.
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			s.deps.Hub.Close()
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown requested")
		s.deps.Hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}
