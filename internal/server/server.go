// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware, and
// routes, and decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it testable: tests build a
// Server and drive Handler() with httptest, without running main.
//
// DEPENDENCY INJECTION FLOW:
// main.go creates:
//
//	config.Config, logger, optional executor → passed to Server
//
// Server.New() creates:
//
//	sqlite.DB → records.Client (sqlite or remote) → PenService → PenHandler, PageHandler
//	sqlite.DB → AuthService → AuthHandler
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/codecanvas/internal/auth"
	"github.com/sakif/codecanvas/internal/config"
	"github.com/sakif/codecanvas/internal/executor"
	"github.com/sakif/codecanvas/internal/handler"
	"github.com/sakif/codecanvas/internal/middleware"
	"github.com/sakif/codecanvas/internal/notify"
	"github.com/sakif/codecanvas/internal/records"
	"github.com/sakif/codecanvas/internal/records/remote"
	sqliteRepo "github.com/sakif/codecanvas/internal/repository/sqlite"
	"github.com/sakif/codecanvas/internal/routes"
	"github.com/sakif/codecanvas/internal/service"
	"github.com/sakif/codecanvas/internal/telemetry"
	"github.com/sakif/codecanvas/internal/thumbnail"
	"github.com/sakif/codecanvas/internal/web"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and, when thumbnails are enabled,
// the render worker and its browser. Close releases them in reverse order of
// creation; Start calls it during graceful shutdown.
type Server struct {
	router  *chi.Mux
	handler http.Handler
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB

	exec    executor.Executor
	pens    *service.PenService
	auth    *service.AuthService
	tokens  *auth.TokenService
	github  *auth.GitHubProvider
	access  *routes.AccessConfig
	worker  *thumbnail.Worker
	browser *thumbnail.RodRenderer
}

// New creates a new Server.
//
// exec may be nil: the server starts without a JavaScript runner and
// /api/run answers 503.
//
// DEPENDENCY INJECTION & WIRING:
//  1. Open the user database (sqlite.New)
//  2. Pick the pen records backend (the same database, or the hosted one)
//  3. Create the services with their collaborators
//  4. Create the handlers and wire them to routes
func New(cfg *config.Config, logger *slog.Logger, exec executor.Executor) (*Server, error) {
	// === CREATE DATABASE ===
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		exec:   exec,
	}

	if err := s.setup(); err != nil {
		s.Close() // release whatever setup created
		return nil, err
	}

	s.handler = otelhttp.NewHandler(s.router, telemetry.ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return s, nil
}

func (s *Server) setup() error {
	cfg := s.config

	// === RECORDS BACKEND ===
	var client records.Client = s.db
	if cfg.Backend.Kind == config.BackendRemote {
		rc, err := remote.New(remote.Config{
			BaseURL:   cfg.Backend.BaseURL,
			ProjectID: cfg.Backend.ProjectID,
			PublicKey: cfg.Backend.PublicKey,
			Timeout:   cfg.Backend.Timeout,
		})
		if err != nil {
			return fmt.Errorf("creating records client: %w", err)
		}
		client = rc
	}

	// === AUTH ===
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	s.tokens = tokens
	if cfg.GitHub.Enabled() {
		s.github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	}
	s.auth = service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.logger)

	// === PENS ===
	s.pens = service.NewPenService(client, notify.NewContextNotifier(s.logger), s.logger)

	if cfg.Thumbs.Enabled {
		s.browser = thumbnail.NewRodRenderer(cfg.Thumbs.ChromeBin)
		s.worker = thumbnail.NewWorker(s.browser, s.pens, cfg.Thumbs.Dir, s.logger)
		if err := s.worker.Start(); err != nil {
			return fmt.Errorf("starting thumbnail worker: %w", err)
		}
		s.pens.OnSaved(s.worker.PenSaved)
	}

	// === ROUTES ===
	access, err := routes.LoadAccessConfig()
	if err != nil {
		return fmt.Errorf("loading route access: %w", err)
	}
	s.access = access

	if err := s.setupRoutes(); err != nil {
		return fmt.Errorf("setting up routes: %w", err)
	}
	return nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// Pages come from routes.Table (see routes.yaml for who may open them):
//
//	GET       /, /trending, /search           → listings (HTML)
//	GET|POST  /editor, /editor/{id}           → editor (HTML form)
//	GET|POST  /pen/{id}                       → pen page, like/delete buttons
//	GET|POST  /login, /signup                 → email/password auth
//	GET       /callback                       → GitHub OAuth callback
//	GET|POST  /prompt-password/..., /reset-password/...
//	*                                         → not found page
//
// Everything else is registered here:
//
//	GET    /static/*                  → embedded CSS and JS
//	GET    /thumbnails/*              → rendered pen thumbnails
//	GET    /auth/github/login         → start GitHub OAuth
//	POST   /auth/logout               → clear the session
//	GET    /api/pens                  → newest pens
//	GET    /api/pens/trending         → most popular pens
//	GET    /api/pens/search           → search
//	GET    /api/pens/{id}             → one pen
//	POST   /api/pens/{id}/like        → like
//	POST   /api/pens/{id}/view        → count a view
//	POST   /api/auth/password-reset   → request a reset link
//	POST   /api/pens                  → create    (auth)
//	PUT    /api/pens/{id}             → update    (auth)
//	DELETE /api/pens/{id}             → delete    (auth)
//	GET    /api/me                    → profile   (auth)
//	POST   /api/run                   → run JS    (auth, rate limited)
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns a unique ID to each request (for tracing)
// 2. RealIP: extracts the real client IP from proxy headers (TRUST_PROXY only)
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger: logs each request with timing info
// 5. OptionalAuth: puts the signed-in user ID in the context
// 6. notify.Middleware: collects toasts and restores flashed ones
func (s *Server) setupRoutes() error {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	if s.config.TrustProxy {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(auth.OptionalAuth(s.tokens))
	s.router.Use(notify.Middleware)

	// === Static Files ===
	s.router.Handle("/static/*", http.StripPrefix("/static/", web.Static()))
	s.router.Handle(thumbnail.URLPrefix+"*",
		http.StripPrefix(thumbnail.URLPrefix, http.FileServer(http.Dir(s.config.Thumbs.Dir))))

	// === Handlers ===
	views := web.NewViews()
	render := handler.NewRenderer(views, s.auth, s.config.AppID, s.github != nil, s.logger)

	runner := handler.NewExecuteHandler(s.exec, s.logger)
	pages := handler.NewPageHandler(s.pens, render, runner.Enabled(), s.logger)
	pens := handler.NewPenHandler(s.pens, s.auth, s.logger)
	authHandler := handler.NewAuthHandler(s.auth, s.github, render, handler.CookieConfig{
		TTL:    s.tokens.TTL(),
		Secure: s.config.Auth.CookieSecure,
	}, s.logger)

	// === Page Routes ===
	pageHandlers := map[string]func(routes.Route) http.Handler{
		routes.ViewHome:           pages.Home,
		routes.ViewTrending:       pages.Trending,
		routes.ViewSearch:         pages.Search,
		routes.ViewEditor:         pages.Editor,
		routes.ViewPen:            pages.Pen,
		routes.ViewNotFound:       pages.NotFound,
		routes.ViewLogin:          authHandler.Login,
		routes.ViewSignup:         authHandler.Signup,
		routes.ViewCallback:       authHandler.Callback,
		routes.ViewError:          authHandler.ErrorPage,
		routes.ViewPromptPassword: authHandler.PromptPassword,
		routes.ViewResetPassword:  authHandler.ResetPassword,
	}

	for _, route := range routes.Table(s.access) {
		newHandler, ok := pageHandlers[route.View]
		if !ok || !views.Has(route.View) {
			return fmt.Errorf("no page for view %q", route.View)
		}
		h := routes.Gate(route, signedIn)(newHandler(route))

		if route.Path == routes.CatchAll {
			s.router.NotFound(h.ServeHTTP)
			continue
		}
		s.router.Method(http.MethodGet, route.Pattern(), h)
		s.router.Method(http.MethodHead, route.Pattern(), h)
		if formViews[route.View] {
			s.router.Method(http.MethodPost, route.Pattern(), h)
		}
	}

	s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
	s.router.Post("/auth/logout", authHandler.HandleLogout)

	// === API Routes ===
	// The handler never touches the database directly, and the service
	// never touches HTTP.
	limiter := middleware.NewRateLimiter(s.config.Runner.Rate, s.config.Runner.Burst,
		middleware.ByUser(auth.UserIDFromContext), s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/pens", pens.HandleList)
		r.Get("/pens/trending", pens.HandleTrending)
		r.Get("/pens/search", pens.HandleSearch)
		r.Get("/pens/{id}", pens.HandleGetByID)
		r.Post("/pens/{id}/like", pens.HandleLike)
		r.Post("/pens/{id}/view", pens.HandleView)
		r.Post("/auth/password-reset", authHandler.HandlePasswordReset)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.tokens))

			r.Post("/pens", pens.HandleCreate)
			r.Put("/pens/{id}", pens.HandleUpdate)
			r.Delete("/pens/{id}", pens.HandleDelete)
			r.Get("/me", authHandler.HandleMe)
			r.With(limiter.Handler).Post("/run", runner.HandleExecute)
		})
	})

	return nil
}

// formViews are the pages that accept a form POST.
var formViews = map[string]bool{
	routes.ViewEditor:         true,
	routes.ViewPen:            true,
	routes.ViewLogin:          true,
	routes.ViewSignup:         true,
	routes.ViewPromptPassword: true,
	routes.ViewResetPassword:  true,
}

func signedIn(r *http.Request) bool {
	_, ok := auth.UserIDFromContext(r.Context())
	return ok
}

// Handler returns the root handler, traced with otelhttp.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close stops the thumbnail worker and closes the browser and database.
// The executor belongs to the caller.
func (s *Server) Close() error {
	var errs []error
	if s.worker != nil {
		s.worker.Stop()
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop background work and close the database (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing server resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // runs can take the executor timeout plus container startup
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("backend", s.config.Backend.Kind),
			slog.Bool("github", s.github != nil),
			slog.Bool("runner", s.exec != nil),
			slog.Bool("thumbnails", s.worker != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
