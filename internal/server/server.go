// Package server is the composition root: it opens the stores, builds the
// services and handlers, and mounts them on a chi router.
//
// DEPENDENCY FLOW:
//
//	config.Config
//	  → sqlite.DB (profiles, entries, votes)     ─┐
//	  → storage.Disk (entry images)               ├→ services → handlers → routes
//	  → leaderboard.Reader (external points DB)  ─┘
//	  → auth.TokenService (verifier, session issuer)
//
// Each layer only sees the interface it needs. The handler never touches a
// store; the service never touches HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/sakif/ecochallenge/internal/auth"
	"github.com/sakif/ecochallenge/internal/config"
	"github.com/sakif/ecochallenge/internal/handler"
	"github.com/sakif/ecochallenge/internal/leaderboard"
	"github.com/sakif/ecochallenge/internal/metrics"
	"github.com/sakif/ecochallenge/internal/middleware"
	sqliteRepo "github.com/sakif/ecochallenge/internal/repository/sqlite"
	"github.com/sakif/ecochallenge/internal/service"
	"github.com/sakif/ecochallenge/internal/storage"
)

var (
	_ handler.ProfileService    = (*service.ProfileService)(nil)
	_ handler.EntryService      = (*service.EntryService)(nil)
	_ handler.VoteService       = (*service.VoteService)(nil)
	_ handler.AuthService       = (*service.AuthService)(nil)
	_ handler.LeaderboardReader = (*leaderboard.Reader)(nil)
	_ handler.GitHubOAuth       = (*auth.GitHubProvider)(nil)
	_ handler.Pinger            = (*sqliteRepo.DB)(nil)
)

// shutdownTimeout bounds how long in-flight requests get after a stop signal.
const shutdownTimeout = 30 * time.Second

// Server owns the HTTP router and every resource that must be closed on
// shutdown.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	db       *sqliteRepo.DB
	points   *gorm.DB // nil when the leaderboard is not configured
	objects  *storage.Disk
	verifier auth.Verifier // nil when auth is disabled
	tokens   *auth.TokenService
}

// New opens every store named in cfg and wires the routes.
//
// The points database is not contacted here. While it is unreachable each
// leaderboard read degrades to an empty board; a malformed DSN is logged once
// and leaves the leaderboard unconfigured.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	objects, err := storage.NewDisk(cfg.UploadDir, cfg.PublicBaseURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening upload dir: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
		db:      db,
		objects: objects,
	}

	if cfg.AuthEnabled() {
		tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating token service: %w", err)
		}
		// Assigned only here: a typed nil *TokenService in the interface
		// would not compare equal to nil in the middleware.
		s.tokens = tokens
		s.verifier = tokens
	} else {
		logger.Warn("jwt_secret not set, authenticated routes will return 401")
	}

	if cfg.LeaderboardDSN != "" {
		points, err := leaderboard.Open(cfg.LeaderboardDSN)
		if err != nil {
			logger.Warn("leaderboard dsn rejected, serving empty leaderboard",
				slog.String("error", err.Error()),
			)
		} else {
			s.points = points
		}
	}

	s.setupRoutes()
	return s, nil
}

// Handler returns the root handler. Tests drive it with httptest.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes mounts every endpoint.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                     → store ping
//	GET    /metrics                     → Prometheus exposition
//	GET    /uploads/*                   → entry images
//	GET    /auth/github/login           → GitHub redirect          (GitHub configured)
//	GET    /auth/github/callback        → session cookie           (GitHub configured)
//	POST   /auth/logout                 → clear cookie
//	GET    /api/profiles/{id}           → public profile
//	GET    /api/usernames/{username}    → availability
//	GET    /api/entries                 → feed page, voted flags when signed in
//	GET    /api/leaderboard             → points ranking
//	GET    /api/me                      → own profile, created on first call   [auth]
//	GET    /api/profile                 → own profile                          [auth]
//	PUT    /api/profile                 → partial update                       [auth]
//	GET    /api/entries/mine            → own entry                            [auth]
//	POST   /api/entries                 → multipart submit                     [auth]
//	DELETE /api/entries/{id}            → delete own entry                     [auth]
//	GET    /api/entries/{id}/vote       → has voted                            [auth]
//	POST   /api/entries/{id}/vote       → vote                                 [auth]
//
// MIDDLEWARE ORDER:
// RequestID first so every later layer can log it, Recoverer last so a panic
// still passes back through the logger and metrics as a 500.
func (s *Server) setupRoutes() {
	cfg := s.config

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	// === Services ===
	profileService := service.NewProfileService(s.db, s.logger, s.metrics)
	entryService := service.NewEntryService(s.db, s.objects, cfg.MaxUploadBytes, s.logger, s.metrics)
	voteService := service.NewVoteService(s.db, s.logger, s.metrics)
	authService := service.NewAuthService(profileService, s.issuer(), s.logger)
	board := leaderboard.NewReader(s.points, cfg.LeaderboardDenylist, s.logger, s.metrics)

	// === Handlers ===
	profileHandler := handler.NewProfileHandler(profileService, authService, s.logger)
	entryHandler := handler.NewEntryHandler(entryService, voteService, handler.EntryHandlerConfig{
		MaxUploadBytes:    cfg.MaxUploadBytes,
		FeedPageSize:      cfg.FeedPageSize,
		EcosystemPageSize: cfg.EcosystemPageSize,
	}, s.logger)
	voteHandler := handler.NewVoteHandler(voteService, s.logger)
	leaderboardHandler := handler.NewLeaderboardHandler(board, cfg.LeaderboardLimit)
	healthHandler := handler.NewHealthHandler(s.db)

	// === Operational ===
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	// === Entry images ===
	// GET /uploads/entries/<uuid>.png → {UploadDir}/entries/<uuid>.png
	fileServer := http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.objects.Root())))
	s.router.Handle("/uploads/*", noDirectoryListing(fileServer))

	// === GitHub login ===
	if cfg.GitHubEnabled() && s.tokens != nil {
		gh := auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
		authHandler := handler.NewAuthHandler(gh, authService, s.tokens.TTL(), s.logger)
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
		s.router.Post("/auth/logout", authHandler.HandleLogout)
	} else {
		// Logout only clears a cookie and is safe to offer regardless.
		authHandler := handler.NewAuthHandler(nil, authService, 0, s.logger)
		s.router.Post("/auth/logout", authHandler.HandleLogout)
	}

	// === API ===
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/profiles/{id}", profileHandler.HandleGetPublic)
		r.Get("/usernames/{username}", profileHandler.HandleUsernameFree)
		r.With(auth.OptionalAuth(s.verifier)).Get("/entries", entryHandler.HandleList)
		r.Get("/leaderboard", leaderboardHandler.HandleTop)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.verifier))

			r.Get("/me", profileHandler.HandleMe)
			r.Get("/profile", profileHandler.HandleGetOwn)
			r.Put("/profile", profileHandler.HandleUpdate)

			r.Get("/entries/mine", entryHandler.HandleMine)
			r.Post("/entries", entryHandler.HandleSubmit)
			r.Delete("/entries/{id}", entryHandler.HandleDelete)

			r.Get("/entries/{id}/vote", voteHandler.HandleHasVoted)
			r.Post("/entries/{id}/vote", voteHandler.HandleVote)
		})
	})
}

// issuer returns the session issuer, or nil when auth is disabled. Login is
// never routed in that case.
func (s *Server) issuer() service.TokenIssuer {
	if s.tokens == nil {
		return nil
	}
	return s.tokens
}

// noDirectoryListing hides the object store's directory structure.
func noDirectoryListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Give in-flight requests shutdownTimeout to finish
//  3. Close the stores (flushes the SQLite WAL, releases the file lock)
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:    s.config.Addr,
		Handler: s.router,
		// Uploads of a few MB over slow links need more than the usual 15s.
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", s.config.Addr),
			slog.String("database", s.config.DBPath),
			slog.String("uploads", s.config.UploadDir),
			slog.Bool("auth", s.verifier != nil),
			slog.Bool("leaderboard", s.points != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close releases the stores. Safe to call once after New.
func (s *Server) Close() error {
	var errs []error
	if s.points != nil {
		if sqlDB, err := s.points.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}
