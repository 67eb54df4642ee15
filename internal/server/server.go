// Package server is the composition root: it builds the dependency graph,
// mounts the routes and runs the HTTP server.
//
// ROUTES:
//
//	GET    /health
//	POST   /api/auth/send-otp | verify-otp | register | login
//	GET    /api/auth/check-username?username=
//	GET    /api/auth/profile/{uniqueId}
//	GET    /api/auth/me                                  (auth)
//	PATCH  /api/auth/profile                             (auth)
//	GET    /api/social/users/search | users/suggested    (auth)
//	GET    /api/social/users/{userId}/profile | mutual-friends
//	POST   /api/social/friend-requests
//	GET    /api/social/friend-requests/pending | sent
//	PATCH  /api/social/friend-requests/{id}
//	DELETE /api/social/friend-requests/{id}
//	GET    /api/social/friends
//	DELETE /api/social/friends/{userId}
//	POST   /api/chat/direct/{userId}                     (auth)
//	GET    /api/chat/conversations
//	GET    /api/chat/conversations/{id}/messages
//	POST   /api/chat/conversations/{id}/messages
//	PATCH  /api/chat/conversations/{id}/read
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
	"github.com/go-chi/cors"

	"github.com/sakif/convoy/internal/auth"
	"github.com/sakif/convoy/internal/config"
	"github.com/sakif/convoy/internal/email"
	"github.com/sakif/convoy/internal/handler"
	"github.com/sakif/convoy/internal/middleware"
	sqliteRepo "github.com/sakif/convoy/internal/repository/sqlite"
	"github.com/sakif/convoy/internal/service"
)

// Server owns the database and the router. The database is closed when
// Start returns.
type Server struct {
	router chi.Router
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	otp    *service.OTPService
}

// New opens the database and wires every layer on top of it.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sender := email.NewResendSender(cfg.ResendAPIKey, cfg.ResendBaseURL, cfg.OTPFromEmail)

	s, err := newServer(cfg, logger, db, sender)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// newServer wires the graph on an already open database. Tests call it with
// an in-memory database and a fake sender.
func newServer(cfg *config.Config, logger *slog.Logger, db *sqliteRepo.DB, sender email.Sender) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	otp := service.NewOTPService(db, sender, service.OTPOptions{Bypass: cfg.BypassOTP}, logger)
	authSvc := service.NewAuthService(db, otp, tokens, passwords, logger)
	socialSvc := service.NewSocialService(db, db, db, logger)
	chatSvc := service.NewChatService(db, db, socialSvc, logger)

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		otp:    otp,
	}
	s.routes(
		handler.NewHealthHandler(db, logger),
		handler.NewAuthHandler(authSvc, otp, logger),
		handler.NewSocialHandler(socialSvc, logger),
		handler.NewChatHandler(chatSvc, logger),
		auth.RequireAuth(tokens, authSvc, logger),
	)
	return s, nil
}

func (s *Server) routes(
	health *handler.HealthHandler,
	authH *handler.AuthHandler,
	social *handler.SocialHandler,
	chat *handler.ChatHandler,
	requireAuth func(http.Handler) http.Handler,
) {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(chimiddleware.Timeout(s.config.RequestTimeout))

	r.Get("/health", health.HandleHealth)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/send-otp", authH.HandleSendOTP)
		r.Post("/verify-otp", authH.HandleVerifyOTP)
		r.Post("/register", authH.HandleRegister)
		r.Post("/login", authH.HandleLogin)
		r.Get("/check-username", authH.HandleCheckUsername)
		r.Get("/profile/{uniqueId}", authH.HandleProfileByUniqueID)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", authH.HandleMe)
			r.Patch("/profile", authH.HandleUpdateProfile)
		})
	})

	r.Route("/api/social", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/users/search", social.HandleSearch)
		r.Get("/users/suggested", social.HandleSuggested)
		r.Get("/users/{userId}/profile", social.HandleProfile)
		r.Get("/users/{userId}/mutual-friends", social.HandleMutualFriends)

		r.Post("/friend-requests", social.HandleSendRequest)
		r.Get("/friend-requests/pending", social.HandleListReceived)
		r.Get("/friend-requests/sent", social.HandleListSent)
		r.Patch("/friend-requests/{id}", social.HandleRespond)
		r.Delete("/friend-requests/{id}", social.HandleCancel)

		r.Get("/friends", social.HandleListFriends)
		r.Delete("/friends/{userId}", social.HandleRemoveFriend)
	})

	r.Route("/api/chat", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/direct/{userId}", chat.HandleOpenDirect)
		r.Get("/conversations", chat.HandleListConversations)
		r.Get("/conversations/{id}/messages", chat.HandleListMessages)
		r.Post("/conversations/{id}/messages", chat.HandleSendMessage)
		r.Patch("/conversations/{id}/read", chat.HandleMarkRead)
	})
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// purgeOTPs deletes expired challenges every interval until ctx is done.
func (s *Server) purgeOTPs(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.otp.PurgeExpired(ctx)
			if err != nil {
				s.logger.Error("otp cleanup failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.logger.Info("expired otp challenges purged", slog.Int64("count", n))
			}
		}
	}
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.config.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.purgeOTPs(ctx, s.config.OTPCleanupInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DBPath),
			slog.Bool("otpBypass", s.config.BypassOTP),
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

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
