// Maumtalk - AI Counseling Chat Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/maumtalk/counseling-server/internal/api"
	"github.com/maumtalk/counseling-server/internal/chat"
	"github.com/maumtalk/counseling-server/internal/config"
	"github.com/maumtalk/counseling-server/internal/identity"
	"github.com/maumtalk/counseling-server/internal/middleware"
	"github.com/maumtalk/counseling-server/internal/openrouter"
	"github.com/maumtalk/counseling-server/internal/store"
	"github.com/maumtalk/counseling-server/internal/stream"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	seeded, err := repo.SeedCounselors(context.Background(), store.DefaultCounselors())
	if err != nil {
		slog.Error("Failed to seed counselors", "error", err)
		os.Exit(1)
	}
	if seeded > 0 {
		slog.Info("Counselor personas seeded", "count", seeded)
	}

	// Initialize services.
	gateway := openrouter.NewClient(cfg.OpenRouter, cfg.Chat, logger)

	transcript, err := chat.NewTranscript(cfg.Transcript, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript writer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcript.Close(); closeErr != nil {
			slog.Error("Failed to close transcript writer", "error", closeErr)
		}
	}()

	hub := stream.NewHub()
	chatSvc := chat.NewService(repo, gateway, cfg.Chat, transcript, hub, logger)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, chatSvc)
	healthHandler := api.NewHealthHandler(repo)
	counselorHandler := api.NewCounselorHandler(baseHandler)
	sessionHandler := api.NewSessionHandler(baseHandler, cfg.Chat.TitleMaxLength)
	wsHandler := stream.NewWebSocketHandler(repo, hub, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// All routes use identity middleware (no auth needed).
	counselorHandler.RegisterRoutes(r)
	sessionHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/sessions/{sessionID}", wsHandler.ServeHTTP)

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // gateway calls can take up to the full request timeout
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
