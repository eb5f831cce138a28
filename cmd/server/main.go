package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cognivia/exam-engine/internal/config"
	"github.com/cognivia/exam-engine/internal/database"
	"github.com/cognivia/exam-engine/internal/handler"
	"github.com/cognivia/exam-engine/internal/logger"
	"github.com/cognivia/exam-engine/internal/router"
	"github.com/cognivia/exam-engine/internal/session"
	"github.com/cognivia/exam-engine/internal/store"
	"github.com/cognivia/exam-engine/internal/upstream"
	"github.com/cognivia/exam-engine/internal/validator"
	"github.com/cognivia/exam-engine/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Exam Engine")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Upstream Platform Client ──────────────────────────────────────
	client := upstream.NewHTTPClient(cfg.UpstreamBaseURL, cfg.UpstreamAPIKey, cfg.UpstreamTimeout)

	// ─── Attempt Snapshot Store ────────────────────────────────────────
	snapshots := store.NewRedisStore(rdb)

	// ─── Finalize Retry Worker ─────────────────────────────────────────
	finalizeWorker := worker.NewFinalizeWorker(client, rdb, log)

	// ─── Session Registry ──────────────────────────────────────────────
	registry := session.NewRegistry(client, snapshots, finalizeWorker, session.Options{
		MinSectionTime: time.Duration(cfg.MinSectionSeconds) * time.Second,
		MinTestTime:    time.Duration(cfg.MinTestSeconds) * time.Second,
		TimeWarning:    cfg.TestTimeWarning,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(registry, log),
		WS:      handler.NewWSHandler(registry, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	go finalizeWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop attempt clocks. Snapshots keep attempts resumable.
	registry.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow the worker to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
