package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"beecount-worker-go/internal/api"
	"beecount-worker-go/internal/api/handlers"
	"beecount-worker-go/internal/config"
	"beecount-worker-go/internal/logging"
	"beecount-worker-go/internal/services"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg := config.Load()

	// Tee into Logdy when enabled
	log.Logger = log.Output(logging.Output(cfg, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}))

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	streams, err := config.LoadStreams(cfg.StreamsConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StreamsConfigPath).Msg("Failed to load stream configuration")
	}

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Int("streams", len(streams)).
		Dur("publish_period", cfg.PublishPeriod).
		Msg("Starting beecount worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := services.NewServiceContainer(ctx, cfg, streams)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	deps := api.Dependencies{
		Status: container.Manager,
		System: container.System,
	}
	if container.Journal != nil {
		deps.History = handlers.HistorySource(container.Journal)
	}
	if stats, ok := container.Publisher.(handlers.PublisherStatsSource); ok {
		deps.Publisher = stats
	}

	server := api.NewServer(cfg, deps)
	if err := server.Setup(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("API server stopped")
		}
	}()

	// Run the stream manager until a shutdown signal arrives
	if err := container.Manager.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Stream manager failed")
	}

	log.Info().Msg("Shutdown signal received")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := container.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Services shutdown incomplete")
	} else {
		log.Info().Msg("Shutdown complete")
	}
}
