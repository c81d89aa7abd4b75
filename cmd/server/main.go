package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"analyst-sandbox/internal/api"
	"analyst-sandbox/internal/config"
	"analyst-sandbox/internal/dataset"
	"analyst-sandbox/internal/monitor"
	"analyst-sandbox/internal/storage"
	"analyst-sandbox/internal/turn"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metrics and tracing
	metrics := monitor.NewMetrics()

	shutdownTracing, err := monitor.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("tracing unavailable, spans will be dropped")
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Error().Err(err).Msg("tracer shutdown error")
		}
	}()

	// Initialize database (optional, runs without it for development)
	var db *storage.DB
	if cfg.Database.DSN != "" {
		db, err = storage.New(ctx, cfg.Database.DSN, storage.Options{
			MaxConns:        cfg.Database.MaxConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, audit logging disabled")
			db = nil
		} else {
			defer db.Close()
		}
	}

	// Initialize audit writer (buffered, reliable logging)
	var recorder turn.Recorder
	if db != nil {
		auditWriter := storage.NewAuditWriter(db, cfg.Database.AuditBuffer)
		auditWriter.Start()
		defer auditWriter.Flush(10 * time.Second)
		recorder = auditWriter
	}

	processor, runner, err := turn.Build(cfg, metrics, recorder)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build sandbox")
	}

	// Create and start HTTP server
	server := api.NewServer(cfg, api.Deps{
		Processor: processor,
		Validator: processor.Validator(),
		Datasets:  dataset.NewStore(cfg.Sandbox.MaxDatasets),
		DB:        db,
		Runner:    runner,
		Metrics:   metrics,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := runner.Close(); err != nil {
			log.Error().Err(err).Msg("runner close error")
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Bool("db_enabled", db != nil).
		Bool("tracing", cfg.Tracing.Enabled).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}
