package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meetscribe/meeting-stream-service/internal/batch"
	"github.com/meetscribe/meeting-stream-service/internal/config"
	"github.com/meetscribe/meeting-stream-service/internal/dedup"
	"github.com/meetscribe/meeting-stream-service/internal/llm"
	"github.com/meetscribe/meeting-stream-service/internal/metrics"
	"github.com/meetscribe/meeting-stream-service/internal/server"
	"github.com/meetscribe/meeting-stream-service/internal/session"
	"github.com/meetscribe/meeting-stream-service/internal/transcription"
	"github.com/meetscribe/meeting-stream-service/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "meeting-stream-service"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Float64("target_duration", cfg.Audio.TargetDuration),
		slog.Float64("flush_window", cfg.Audio.FlushWindow),
		slog.Int("batch_min_chunks", cfg.Batch.MinChunks),
		slog.Float64("disconnect_timeout", cfg.Session.DisconnectTimeout),
		slog.String("dedup_backend", cfg.Dedup.Backend),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("llm_model", cfg.LLM.Model),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	transcriber, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
		Metrics:       appMetrics,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	completer, err := llm.NewClient(llm.Config{
		Endpoint: cfg.LLM.Endpoint,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create LLM client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ledger, err := buildLedger(cfg, logger)
	if err != nil {
		logger.Error("Failed to create dedup ledger", slog.String("error", err.Error()))
		os.Exit(1)
	}

	silence, err := vad.NewProcessor(cfg.Audio.SilenceRMS)
	if err != nil {
		logger.Error("Failed to create silence gate", slog.String("error", err.Error()))
		os.Exit(1)
	}

	relay := server.NewNotifierRelay()

	sessionMgr, err := session.NewManager(logger, cfg, session.Deps{
		Transcriber: transcriber,
		Attributor:  batch.NewAttributor(completer),
		Ledger:      ledger,
		Silence:     silence,
		Store:       session.NewMemoryStore(),
		Notifier:    relay,
		Integration: session.NewLogIntegration(logger),
		Metrics:     appMetrics,
	})
	if err != nil {
		logger.Error("Failed to create session manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session manager initialized",
		slog.Duration("disconnect_timeout", cfg.Session.GetDisconnectTimeout()),
		slog.Int("max_reconnections", cfg.Session.MaxReconnections),
		slog.Duration("retention", cfg.Session.GetRetention()),
	)

	gateway := server.NewGateway(logger, cfg, sessionMgr, appMetrics)
	relay.Bind(gateway)
	logger.Info("WebSocket gateway initialized")

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(logger, cfg, sessionMgr, gateway, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	if err := gateway.Start(); err != nil {
		logger.Error("Failed to start WebSocket gateway", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("ws_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests).
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
		shutdownCancel()
	}

	// Stop the gateway (drop client connections, which moves sessions to
	// the disconnected pool).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := gateway.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping WebSocket gateway", slog.String("error", err.Error()))
	}
	shutdownCancel()

	// Stop the session manager last.
	sessionMgr.Stop()

	if err := transcriber.Close(); err != nil {
		logger.Error("Error closing transcription client", slog.String("error", err.Error()))
	}
	if err := ledger.Close(); err != nil {
		logger.Error("Error closing dedup ledger", slog.String("error", err.Error()))
	}

	transcriptionStats := transcriber.GetStats()
	sessionStats := sessionMgr.GetStats()
	logger.Info("Final service statistics",
		slog.Uint64("transcription_requests", transcriptionStats.TotalRequests),
		slog.Float64("transcription_success_rate", transcriptionStats.SuccessRate),
		slog.Int("processed_meetings", sessionStats.Processed),
	)

	logger.Info("Service stopped")
}

// buildLedger selects the dedup backend from configuration
func buildLedger(cfg *config.Config, logger *slog.Logger) (dedup.Ledger, error) {
	switch cfg.Dedup.Backend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		logger.Info("Using redis dedup ledger",
			slog.String("addr", cfg.Dedup.RedisAddr),
			slog.Int("db", cfg.Dedup.RedisDB),
		)
		return dedup.NewRedisLedger(ctx, dedup.RedisConfig{
			Addr:       cfg.Dedup.RedisAddr,
			Password:   cfg.Dedup.RedisPassword,
			DB:         cfg.Dedup.RedisDB,
			RecentSize: cfg.Dedup.RecentSize,
			TTL:        cfg.Dedup.GetTTL(),
		})

	default:
		logger.Info("Using in-memory dedup ledger",
			slog.Int("recent_size", cfg.Dedup.RecentSize),
		)
		return dedup.NewMemoryLedger(cfg.Dedup.RecentSize), nil
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
