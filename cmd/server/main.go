// Package main provides the entry point for the strategy simulator server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/strategy-simulator/internal/api"
	"github.com/atlas-desktop/strategy-simulator/internal/config"
	"github.com/atlas-desktop/strategy-simulator/internal/data"
	"github.com/atlas-desktop/strategy-simulator/internal/repository"
	"github.com/atlas-desktop/strategy-simulator/internal/strategy"
	"github.com/atlas-desktop/strategy-simulator/internal/workers"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", ".", "Config file or directory")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := setupLogger(cfg.Log.Level)
	defer logger.Sync()

	logger.Info("Starting strategy simulator",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("provider", cfg.Data.Provider),
		zap.String("dataDir", cfg.Data.Dir),
		zap.Int("workers", cfg.Server.Workers),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, closeProvider, err := data.NewProvider(ctx, logger, cfg.ProviderConfig())
	if err != nil {
		logger.Fatal("Failed to initialize data provider", zap.Error(err))
	}
	defer func() {
		if err := closeProvider(); err != nil {
			logger.Error("Error closing data provider", zap.Error(err))
		}
	}()

	store, err := openResultStore(logger, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("Failed to initialize result store", zap.Error(err))
	}
	defer store.Close()

	poolCfg := workers.DefaultPoolConfig("simulations")
	poolCfg.NumWorkers = cfg.Server.Workers
	poolCfg.QueueSize = cfg.Server.QueueSize
	pool := workers.NewPool(logger, poolCfg)
	pool.Start()

	hub := api.NewHub(logger)
	go hub.Run(ctx)

	metrics := api.NewMetrics(hub.ClientCount)
	sims := api.NewSimulationManager(logger, provider, cfg.EngineOptions(), pool, store, hub, metrics)
	hub.SetCommandHandler(sims.HandleCommand)

	registry := strategy.NewStrategyRegistry(logger)

	server := api.NewServer(logger, cfg.ServerSettings(), api.Deps{
		Provider:    provider,
		Registry:    registry,
		Simulations: sims,
		Hub:         hub,
		Metrics:     metrics,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	settings := cfg.ServerSettings()
	logger.Info("Server started successfully",
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", settings.Host, settings.Port)),
		zap.String("ws", fmt.Sprintf("ws://%s:%d%s", settings.Host, settings.Port, settings.WebSocketPath)),
	)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	// Running simulations see a cancelled context and finish as cancelled.
	if err := pool.Stop(); err != nil {
		logger.Error("Error stopping worker pool", zap.Error(err))
	}
	cancel()

	logger.Info("Server stopped")
}

// openResultStore uses Postgres when a DSN is configured and memory otherwise
func openResultStore(logger *zap.Logger, dsn string) (repository.ResultStore, error) {
	if dsn == "" {
		logger.Info("No postgres DSN configured, keeping results in memory")
		return repository.NewMemoryStore(), nil
	}
	return repository.OpenPostgres(logger, dsn)
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
