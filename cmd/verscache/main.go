package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chronomint/verscache/internal/codec"
	"github.com/chronomint/verscache/internal/config"
	"github.com/chronomint/verscache/internal/handler"
	"github.com/chronomint/verscache/internal/metrics"
	"github.com/chronomint/verscache/internal/middleware"
	"github.com/chronomint/verscache/internal/model"
	"github.com/chronomint/verscache/internal/server"
	"github.com/chronomint/verscache/internal/service"
	"github.com/chronomint/verscache/internal/validation"
	"github.com/chronomint/verscache/internal/versionedlog"
	pebblelog "github.com/chronomint/verscache/internal/versionedlog/pebble"
	sqlitelog "github.com/chronomint/verscache/internal/versionedlog/sqlite"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("backend", cfg.Log.Backend),
		zap.String("path", cfg.Log.Path),
		zap.Strings("kinds", cfg.Entities.Kinds),
		zap.Int("port", cfg.Server.Port))

	// Open the versioned log backend
	log, err := openLog(cfg.Log, logger)
	if err != nil {
		logger.Fatal("Failed to open versioned log", zap.Error(err))
	}
	defer log.Close()

	// Build the closed kind registry: one JSON codec per declared kind
	registry := codec.NewRegistry()
	for _, kind := range cfg.Entities.Kinds {
		if err := registry.Register(model.Kind(kind), codec.RawJSON()); err != nil {
			logger.Fatal("Failed to register entity kind", zap.String("kind", kind), zap.Error(err))
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics()
	}

	cache := service.NewSnapshotCache(
		log,
		registry,
		&service.SnapshotCacheConfig{
			MaxParallelResolve: cfg.Cache.MaxParallelResolve,
		},
		m,
		logger,
	)

	validator := validation.NewValidator(registry)
	queryHandler := handler.NewQueryHandler(cache, validator, logger, cfg.Server.RequestTimeout)

	router := mux.NewRouter()
	queryHandler.Register(router)
	router.Use(
		middleware.RequestID,
		middleware.Logging(logger),
		middleware.Recovery(logger),
		middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = server.NewMetricsServer(cfg.Metrics.Port, m, logger)
		metricsServer.Start()
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if metricsServer != nil {
			if err := metricsServer.Stop(ctx); err != nil {
				logger.Error("Failed to stop metrics server", zap.Error(err))
			}
		}
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("Failed to shut down HTTP server", zap.Error(err))
		}
	}()

	logger.Info("Snapshot cache server starting", zap.String("address", httpServer.Addr))

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Failed to serve", zap.Error(err))
	}
}

// openLog opens the configured versioned log backend
func openLog(cfg config.LogConfig, logger *zap.Logger) (versionedlog.Log, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return sqlitelog.Open(cfg.Path, logger)
	case config.BackendPebble:
		return pebblelog.Open(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}

// initLogger initializes the zap logger from logging config
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
