package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/daverbj/solana-llm-integration/service/config"
	"github.com/daverbj/solana-llm-integration/service/db"
	"github.com/daverbj/solana-llm-integration/service/intent"
	"github.com/daverbj/solana-llm-integration/service/llm"
	"github.com/daverbj/solana-llm-integration/service/metrics"
	natspkg "github.com/daverbj/solana-llm-integration/service/nats"
	"github.com/daverbj/solana-llm-integration/service/server"
	"github.com/daverbj/solana-llm-integration/service/solana"
	"github.com/daverbj/solana-llm-integration/service/temporal"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// promhttp.Handler serves the default registry
	metricsCollector := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize Solana RPC client against one endpoint from the pool
	endpoint, err := solana.SelectRandomEndpoint(cfg.Endpoints())
	if err != nil {
		logger.Error("failed to select solana RPC endpoint", "error", err)
		os.Exit(1)
	}
	solanaClient := solana.NewClient(
		solana.NewRPCClient(endpoint),
		endpoint,
		metricsCollector,
		logger,
		solana.WithMaxAttempts(cfg.RPCMaxAttempts),
		solana.WithBackoff(cfg.Backoff()),
	)
	airdropper := solana.NewAirdropper(solanaClient, cfg.Airdrop(), metricsCollector, logger)
	logger.Info("initialized solana RPC client",
		"endpoint", endpoint,
		"pool_size", len(cfg.Endpoints()),
		"max_attempts", cfg.RPCMaxAttempts,
		"backoff", cfg.RPCBackoff,
	)

	// Initialize the completion client and intent extractor
	completer, err := llm.NewClient(llm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.OpenAITimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to create completion client", "error", err)
		os.Exit(1)
	}
	var resolver intent.Resolver = intent.NewExtractor(completer, metricsCollector, logger)
	logger.Info("initialized intent extractor", "model", cfg.OpenAIModel)

	// Optional intent cache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to ping redis", "error", err)
			os.Exit(1)
		}
		resolver = intent.NewCachedResolver(resolver, rdb, cfg.IntentCacheTTL, metricsCollector, logger)
		logger.Info("intent cache enabled", "ttl", cfg.IntentCacheTTL)
	}

	deps := server.Deps{
		Balances: solanaClient,
		Airdrops: airdropper,
		Resolver: resolver,
	}

	// Optional airdrop ledger
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		store := db.NewStore(dbPool, metricsCollector)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure database schema", "error", err)
			os.Exit(1)
		}
		deps.Ledger = store
		logger.Info("connected to database")
	}

	// Optional event publishing and streaming
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		deps.Publisher = publisher

		stream, err := server.NewSSEPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create SSE publisher", "error", err)
			os.Exit(1)
		}
		// closed by httpServer.Shutdown
		deps.Stream = stream
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	// Optional durable airdrops
	if cfg.TemporalHost != "" {
		temporalClient, err := temporal.NewClient(
			cfg.TemporalHost,
			cfg.TemporalNamespace,
			cfg.TemporalTaskQueue,
			logger,
		)
		if err != nil {
			logger.Error("failed to create temporal client", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()
		deps.Scheduler = temporalClient
		logger.Info("connected to temporal",
			"host", cfg.TemporalHost,
			"namespace", cfg.TemporalNamespace,
			"task_queue", cfg.TemporalTaskQueue,
		)
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, deps, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"ledger", deps.Ledger != nil,
		"events", deps.Publisher != nil,
		"durable_airdrops", deps.Scheduler != nil,
		"intent_cache", cfg.RedisURL != "",
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
