package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daverbj/solana-llm-integration/service/chat"
	"github.com/daverbj/solana-llm-integration/service/config"
	"github.com/daverbj/solana-llm-integration/service/db"
	"github.com/daverbj/solana-llm-integration/service/intent"
	"github.com/daverbj/solana-llm-integration/service/metrics"
	natspkg "github.com/daverbj/solana-llm-integration/service/nats"
	"github.com/daverbj/solana-llm-integration/service/solana"
	"github.com/daverbj/solana-llm-integration/service/temporal"
)

// AirdropLedger records completed airdrops and lists them.
type AirdropLedger interface {
	RecordAirdrop(ctx context.Context, result *solana.AirdropResult, source string) (*db.Airdrop, error)
	ListAirdropsByAddress(ctx context.Context, params db.ListAirdropsParams) ([]*db.Airdrop, error)
}

// EventPublisher publishes completed airdrops.
type EventPublisher interface {
	PublishAirdrop(ctx context.Context, event *natspkg.AirdropEvent) error
}

// Deps are the components the server dispatches to. Balances, Airdrops and
// Resolver are required; the rest are optional and disable their routes when nil.
type Deps struct {
	Balances  chat.BalanceReader
	Airdrops  chat.AirdropRequester
	Resolver  intent.Resolver
	Ledger    AirdropLedger
	Publisher EventPublisher
	Scheduler temporal.AirdropScheduler
	Stream    *SSEPublisher
}

// Server represents the HTTP server for the wallet assistant.
type Server struct {
	addr      string
	cfg       *config.Config
	deps      Deps
	assistant *chat.Assistant
	recorder  *airdropRecorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, deps Deps, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:      addr,
		cfg:       cfg,
		deps:      deps,
		assistant: chat.NewAssistant(deps.Resolver, deps.Balances, deps.Airdrops, cfg.AirdropDefaultSOL, logger),
		recorder: &airdropRecorder{
			ledger:    deps.Ledger,
			publisher: deps.Publisher,
			logger:    logger,
		},
		metrics: m,
		logger:  logger,
	}
}

// Handler builds the routed and wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Wallet routes
	mux.Handle("GET /api/v1/balance/{address}", s.instrument("/api/v1/balance", handleGetBalance(s.deps.Balances, s.logger)))
	mux.Handle("POST /api/v1/airdrop", s.instrument("/api/v1/airdrop", handleRequestAirdrop(s.deps.Airdrops, s.recorder, s.cfg, s.logger)))

	// Natural-language routes
	mux.Handle("POST /api/v1/intent", s.instrument("/api/v1/intent", handleResolveIntent(s.deps.Resolver, s.logger)))
	mux.Handle("POST /api/v1/chat", s.instrument("/api/v1/chat", handleChat(s.assistant, s.recorder, s.logger)))

	// Airdrop history (if ledger is configured)
	if s.deps.Ledger != nil {
		mux.Handle("GET /api/v1/airdrops", s.instrument("/api/v1/airdrops", handleListAirdrops(s.deps.Ledger, s.logger)))
		s.logger.Info("airdrop ledger endpoints enabled")
	} else {
		s.logger.Warn("airdrop ledger not configured, history endpoint disabled")
	}

	// Durable airdrops (if temporal is configured)
	if s.deps.Scheduler != nil {
		mux.Handle("POST /api/v1/airdrop-workflows", s.instrument("/api/v1/airdrop-workflows", handleStartAirdropWorkflow(s.deps.Scheduler, s.cfg, s.logger)))
		mux.Handle("GET /api/v1/airdrop-workflows/{workflow_id}", s.instrument("/api/v1/airdrop-workflows/{id}", handleGetAirdropWorkflow(s.deps.Scheduler, s.logger)))
		s.logger.Info("airdrop workflow endpoints enabled")
	} else {
		s.logger.Warn("temporal not configured, airdrop workflow endpoints disabled")
	}

	// SSE streaming endpoints (if SSE publisher is configured)
	if s.deps.Stream != nil {
		mux.Handle("GET /api/v1/stream/airdrops/{address}", handleStreamAirdrops(s.deps.Stream, s.logger))
		mux.Handle("GET /api/v1/stream/airdrops", handleStreamAirdrops(s.deps.Stream, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(requestIDMiddleware(s.logger, mux))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute, // airdrops wait for confirmation
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.deps.Stream != nil {
		s.deps.Stream.Close()
	}

	// Then shutdown HTTP server
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Pass through to next handler
		next.ServeHTTP(w, r)
	})
}

type loggerKey struct{}

// requestIDMiddleware tags each request with an ID, echoes it in the
// X-Request-ID header and attaches it to the request's logger.
func requestIDMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		reqLogger := logger.With("request_id", id)
		ctx := context.WithValue(r.Context(), loggerKey{}, reqLogger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger returns the request-scoped logger, or fallback outside the middleware.
func requestLogger(r *http.Request, fallback *slog.Logger) *slog.Logger {
	if l, ok := r.Context().Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}
