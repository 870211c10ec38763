package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal     *prometheus.CounterVec
	solanaRPCCallDuration   *prometheus.HistogramVec
	solanaRPCRetries        *prometheus.CounterVec
	solanaRPCExhaustedTotal *prometheus.CounterVec

	// Airdrop Metrics
	airdropsTotal          *prometheus.CounterVec
	airdropDuration        *prometheus.HistogramVec
	airdropLamportsGranted prometheus.Counter

	// Intent Metrics
	intentExtractionsTotal *prometheus.CounterVec
	completionCallDuration *prometheus.HistogramVec
	intentCacheTotal       *prometheus.CounterVec

	// Temporal Metrics
	activityDuration *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		solanaRPCExhaustedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_exhausted_total",
				Help: "Total number of Solana RPC calls that failed every retry attempt",
			},
			[]string{"method", "endpoint"},
		),

		// Airdrop Metrics
		airdropsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airdrops_total",
				Help: "Total number of airdrop requests by outcome and failing stage",
			},
			[]string{"outcome", "stage"},
		),
		airdropDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "airdrop_duration_seconds",
				Help:    "End-to-end duration of airdrop requests in seconds",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		airdropLamportsGranted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "airdrop_lamports_granted_total",
				Help: "Total lamports credited by confirmed airdrops",
			},
		),

		// Intent Metrics
		intentExtractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intent_extractions_total",
				Help: "Total number of intent extractions by outcome (parsed, repaired, failed)",
			},
			[]string{"outcome"},
		),
		completionCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "completion_call_duration_seconds",
				Help:    "Duration of text-completion calls in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage", "status"},
		),
		intentCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intent_cache_lookups_total",
				Help: "Total number of intent cache lookups by result",
			},
			[]string{"result"},
		),

		// Temporal Metrics
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "temporal_activity_duration_seconds",
				Help:    "Duration of Temporal activity executions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"activity", "status"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 10, 30},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordRPCExhausted records a call that failed on every attempt.
func (m *Metrics) RecordRPCExhausted(method, endpoint string) {
	m.solanaRPCExhaustedTotal.WithLabelValues(method, endpoint).Inc()
}

// Airdrop metric helpers

// RecordAirdrop records the outcome of an airdrop request.
// stage is empty for successful airdrops.
func (m *Metrics) RecordAirdrop(outcome, stage string, duration float64) {
	m.airdropsTotal.WithLabelValues(outcome, stage).Inc()
	m.airdropDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordLamportsGranted adds the confirmed balance delta of an airdrop.
func (m *Metrics) RecordLamportsGranted(lamports int64) {
	if lamports > 0 {
		m.airdropLamportsGranted.Add(float64(lamports))
	}
}

// Intent metric helpers

// RecordIntentExtraction records an extraction outcome: parsed, repaired or failed.
func (m *Metrics) RecordIntentExtraction(outcome string) {
	m.intentExtractionsTotal.WithLabelValues(outcome).Inc()
}

// RecordCompletionCall records a text-completion call for the given stage (extract or repair).
func (m *Metrics) RecordCompletionCall(stage, status string, duration float64) {
	m.completionCallDuration.WithLabelValues(stage, status).Observe(duration)
}

// RecordIntentCache records a cache lookup result: hit, miss or error.
func (m *Metrics) RecordIntentCache(result string) {
	m.intentCacheTotal.WithLabelValues(result).Inc()
}

// Temporal metric helpers

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, err error, duration float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.activityDuration.WithLabelValues(activity, status).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
