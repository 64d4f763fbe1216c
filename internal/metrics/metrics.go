// Package metrics holds the Prometheus collectors of the storefront
// recommendation service. Collectors register with the default registry at
// package init and are served by promhttp on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recommendation Metrics
	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_requests_total",
			Help: "Recommendation requests by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	RecommendFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_fallbacks_total",
			Help: "Requests answered by a fallback signal (popularity or empty list)",
		},
		[]string{"kind"},
	)

	RecommendRejectedScores = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommend_rejected_scores_total",
			Help: "Computed scores rejected as NaN, infinite or negative",
		},
	)

	// Matrix Metrics
	MatrixRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_matrix_rebuilds_total",
			Help: "Co-occurrence matrix rebuilds by outcome",
		},
		[]string{"outcome"},
	)

	MatrixRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommend_matrix_rebuild_duration_seconds",
			Help:    "Time to read the order corpus and rebuild the matrix",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	MatrixPairs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recommend_matrix_pairs",
			Help: "Unordered product pairs in the published matrix",
		},
	)

	MatrixCorpusOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recommend_matrix_corpus_orders",
			Help: "Eligible orders read for the published matrix",
		},
	)

	MatrixStaleServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommend_matrix_stale_served_total",
			Help: "Reads answered from a stale snapshot while a rebuild was pending",
		},
	)

	// Store Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "store_circuit_breaker_state",
			Help: "Store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_circuit_breaker_requests_total",
			Help: "Store calls through the circuit breaker by result",
		},
		[]string{"name", "result"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_circuit_breaker_transitions_total",
			Help: "Store circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// Outcome labels for RecommendRequests.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// ObserveRequest records one recommendation call.
func ObserveRequest(kind string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	RecommendRequests.WithLabelValues(kind, outcome).Inc()
}

// GinMiddleware records request counts and latency per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		APIRequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		APIRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
