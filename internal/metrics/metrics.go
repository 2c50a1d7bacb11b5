package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// WebhookEvents counts telephony webhook deliveries by event type and result.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_webhook_events_total",
			Help: "Telephony webhook events received",
		},
		[]string{"event", "result"},
	)

	// Verdicts counts screening verdicts, including classifier fallbacks.
	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_verdicts_total",
			Help: "Screening verdicts produced",
		},
		[]string{"verdict", "source"},
	)

	// ActionOutcomes counts terminate/transfer results.
	ActionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_action_outcomes_total",
			Help: "Outbound call control action outcomes",
		},
		[]string{"action", "outcome"},
	)

	// ActionAttempts counts individual remote attempts, retries included.
	ActionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_action_attempts_total",
			Help: "Outbound call control API attempts",
		},
		[]string{"action", "result"},
	)

	// StoreErrors counts durable store failures by operation.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_store_errors_total",
			Help: "Durable call store failures",
		},
		[]string{"op"},
	)

	// LiveCalls tracks the live registry size.
	LiveCalls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "screening_live_calls",
			Help: "Calls currently held in the live registry",
		},
	)
)

// Middleware records request count, latency and in-flight requests.
// The matched route template is used as label to keep cardinality low.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := prometheus.Labels{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(c.Writer.Status()),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
