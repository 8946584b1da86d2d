package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	namespace = "vision_dispatch"

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	backendAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_attempts_total",
			Help:      "Outbound backend attempts by outcome class",
		},
		[]string{"backend", "outcome"},
	)

	backendOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_outcomes_total",
			Help:      "Final per-backend outcomes of a dispatch",
		},
		[]string{"backend", "outcome"},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time to collect all backend outcomes",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"status"},
	)
)

// HTTPRequestsTotal counts one served request
func HTTPRequestsTotal(method, path, code string) {
	httpRequestsTotal.With(prometheus.Labels{
		"method": method,
		"path":   path,
		"code":   code,
	}).Inc()
}

// HTTPRequestDuration records the latency of one served request
func HTTPRequestDuration(method, path string, duration time.Duration) {
	httpRequestDuration.With(prometheus.Labels{
		"method": method,
		"path":   path,
	}).Observe(duration.Seconds())
}

// BackendAttempt counts one attempt against a backend by outcome class
func BackendAttempt(backend, outcome string) {
	backendAttemptsTotal.With(prometheus.Labels{
		"backend": backend,
		"outcome": outcome,
	}).Inc()
}

// BackendOutcome counts the final outcome of one backend task
func BackendOutcome(backend, outcome string) {
	backendOutcomesTotal.With(prometheus.Labels{
		"backend": backend,
		"outcome": outcome,
	}).Inc()
}

// DispatchDuration records how long a dispatch took to finish or hit its deadline
func DispatchDuration(status string, duration time.Duration) {
	dispatchDuration.With(prometheus.Labels{
		"status": status,
	}).Observe(duration.Seconds())
}

// Middleware records request counts and latency per matched route
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal(c.Request.Method, path, strconv.Itoa(c.Writer.Status()))
		HTTPRequestDuration(c.Request.Method, path, time.Since(start))
	}
}
