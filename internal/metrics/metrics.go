// Package metrics exposes the Prometheus collectors of the speedgolf server.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedgolf_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speedgolf_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	roundMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedgolf_round_mutations_total",
		Help: "Round create, update and delete attempts by result.",
	}, []string{"op", "result"})

	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedgolf_logins_total",
		Help: "Login attempts by method and result.",
	}, []string{"method", "result"})
)

// Middleware records per-request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// Handler serves the Prometheus exposition format.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func RecordRoundMutation(op string, success bool) {
	roundMutationsTotal.WithLabelValues(op, result(success)).Inc()
}

func RecordLogin(method string, success bool) {
	loginsTotal.WithLabelValues(method, result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
