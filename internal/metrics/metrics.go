package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts handled requests by route and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloud_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks request latency by route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloud_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)

	// GatewayOpsTotal counts object store calls by operation and outcome.
	GatewayOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloud_gateway_operations_total",
			Help: "Total number of object store operations",
		},
		[]string{"operation", "status"},
	)

	// GatewayOpDuration tracks object store call latency.
	GatewayOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloud_gateway_operation_duration_seconds",
			Help:    "Object store operation latency in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	// TransfersTotal counts move/rename outcomes by final state.
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloud_transfers_total",
			Help: "Move and rename requests by kind and final state",
		},
		[]string{"kind", "state"},
	)

	// UsageAccountingFailures counts usage updates that were dropped.
	UsageAccountingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloud_usage_accounting_failures_total",
			Help: "Usage accounting updates that failed and were absorbed",
		},
		[]string{"event"},
	)

	// OverlayReconciled counts star/share rows rewritten or removed after storage mutations.
	OverlayReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloud_overlay_reconciled_rows_total",
			Help: "Starred/shared rows updated after object relocation or deletion",
		},
		[]string{"event"},
	)
)

var initOnce sync.Once

// InitMetrics registers the HTTP collectors. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration)
	})
}

// Middleware records request counts and latency.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveGateway records one object store call.
func ObserveGateway(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	GatewayOpsTotal.WithLabelValues(operation, status).Inc()
	GatewayOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}
