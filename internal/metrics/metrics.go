// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gallery"

var (
	// HTTPRequests counts handled requests by route, method and status
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests handled, by route, method and status code.",
	}, []string{"route", "method", "status"})

	// HTTPDuration observes request latency by route and method
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	// PromptMutations counts prompt writes by operation and outcome
	PromptMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "prompt_mutations_total",
		Help:      "Prompt create, update and delete operations by outcome.",
	}, []string{"op", "outcome"})

	// ImageOperations counts asset uploads and deletes by outcome
	ImageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "image_operations_total",
		Help:      "Asset store uploads and deletes by outcome.",
	}, []string{"op", "outcome"})

	// WebsocketClients is the number of connected realtime clients
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Connected realtime clients.",
	})

	// EventsPublished counts change events by source (local or relay)
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Change events broadcast to realtime clients, by source.",
	}, []string{"source"})
)

// Outcome labels an operation result
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Middleware records request count and latency per route template
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			HTTPRequests.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
			HTTPDuration.WithLabelValues(route, c.Request().Method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
