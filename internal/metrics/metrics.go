package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerMetrics struct {
	Requests      *prometheus.CounterVec
	LatencyMS     *prometheus.HistogramVec
	WebhookEvents *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg and serves reg from Handler.
func New(reg *prometheus.Registry) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agency",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "method", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agency",
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agency",
		Name:      "payment_webhook_events_total",
		Help:      "Payment webhook events by type and outcome.",
	}, []string{"type", "outcome"})

	reg.MustRegister(requests, latency, webhooks)
	return &ServerMetrics{Requests: requests, LatencyMS: latency, WebhookEvents: webhooks, gatherer: reg}
}

// Middleware records every request under its route template so path
// parameters do not explode label cardinality.
func (m *ServerMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		handler := c.FullPath()
		if handler == "" {
			handler = "unmatched"
		}
		m.Requests.WithLabelValues(handler, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func (m *ServerMetrics) ObserveWebhook(eventType, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	m.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
