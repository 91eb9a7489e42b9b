package clients

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics tracks API request counts, latencies and retries.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	retries  prometheus.Counter
}

// NewHTTPMetrics registers the client metrics with reg. A nil reg yields
// unregistered collectors.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(reg)
	return &HTTPMetrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ticketsync",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "API requests by method and status code",
			},
			[]string{"method", "code"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ticketsync",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "API request latency",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"method"},
		),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketsync",
			Subsystem: "http",
			Name:      "retries_total",
			Help:      "Retried API requests",
		}),
	}
}

// RecordRequest records one attempt. status is 0 when no response arrived.
func (m *HTTPMetrics) RecordRequest(method string, status int, latency time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(method, code).Inc()
	m.latency.WithLabelValues(method).Observe(latency.Seconds())
}

// RecordRetry counts a retried attempt.
func (m *HTTPMetrics) RecordRetry() {
	m.retries.Inc()
}
