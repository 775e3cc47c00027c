package metrics

import (
	"strconv"
	"time"

	"mercator-hq/certwatch/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks requests served over the reloadable TLS listener.
//
// Metrics:
//   - certwatch_tls_requests_total: Requests by path, method and status code
//   - certwatch_tls_request_duration_seconds: Request duration histogram
//   - certwatch_tls_connections_total: Requests by negotiated TLS version and
//     whether the client presented a certificate
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	connections     *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of HTTPS requests served",
			},
			[]string{"path", "method", "code"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTPS requests in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"path"},
		),

		connections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "connections_total",
				Help:      "HTTPS requests by negotiated TLS version and client certificate presence",
			},
			[]string{"tls_version", "client_certificate"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.connections,
	)

	return rm
}

// RecordRequest records a completed request.
//
// Parameters:
//   - path: Request path, already bounded by the caller
//   - method: HTTP method
//   - code: Response status code
//   - duration: Time spent in the handler
func (rm *RequestMetrics) RecordRequest(path, method string, code int, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(path, method, strconv.Itoa(code)).Inc()
	rm.requestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordConnection records the TLS parameters of a request.
func (rm *RequestMetrics) RecordConnection(tlsVersion string, clientCertificate bool) {
	rm.connections.WithLabelValues(tlsVersion, strconv.FormatBool(clientCertificate)).Inc()
}
