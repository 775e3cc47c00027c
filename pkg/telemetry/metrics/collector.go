package metrics

import (
	"sync"
	"time"

	"mercator-hq/certwatch/pkg/config"
	"mercator-hq/certwatch/pkg/security/watch"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector owns the Prometheus registry for certwatch and the metric
// families registered in it.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Reload metrics, shared by the server and client TLS contexts
	reloadMetrics *ReloadMetrics

	// HTTPS request metrics
	requestMetrics *RequestMetrics

	// Cardinality tracking for request paths
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a new registry is created with
// the Go runtime and process collectors.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "certwatch",
//		Subsystem: "tls",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	// Set defaults if not specified
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.ReloadDurationBuckets) == 0 {
		cfg.ReloadDurationBuckets = config.DefaultReloadDurationBuckets
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = config.DefaultRequestDurationBuckets
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(100), // request paths
	}

	c.reloadMetrics = NewReloadMetrics(cfg, registry)
	c.requestMetrics = NewRequestMetrics(cfg, registry)

	return c
}

// Recorder returns the watch.Recorder for a TLS role, or nil when metrics
// are disabled so that callers fall back to their no-op recorder.
func (c *Collector) Recorder(role string) watch.Recorder {
	if !c.config.Enabled {
		return nil
	}
	return c.reloadMetrics.Recorder(role)
}

// Reloads returns the reload metrics regardless of Enabled.
func (c *Collector) Reloads() *ReloadMetrics {
	return c.reloadMetrics
}

// RecordRequest records metrics for a completed HTTPS request.
//
// Parameters:
//   - path: URL path of the request
//   - method: HTTP method
//   - code: Response status code
//   - duration: Time spent in the handler
func (c *Collector) RecordRequest(path, method string, code int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	// Aggregate into "other" to prevent cardinality explosion from scanners
	if !c.cardinalityLimiter.Allow(path) {
		path = "other"
	}

	c.requestMetrics.RecordRequest(path, method, code, duration)
}

// RecordConnection records the negotiated TLS version of a request and
// whether the client presented a certificate.
func (c *Collector) RecordConnection(tlsVersion string, clientCertificate bool) {
	if !c.config.Enabled {
		return
	}

	c.requestMetrics.RecordConnection(tlsVersion, clientCertificate)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or if the limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(labelValue string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelValue]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelValue]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelValue] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
