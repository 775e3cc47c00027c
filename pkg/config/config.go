package config

import (
	"time"

	certtls "mercator-hq/certwatch/pkg/security/tls"
)

// Config is the root configuration structure for certwatch.
type Config struct {
	// Server configures the HTTPS listener that serves with the server TLS
	// context.
	Server ServerConfig `yaml:"server"`

	// Client configures the TLS client context used by the probe command.
	Client ClientConfig `yaml:"client"`

	// Admin configures the plain HTTP listener for metrics and health.
	Admin AdminConfig `yaml:"admin"`

	// Telemetry contains configuration for logging, metrics and health
	// checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTPS server.
type ServerConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8443", "0.0.0.0:8443").
	// Default: "127.0.0.1:8443"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// IdentitySource selects which client certificate field identifies the
	// peer: "subject.CN", "subject.OU", "subject.O" or "SAN".
	// Default: "subject.CN"
	IdentitySource string `yaml:"identity_source"`

	// TLS configures the server key store and trust store.
	TLS certtls.Config `yaml:"tls"`
}

// ClientConfig contains configuration for the TLS client context.
type ClientConfig struct {
	// Target is the URL or host:port the probe command connects to.
	// Default: "https://127.0.0.1:8443/"
	Target string `yaml:"target"`

	// Interval is the delay between probes in continuous mode.
	// Default: 30s
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds a single probe.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// TLS configures the client key store and trust store.
	TLS certtls.Config `yaml:"tls"`
}

// AdminConfig contains configuration for the admin HTTP server.
type AdminConfig struct {
	// Enabled controls whether the admin server is started.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address for metrics and health endpoints.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "certwatch"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "tls"
	Subsystem string `yaml:"subsystem"`

	// ReloadDurationBuckets defines histogram buckets for reload duration (seconds).
	// Default: [0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1]
	ReloadDurationBuckets []float64 `yaml:"reload_duration_buckets"`

	// RequestDurationBuckets defines histogram buckets for HTTPS request duration (seconds).
	// Default: [0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// Enabled controls whether health check endpoints are enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// VersionPath is the path for the version information endpoint.
	// Default: "/version"
	VersionPath string `yaml:"version_path"`

	// CheckTimeout is the timeout for individual component health checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
