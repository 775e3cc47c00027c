package config

import (
	"time"

	certtls "mercator-hq/certwatch/pkg/security/tls"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8443"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultIdentitySource  = "subject.CN"

	// TLS defaults
	DefaultTLSMinVersion     = "1.3"
	DefaultTLSClientAuthType = "require"

	// Client defaults
	DefaultClientTarget   = "https://127.0.0.1:8443/"
	DefaultClientInterval = 30 * time.Second
	DefaultClientTimeout  = 10 * time.Second

	// Admin defaults
	DefaultAdminEnabled       = true
	DefaultAdminListenAddress = "127.0.0.1:9090"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultPrometheusPath     = "/metrics"
	DefaultMetricsNamespace   = "certwatch"
	DefaultMetricsSubsystem   = "tls"
	DefaultHealthEnabled      = true
	DefaultLivenessPath       = "/health"
	DefaultReadinessPath      = "/ready"
	DefaultVersionPath        = "/version"
	DefaultHealthCheckTimeout = 5 * time.Second
)

// DefaultReloadDurationBuckets cover store reads from sub-millisecond local
// files to slow network mounts.
var DefaultReloadDurationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1}

// DefaultRequestDurationBuckets cover HTTPS request latency.
var DefaultRequestDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// newConfig returns a Config with the boolean defaults that cannot be told
// apart from an explicit false once YAML has been decoded.
func newConfig() Config {
	var cfg Config
	cfg.Admin.Enabled = DefaultAdminEnabled
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Health.Enabled = DefaultHealthEnabled
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.IdentitySource == "" {
		cfg.Server.IdentitySource = DefaultIdentitySource
	}
	if cfg.Server.TLS.ClientAuthType == "" && cfg.Server.TLS.TrustStore != "" {
		cfg.Server.TLS.ClientAuthType = DefaultTLSClientAuthType
	}
	applyTLSDefaults(&cfg.Server.TLS)

	// Client defaults
	if cfg.Client.Target == "" {
		cfg.Client.Target = DefaultClientTarget
	}
	if cfg.Client.Interval == 0 {
		cfg.Client.Interval = DefaultClientInterval
	}
	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = DefaultClientTimeout
	}
	applyTLSDefaults(&cfg.Client.TLS)

	// Admin defaults
	if cfg.Admin.ListenAddress == "" {
		cfg.Admin.ListenAddress = DefaultAdminListenAddress
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.ReloadDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.ReloadDurationBuckets = append([]float64(nil), DefaultReloadDurationBuckets...)
	}
	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RequestDurationBuckets = append([]float64(nil), DefaultRequestDurationBuckets...)
	}
	if cfg.Telemetry.Health.LivenessPath == "" {
		cfg.Telemetry.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Telemetry.Health.ReadinessPath == "" {
		cfg.Telemetry.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Telemetry.Health.VersionPath == "" {
		cfg.Telemetry.Health.VersionPath = DefaultVersionPath
	}
	if cfg.Telemetry.Health.CheckTimeout == 0 {
		cfg.Telemetry.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}

func applyTLSDefaults(cfg *certtls.Config) {
	if cfg.MinVersion == "" {
		cfg.MinVersion = DefaultTLSMinVersion
	}
	if cfg.ExpiryWarning == 0 {
		cfg.ExpiryWarning = certtls.DefaultExpiryWarning
	}
}
