package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	certtls "mercator-hq/certwatch/pkg/security/tls"
	"mercator-hq/certwatch/pkg/security/watch"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
//
// Store files are not read; only their locations are checked.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateClient(&cfg.Client)...)
	errs = append(errs, validateAdmin(&cfg.Admin)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	for field, d := range map[string]time.Duration{
		"server.read_timeout":     cfg.ReadTimeout,
		"server.write_timeout":    cfg.WriteTimeout,
		"server.idle_timeout":     cfg.IdleTimeout,
		"server.shutdown_timeout": cfg.ShutdownTimeout,
	} {
		if d < 0 {
			errs = append(errs, FieldError{
				Field:   field,
				Message: "timeout must be positive",
			})
		}
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}

	switch cfg.IdentitySource {
	case "", "subject.CN", "subject.OU", "subject.O", "SAN":
	default:
		errs = append(errs, FieldError{
			Field:   "server.identity_source",
			Message: fmt.Sprintf("invalid identity source %q: must be 'subject.CN', 'subject.OU', 'subject.O', or 'SAN'", cfg.IdentitySource),
		})
	}

	errs = append(errs, validateTLS("server.tls", &cfg.TLS)...)

	if cfg.TLS.InsecureSkipVerify {
		errs = append(errs, FieldError{
			Field:   "server.tls.insecure_skip_verify",
			Message: "insecure_skip_verify only applies to clients",
		})
	}

	return errs
}

// validateClient validates client configuration.
func validateClient(cfg *ClientConfig) []FieldError {
	var errs []FieldError

	if cfg.Target != "" {
		if _, err := ProbeAddress(cfg.Target); err != nil {
			errs = append(errs, FieldError{
				Field:   "client.target",
				Message: err.Error(),
			})
		}
	}

	if cfg.Interval < 0 {
		errs = append(errs, FieldError{
			Field:   "client.interval",
			Message: "interval must be positive",
		})
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "client.timeout",
			Message: "timeout must be positive",
		})
	}

	errs = append(errs, validateTLS("client.tls", &cfg.TLS)...)

	if cfg.TLS.ClientAuthType != "" {
		errs = append(errs, FieldError{
			Field:   "client.tls.client_auth_type",
			Message: "client_auth_type only applies to servers",
		})
	}

	return errs
}

// validateTLS validates one TLS section. Locations are resolved the same way
// the credential watcher resolves them.
func validateTLS(prefix string, cfg *certtls.Config) []FieldError {
	var errs []FieldError

	if _, err := watch.ResolveLocation(watch.KeyStore, cfg.KeyStore); err != nil {
		errs = append(errs, FieldError{
			Field:   prefix + ".key_store",
			Message: err.Error(),
		})
	}
	if _, err := watch.ResolveLocation(watch.TrustStore, cfg.TrustStore); err != nil {
		errs = append(errs, FieldError{
			Field:   prefix + ".trust_store",
			Message: err.Error(),
		})
	}

	switch cfg.MinVersion {
	case "", "1.2", "1.3":
	default:
		errs = append(errs, FieldError{
			Field:   prefix + ".min_version",
			Message: fmt.Sprintf("invalid TLS version %q: must be '1.2' or '1.3'", cfg.MinVersion),
		})
	}

	for _, suite := range cfg.CipherSuites {
		if !certtls.IsSupportedCipherSuite(suite) {
			errs = append(errs, FieldError{
				Field:   prefix + ".cipher_suites",
				Message: fmt.Sprintf("unsupported cipher suite %q", suite),
			})
		}
	}

	switch cfg.ClientAuthType {
	case "", "require", "request", "verify_if_given":
	default:
		errs = append(errs, FieldError{
			Field:   prefix + ".client_auth_type",
			Message: fmt.Sprintf("invalid client auth type %q: must be 'require', 'request', or 'verify_if_given'", cfg.ClientAuthType),
		})
	}

	if cfg.ReloadSchedule != "" {
		if _, err := cron.ParseStandard(cfg.ReloadSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   prefix + ".reload_schedule",
				Message: fmt.Sprintf("invalid cron schedule %q: %v", cfg.ReloadSchedule, err),
			})
		}
	}

	if cfg.ExpiryWarning < 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".expiry_warning",
			Message: "expiry warning must be non-negative",
		})
	}

	return errs
}

// validateAdmin validates admin server configuration.
func validateAdmin(cfg *AdminConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "admin.listen_address",
			Message: "listen address is required when the admin server is enabled",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "admin.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Path == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "metrics path is required when metrics are enabled",
			})
		} else if cfg.Metrics.Path[0] != '/' {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "metrics path must start with /",
			})
		}
		if !ascending(cfg.Metrics.ReloadDurationBuckets) {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.reload_duration_buckets",
				Message: "buckets must be strictly increasing",
			})
		}
		if !ascending(cfg.Metrics.RequestDurationBuckets) {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.request_duration_buckets",
				Message: "buckets must be strictly increasing",
			})
		}
	}

	if cfg.Health.Enabled {
		for field, path := range map[string]string{
			"telemetry.health.liveness_path":  cfg.Health.LivenessPath,
			"telemetry.health.readiness_path": cfg.Health.ReadinessPath,
			"telemetry.health.version_path":   cfg.Health.VersionPath,
		} {
			if path == "" {
				errs = append(errs, FieldError{
					Field:   field,
					Message: "path is required when health checks are enabled",
				})
			} else if path[0] != '/' {
				errs = append(errs, FieldError{
					Field:   field,
					Message: "path must start with /",
				})
			}
		}

		if cfg.Health.CheckTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "telemetry.health.check_timeout",
				Message: "check timeout must be positive",
			})
		}
		if cfg.Health.CheckTimeout > 60*time.Second {
			errs = append(errs, FieldError{
				Field:   "telemetry.health.check_timeout",
				Message: "check timeout exceeds reasonable limit (60s)",
			})
		}
	}

	return errs
}

func ascending(buckets []float64) bool {
	for i := 1; i < len(buckets); i++ {
		if buckets[i] <= buckets[i-1] {
			return false
		}
	}
	return true
}

// ProbeAddress returns the host:port a probe target refers to. Targets are
// either https URLs (port 443 when omitted) or bare host:port pairs.
func ProbeAddress(target string) (string, error) {
	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("invalid target %q: %v", target, err)
		}
		if u.Scheme != "https" {
			return "", fmt.Errorf("invalid target %q: scheme must be https", target)
		}
		if u.Host == "" {
			return "", fmt.Errorf("invalid target %q: missing host", target)
		}
		if u.Port() == "" {
			return net.JoinHostPort(u.Hostname(), "443"), nil
		}
		return u.Host, nil
	}

	if _, _, err := net.SplitHostPort(target); err != nil {
		return "", fmt.Errorf("invalid target %q: %v", target, err)
	}
	return target, nil
}
