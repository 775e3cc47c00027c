package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	certtls "mercator-hq/certwatch/pkg/security/tls"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "CERTWATCH_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// An empty path yields the defaults. Environment variables are not consulted;
// use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg := newConfig()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - operator supplied path
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CERTWATCH_SECTION_FIELD (e.g., CERTWATCH_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	// Overrides may set fields that enable further defaults (a trust store
	// implies a client auth type).
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Values that fail to parse are ignored.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envInt("SERVER_MAX_HEADER_BYTES", &cfg.Server.MaxHeaderBytes)
	envString("SERVER_IDENTITY_SOURCE", &cfg.Server.IdentitySource)
	applyTLSEnvOverrides(&cfg.Server.TLS, "SERVER_TLS_")

	// Client overrides
	envString("CLIENT_TARGET", &cfg.Client.Target)
	envDuration("CLIENT_INTERVAL", &cfg.Client.Interval)
	envDuration("CLIENT_TIMEOUT", &cfg.Client.Timeout)
	applyTLSEnvOverrides(&cfg.Client.TLS, "CLIENT_TLS_")

	// Admin overrides
	envBool("ADMIN_ENABLED", &cfg.Admin.Enabled)
	envString("ADMIN_LISTEN_ADDRESS", &cfg.Admin.ListenAddress)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_HEALTH_ENABLED", &cfg.Telemetry.Health.Enabled)
	envDuration("TELEMETRY_HEALTH_CHECK_TIMEOUT", &cfg.Telemetry.Health.CheckTimeout)
}

// applyTLSEnvOverrides applies overrides for one TLS section. Variables
// follow the format CERTWATCH_<ROLE>_TLS_<FIELD>.
func applyTLSEnvOverrides(cfg *certtls.Config, prefix string) {
	envString(prefix+"KEY_STORE", &cfg.KeyStore)
	envString(prefix+"TRUST_STORE", &cfg.TrustStore)
	envString(prefix+"MIN_VERSION", &cfg.MinVersion)
	envString(prefix+"CLIENT_AUTH_TYPE", &cfg.ClientAuthType)
	envString(prefix+"SERVER_NAME", &cfg.ServerName)
	envString(prefix+"RELOAD_SCHEDULE", &cfg.ReloadSchedule)
	envBool(prefix+"INSECURE_SKIP_VERIFY", &cfg.InsecureSkipVerify)
	envDuration(prefix+"EXPIRY_WARNING", &cfg.ExpiryWarning)
	envBool(prefix+"WATCH_DISABLED", &cfg.Watch.Disabled)
	envBool(prefix+"WATCH_OPTIONAL", &cfg.Watch.Optional)
	envBool(prefix+"WATCH_INCLUDE_CREATE", &cfg.Watch.IncludeCreate)
	envDuration(prefix+"WATCH_SETTLE_WINDOW", &cfg.Watch.SettleWindow)

	if val := os.Getenv(EnvPrefix + prefix + "CIPHER_SUITES"); val != "" {
		var suites []string
		for _, suite := range strings.Split(val, ",") {
			if suite = strings.TrimSpace(suite); suite != "" {
				suites = append(suites, suite)
			}
		}
		cfg.CipherSuites = suites
	}
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
