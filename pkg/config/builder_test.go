package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with defaults applied.
// The resulting configuration is valid and can be used immediately.
func NewTestConfig() *ConfigBuilder {
	cfg := newConfig()
	ApplyDefaults(&cfg)
	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithListenAddress sets the server listen address.
func (b *ConfigBuilder) WithListenAddress(addr string) *ConfigBuilder {
	b.cfg.Server.ListenAddress = addr
	return b
}

// WithReadTimeout sets the server read timeout.
func (b *ConfigBuilder) WithReadTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.Server.ReadTimeout = d
	return b
}

// WithServerStores sets the server key store and trust store.
func (b *ConfigBuilder) WithServerStores(keyStore, trustStore string) *ConfigBuilder {
	b.cfg.Server.TLS.KeyStore = keyStore
	b.cfg.Server.TLS.TrustStore = trustStore
	return b
}

// WithClientStores sets the client key store and trust store.
func (b *ConfigBuilder) WithClientStores(keyStore, trustStore string) *ConfigBuilder {
	b.cfg.Client.TLS.KeyStore = keyStore
	b.cfg.Client.TLS.TrustStore = trustStore
	return b
}

// WithReloadSchedule sets the server reload schedule.
func (b *ConfigBuilder) WithReloadSchedule(schedule string) *ConfigBuilder {
	b.cfg.Server.TLS.ReloadSchedule = schedule
	return b
}

// WithLoggingLevel sets the logging level.
func (b *ConfigBuilder) WithLoggingLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}

// WithLoggingFormat sets the logging format.
func (b *ConfigBuilder) WithLoggingFormat(format string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Format = format
	return b
}

// WithMetricsEnabled enables or disables metrics.
func (b *ConfigBuilder) WithMetricsEnabled(enabled bool) *ConfigBuilder {
	b.cfg.Telemetry.Metrics.Enabled = enabled
	return b
}

// WithAdminEnabled enables or disables the admin server.
func (b *ConfigBuilder) WithAdminEnabled(enabled bool) *ConfigBuilder {
	b.cfg.Admin.Enabled = enabled
	return b
}
