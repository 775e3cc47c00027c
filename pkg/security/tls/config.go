package tls

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Config describes where a TLS context loads its credentials from and how the
// resulting crypto/tls configuration is tuned.
type Config struct {
	// KeyStore is the location of a PEM bundle holding the certificate chain
	// followed by its private key. Plain paths and file:// URIs are accepted.
	KeyStore string `yaml:"key_store"`

	// TrustStore is the location of a PEM bundle of CA certificates used to
	// verify peers. Servers use it for client certificates, clients for the
	// server chain. Empty means client certificates are not verified (server)
	// or the system roots are used (client).
	TrustStore string `yaml:"trust_store"`

	// MinVersion is the minimum TLS version to accept ("1.2" or "1.3")
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// CipherSuites is a list of enabled cipher suites
	// If empty, Go's default secure cipher suites are used
	CipherSuites []string `yaml:"cipher_suites"`

	// ClientAuthType specifies how a server handles client certificates when
	// a trust store is configured:
	// - "require": client certificate required, reject if missing
	// - "request": request client certificate, but allow if missing
	// - "verify_if_given": verify client cert if provided, allow if not
	// Default: "require"
	ClientAuthType string `yaml:"client_auth_type"`

	// InsecureSkipVerify makes a client trust every server certificate.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// ServerName overrides the name a client verifies and sends as SNI.
	ServerName string `yaml:"server_name"`

	// ReloadSchedule is an optional cron expression ("*/15 * * * *") that
	// reloads the stores even when no filesystem event was observed.
	ReloadSchedule string `yaml:"reload_schedule"`

	// ExpiryWarning is how close to NotAfter a loaded certificate must be
	// before reloads log a warning.
	// Default: 720h (30 days)
	ExpiryWarning time.Duration `yaml:"expiry_warning"`

	// Watch controls the credential watcher.
	Watch WatchConfig `yaml:"watch"`
}

// WatchConfig controls the credential watcher started with the context.
// The zero value watches both store directories and fails start-up when the
// directories cannot be watched.
type WatchConfig struct {
	// Disabled turns off filesystem watching.
	Disabled bool `yaml:"disabled"`

	// Optional lets the context start without a watcher when the store
	// directories cannot be subscribed to.
	Optional bool `yaml:"optional"`

	// IncludeCreate also reloads on create events, for rotation tools that
	// rename a new file over the store.
	IncludeCreate bool `yaml:"include_create"`

	// SettleWindow is how long the watcher keeps collecting events for one
	// rewrite before reloading. Zero uses watch.DefaultSettleWindow.
	SettleWindow time.Duration `yaml:"settle_window"`
}

// DefaultExpiryWarning is used when Config.ExpiryWarning is zero.
const DefaultExpiryWarning = 30 * 24 * time.Hour

// Validate checks the fields that do not require reading the stores.
func (c *Config) Validate() error {
	switch c.MinVersion {
	case "", "1.2", "1.3":
	default:
		return fmt.Errorf("unsupported min_version %q (must be \"1.2\" or \"1.3\")", c.MinVersion)
	}

	for _, suite := range c.CipherSuites {
		if _, ok := cipherSuiteMap[suite]; !ok {
			return fmt.Errorf("unsupported cipher suite %q", suite)
		}
	}

	switch c.ClientAuthType {
	case "", "require", "request", "verify_if_given":
	default:
		return fmt.Errorf("unsupported client_auth_type %q", c.ClientAuthType)
	}

	if c.ReloadSchedule != "" {
		if _, err := cron.ParseStandard(c.ReloadSchedule); err != nil {
			return fmt.Errorf("invalid reload_schedule %q: %w", c.ReloadSchedule, err)
		}
	}

	if c.Watch.SettleWindow < 0 {
		return fmt.Errorf("watch.settle_window must not be negative")
	}

	if c.ExpiryWarning < 0 {
		return fmt.Errorf("expiry_warning must not be negative")
	}

	return nil
}

func (c *Config) expiryWarning() time.Duration {
	if c.ExpiryWarning == 0 {
		return DefaultExpiryWarning
	}
	return c.ExpiryWarning
}

// parseTLSVersion converts the MinVersion string to a tls.Version constant.
// Supported versions: "1.3" (default), "1.2"
// TLS 1.0 and 1.1 are not supported due to security concerns.
func (c *Config) parseTLSVersion() uint16 {
	switch c.MinVersion {
	case "1.2":
		return tls.VersionTLS12
	default:
		return tls.VersionTLS13
	}
}

// parseCipherSuites converts cipher suite names to tls.CipherSuite constants.
// If no cipher suites are specified, returns nil to use Go's secure defaults.
func (c *Config) parseCipherSuites() []uint16 {
	if len(c.CipherSuites) == 0 {
		return nil
	}

	var suites []uint16
	for _, suite := range c.CipherSuites {
		if id, ok := cipherSuiteMap[suite]; ok {
			suites = append(suites, id)
		}
	}

	return suites
}

// cipherSuiteMap maps cipher suite names to their tls package constants.
// Only secure cipher suites are included.
var cipherSuiteMap = map[string]uint16{
	// TLS 1.3 cipher suites (always enabled, cannot be disabled)
	"TLS_AES_128_GCM_SHA256":       tls.TLS_AES_128_GCM_SHA256,
	"TLS_AES_256_GCM_SHA384":       tls.TLS_AES_256_GCM_SHA384,
	"TLS_CHACHA20_POLY1305_SHA256": tls.TLS_CHACHA20_POLY1305_SHA256,

	// TLS 1.2 cipher suites (secure options only)
	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305":    tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305":  tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

// parseClientAuthType converts the ClientAuthType string to a tls.ClientAuthType constant.
func (c *Config) parseClientAuthType() tls.ClientAuthType {
	switch c.ClientAuthType {
	case "request":
		return tls.RequestClientCert
	case "verify_if_given":
		return tls.VerifyClientCertIfGiven
	default:
		// Default to requiring and verifying client certificates
		return tls.RequireAndVerifyClientCert
	}
}

// IsSupportedCipherSuite reports whether name can be used in CipherSuites.
func IsSupportedCipherSuite(name string) bool {
	_, ok := cipherSuiteMap[name]
	return ok
}
