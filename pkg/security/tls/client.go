package tls

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// ClientContext presents the key store certificate when a server asks for
// one and verifies servers against the trust store.
type ClientContext struct {
	*Context
}

// NewClientContext creates a client context. Call Start to load the stores.
func NewClientContext(cfg Config, opts ...Option) *ClientContext {
	c := &ClientContext{Context: newContext(RoleClient, cfg, opts...)}
	c.build = c.buildConfig
	c.check = c.checkConfiguration
	return c
}

// checkConfiguration only warns: every combination of stores is usable by a
// client.
func (c *ClientContext) checkConfiguration() error {
	if c.cfg.InsecureSkipVerify {
		c.logger.Warn("Client is configured to trust all server certificates")
		if c.cfg.TrustStore != "" {
			c.logger.Warn("Trust store is ignored because insecure_skip_verify is set", "trust_store", c.cfg.TrustStore)
		}
	} else {
		if c.cfg.TrustStore == "" {
			c.logger.Info("No trust store configured, verifying servers against the system roots")
		}
		if c.cfg.ServerName == "" {
			c.logger.Warn("No server_name configured, server certificates are matched against the dialed host")
		}
	}
	if c.cfg.KeyStore == "" {
		c.logger.Debug("No key store configured, client certificate requests will be answered empty")
	}
	return nil
}

func (c *ClientContext) buildConfig(m *Material) *tls.Config {
	// #nosec G402 - InsecureSkipVerify is an explicit operator choice
	return &tls.Config{
		MinVersion:           c.cfg.parseTLSVersion(),
		CipherSuites:         c.cfg.parseCipherSuites(),
		RootCAs:              m.Roots,
		ServerName:           c.cfg.ServerName,
		InsecureSkipVerify:   c.cfg.InsecureSkipVerify,
		GetClientCertificate: clientCertificate(m),
	}
}

// clientCertificate answers every certificate request with the key store
// certificate regardless of the acceptable issuers the server lists.
func clientCertificate(m *Material) func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	return func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
		if m.Certificate == nil {
			return &tls.Certificate{}, nil
		}
		return m.Certificate, nil
	}
}

// TLSConfig returns a copy of the active configuration. Long-lived users
// such as http.Transport keep the copy; use Dial or HTTPClient to pick up
// reloads.
func (c *ClientContext) TLSConfig() (*tls.Config, error) {
	current := c.Current()
	if current == nil {
		return nil, ErrNotLoaded
	}
	return current.Clone(), nil
}

// Dial opens a TLS connection using the credentials active at call time.
func (c *ClientContext) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	cfg, err := c.TLSConfig()
	if err != nil {
		return nil, err
	}
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 10 * time.Second},
		Config:    cfg,
	}
	return dialer.DialContext(ctx, network, addr)
}

// HTTPClient returns a client whose connections are dialed through Dial.
func (c *ClientContext) HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialTLSContext:      c.Dial,
			TLSHandshakeTimeout: 10 * time.Second,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
