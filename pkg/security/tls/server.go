package tls

import (
	"crypto/tls"
	"fmt"
)

// ServerContext serves the key store certificate and, when a trust store is
// configured, verifies client certificates against it.
type ServerContext struct {
	*Context
}

// NewServerContext creates a server context. Call Start to load the stores.
func NewServerContext(cfg Config, opts ...Option) *ServerContext {
	s := &ServerContext{Context: newContext(RoleServer, cfg, opts...)}
	s.build = s.buildConfig
	s.check = s.checkConfiguration
	return s
}

func (s *ServerContext) checkConfiguration() error {
	if s.cfg.KeyStore == "" {
		return fmt.Errorf("tls server context requires a key store")
	}
	if s.cfg.TrustStore == "" && s.cfg.ClientAuthType != "" {
		s.logger.Warn("client_auth_type has no effect without a trust store", "client_auth_type", s.cfg.ClientAuthType)
	}
	return nil
}

func (s *ServerContext) buildConfig(m *Material) *tls.Config {
	cfg := &tls.Config{
		MinVersion:   s.cfg.parseTLSVersion(),
		CipherSuites: s.cfg.parseCipherSuites(),
	}
	if m.Certificate != nil {
		cfg.Certificates = []tls.Certificate{*m.Certificate}
	}
	if m.Roots != nil {
		cfg.ClientCAs = m.Roots
		cfg.ClientAuth = s.cfg.parseClientAuthType()
	}
	return cfg
}

// TLSConfig returns a configuration for a listener. Every handshake uses the
// credentials active at that moment, so reloads apply to new connections
// without restarting the listener.
func (s *ServerContext) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: s.cfg.parseTLSVersion(),
		GetConfigForClient: func(*tls.ClientHelloInfo) (*tls.Config, error) {
			current := s.Current()
			if current == nil {
				return nil, ErrNotLoaded
			}
			return current, nil
		},
	}
}
