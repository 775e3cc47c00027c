package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/certwatch/pkg/config"
	certtls "mercator-hq/certwatch/pkg/security/tls"
	"mercator-hq/certwatch/pkg/telemetry/metrics"
)

// Server is the HTTPS server backed by a ServerContext. Every handshake uses
// the credentials loaded at that moment, so rotated certificates are served
// without restarting the listener.
type Server struct {
	config     config.ServerConfig
	tlsContext *certtls.ServerContext
	logger     *slog.Logger
	metrics    *metrics.Collector

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	isRunning  bool

	// seen tracks connections already counted by the metrics hook.
	seen sync.Map
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics records request and connection metrics on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = collector
	}
}

// New creates a server. tlsContext must be started before Serve accepts
// connections; handshakes fail with ErrNotLoaded until it is.
func New(cfg config.ServerConfig, tlsContext *certtls.ServerContext, opts ...Option) *Server {
	s := &Server{
		config:     cfg,
		tlsContext: tlsContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "https_server")
	return s
}

// Listen binds the configured address. It is separate from Serve so callers
// can learn the bound address when listening on port 0.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("server is already listening on %s", s.listener.Addr())
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.listener = tls.NewListener(ln, s.tlsContext.TLSConfig())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout. Listen is called first
// if needed.
func (s *Server) Serve(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ConnState:      s.connState,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}
	httpServer, ln := s.httpServer, s.listener
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTPS server", "address", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Context cancelled, initiating shutdown")
		return s.shutdown(httpServer)
	case err := <-errChan:
		s.setStopped()
		return err
	}
}

func (s *Server) shutdown(httpServer *http.Server) error {
	s.logger.Info("Initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Error during server shutdown", "error", err)
		shutdownErr = fmt.Errorf("server shutdown error: %w", err)
	}
	s.setStopped()
	s.logger.Info("HTTPS server stopped")
	return shutdownErr
}

func (s *Server) setStopped() {
	s.mu.Lock()
	s.isRunning = false
	s.listener = nil
	s.mu.Unlock()
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", &identityHandler{
		tlsContext: s.tlsContext,
		source:     s.config.IdentitySource,
	})

	var handler http.Handler = mux
	handler = metricsMiddleware(s.metrics)(handler)
	handler = loggingMiddleware(s.logger)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	return handler
}

// Health reports whether the server is accepting connections.
func (s *Server) Health(ctx context.Context) error {
	if !s.IsRunning() {
		return fmt.Errorf("https server is not running")
	}
	return nil
}

// connState counts each TLS connection once, after its handshake.
func (s *Server) connState(c net.Conn, state http.ConnState) {
	switch state {
	case http.StateActive:
		if s.metrics == nil {
			return
		}
		if _, loaded := s.seen.LoadOrStore(c, struct{}{}); loaded {
			return
		}
		if tc, ok := c.(*tls.Conn); ok {
			cs := tc.ConnectionState()
			s.metrics.RecordConnection(tls.VersionName(cs.Version), len(cs.PeerCertificates) > 0)
		}
	case http.StateClosed, http.StateHijacked:
		s.seen.Delete(c)
	}
}
