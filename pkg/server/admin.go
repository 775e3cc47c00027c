package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"mercator-hq/certwatch/pkg/config"
	"mercator-hq/certwatch/pkg/telemetry/health"
	"mercator-hq/certwatch/pkg/telemetry/metrics"
)

// Admin is the plain HTTP server for metrics and health endpoints. It is kept
// off the HTTPS listener so probes keep working while no certificate is
// loaded.
type Admin struct {
	address string
	handler http.Handler
	logger  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewAdmin mounts the metrics handler and the health endpoints according to
// cfg. collector and checker may be nil to leave their endpoints out.
func NewAdmin(cfg *config.Config, collector *metrics.Collector, checker *health.Checker, info health.VersionInfo, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "admin_server")

	mux := http.NewServeMux()
	if collector != nil && cfg.Telemetry.Metrics.Enabled {
		mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler(logger))
	}
	if checker != nil && cfg.Telemetry.Health.Enabled {
		health.Register(mux, checker, cfg.Telemetry.Health, info)
	}

	return &Admin{
		address: cfg.Admin.ListenAddress,
		handler: recoveryMiddleware(logger)(mux),
		logger:  logger,
	}
}

// Handler returns the admin routes.
func (a *Admin) Handler() http.Handler {
	return a.handler
}

// Listen binds the admin address.
func (a *Admin) Listen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return fmt.Errorf("admin server is already listening on %s", a.listener.Addr())
	}
	ln, err := net.Listen("tcp", a.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.address, err)
	}
	a.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (a *Admin) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Serve runs the admin server until ctx is cancelled.
func (a *Admin) Serve(ctx context.Context) error {
	if a.Addr() == nil {
		if err := a.Listen(); err != nil {
			return err
		}
	}
	a.mu.Lock()
	ln := a.listener
	a.mu.Unlock()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(a.logger.Handler(), slog.LevelDebug),
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("Starting admin server", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("admin server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		a.mu.Lock()
		a.listener = nil
		a.mu.Unlock()
		return err
	case err := <-errChan:
		return err
	}
}
