// Package telemetry groups the observability packages of certwatch.
//
// # Components
//
//   - logging: slog handlers with private key redaction and request context
//   - metrics: Prometheus metrics for reloads, the watcher and HTTPS traffic
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//		return err
//	}
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	serverCtx := tls.NewServerContext(cfg.Server.TLS,
//		tls.WithLogger(logger),
//		tls.WithRecorder(collector.Recorder("server")),
//	)
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterTLSContext(serverCtx)
//
// The metrics and health handlers are served by the admin server in
// pkg/server, on plain HTTP so that probes keep working while no certificate
// is loaded.
package telemetry
