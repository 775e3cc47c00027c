// Package metrics exposes certwatch telemetry in Prometheus format.
//
// # Metrics Categories
//
//   - Reload metrics: watch events, reloads by source and result, reload
//     duration, watcher state, watched directories and certificate expiry
//   - Request metrics: HTTPS requests, duration and negotiated TLS version
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	server := certtls.NewServerContext(cfg.Server.TLS,
//		certtls.WithRecorder(collector.Recorder("server")),
//	)
//
//	mux.Handle("/metrics", collector.Handler(logger))
//
// Recorder returns nil when metrics are disabled; TLS contexts and watchers
// treat a nil recorder as a no-op.
package metrics
