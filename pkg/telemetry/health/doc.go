// Package health provides liveness, readiness and version endpoints for the
// admin server.
//
// A Checker holds named checks. Liveness never runs them; readiness runs all
// of them concurrently, each bounded by the checker timeout, and reports
// "ready" only when every check passes.
//
// TLS contexts are registered with RegisterTLSContext. Their check fails
// before the first successful load, when the credential watcher has exited
// without being asked to, or when the loaded certificate has expired. The
// readiness body also shows the watcher state, the time and error of the
// last reload and the certificate expiry, so an operator can tell a stale
// certificate from a broken watch without reading logs.
package health
