// Package server runs the certwatch HTTPS and admin listeners.
//
// Server terminates TLS with a tls.ServerContext. The listener asks the
// context for a configuration on every handshake, so a certificate rotated
// on disk is presented to the next client without a restart. The default
// route answers with the caller's identity as read from its client
// certificate, which makes the server useful as an mTLS smoke test target.
//
// Admin serves Prometheus metrics and the health endpoints over plain HTTP.
package server
