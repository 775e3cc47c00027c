// Certwatch serves and probes TLS endpoints whose credentials are reloaded
// from disk while the process runs.
//
// It keeps a key store and a trust store loaded into live TLS contexts,
// watches the directories that hold them and swaps the credentials in place
// when a store file changes. Rotating a certificate therefore needs no
// restart.
//
// Usage:
//
//	# Generate a CA, a server key store and a client key store
//	certwatch certs generate --host localhost,127.0.0.1 --client-host probe --output certs/
//
//	# Serve HTTPS with mutual TLS, metrics and health on the admin port
//	certwatch serve --config certwatch.yaml
//
//	# Probe the server once with the client context
//	certwatch probe --once
//
//	# Check configuration and stores without starting anything
//	certwatch validate --config certwatch.yaml
package main

import "os"

func main() {
	os.Exit(Execute())
}
