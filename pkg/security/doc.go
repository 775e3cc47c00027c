/*
Package security holds the transport security packages of certwatch.

# TLS Contexts

Package tls loads a key store and a trust store into a server or client
context and swaps the active configuration atomically on reload:

	serverCtx := tls.NewServerContext(tls.Config{
		KeyStore:       "/etc/certwatch/keystore.pem",
		TrustStore:     "/etc/certwatch/truststore.pem",
		ClientAuthType: "require",
	})
	if err := serverCtx.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer serverCtx.Stop()

	ln, err := cryptotls.Listen("tcp", ":8443", serverCtx.TLSConfig())

# Credential Watching

Package watch observes the directories holding the stores and calls Reload on
the context when a store file is modified. Contexts start their watcher in
Start; it is rarely used on its own.
*/
package security
