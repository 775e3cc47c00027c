/*
Package tls builds crypto/tls configurations from a PEM key store and trust
store and keeps them current while the files change.

# Stores

A key store is one PEM file holding the certificate chain, leaf first,
followed by the private key. A trust store is a PEM bundle of CA
certificates. Both accept plain paths and file:// URIs.

# Server

	srv := tls.NewServerContext(tls.Config{
		KeyStore:   "/etc/certwatch/server.pem",
		TrustStore: "/etc/certwatch/clients-ca.pem",
		MinVersion: "1.3",
	}, tls.WithLogger(logger), tls.WithRecorder(reloadMetrics))
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	ln, err := cryptotls.Listen("tcp", ":8443", srv.TLSConfig())

The listener configuration resolves the active credentials per handshake, so
a reload never requires a restart.

# Client

	cli := tls.NewClientContext(tls.Config{TrustStore: "/etc/certwatch/ca.pem"})
	if err := cli.Start(ctx); err != nil {
		return err
	}
	conn, err := cli.Dial(ctx, "tcp", "api.internal:8443")

# Reloading

Start performs the initial load and then starts a credential watcher (see
package watch) on the store directories. Reloads read and validate both
stores before swapping; a failed reload keeps the previous credentials.
Config.ReloadSchedule adds a cron-driven reload for filesystems without
change notifications.
*/
package tls
