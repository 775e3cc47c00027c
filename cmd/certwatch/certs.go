package main

import (
	"github.com/spf13/cobra"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage key stores and trust stores",
	Long: `Manage the PEM key stores and trust stores certwatch loads.

A key store holds a certificate chain, leaf first, followed by its private
key. A trust store holds one or more CA certificates.

Subcommands:
  generate - Generate a CA and key stores for testing
  info     - Display certificate details
  validate - Validate a key store against a trust store

Examples:
  # Generate a CA, a server key store and a client key store
  certwatch certs generate --host localhost --client-host probe --output ./certs

  # Display certificate information
  certwatch certs info ./certs/keystore.pem

  # Validate the server key store against the trust store
  certwatch certs validate --keystore ./certs/keystore.pem --truststore ./certs/truststore.pem`,
}

func init() {
	rootCmd.AddCommand(certsCmd)
}
