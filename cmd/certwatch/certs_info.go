package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/certwatch/pkg/cli"
	certtls "mercator-hq/certwatch/pkg/security/tls"
)

var infoFlags struct {
	format string
}

var certsInfoCmd = &cobra.Command{
	Use:   "info FILE...",
	Short: "Display certificate details",
	Long: `Display every certificate found in one or more PEM files.

Key stores and trust stores are both accepted; private key blocks are
skipped. For each certificate the subject, issuer, validity window, SANs,
serial number and SHA-256 fingerprint are shown.

Examples:
  # Display the chain of a key store
  certwatch certs info keystore.pem

  # Display a trust store as JSON
  certwatch certs info --format json truststore.pem`,
	Args: cobra.MinimumNArgs(1),
	RunE: displayCertInfo,
}

func init() {
	certsCmd.AddCommand(certsInfoCmd)

	certsInfoCmd.Flags().StringVarP(&infoFlags.format, "format", "f", "text", "output format (text, json, csv)")
}

// certificateEntry is a certificate and the file it was read from.
type certificateEntry struct {
	File  string `json:"file"`
	Index int    `json:"index"`
	*certtls.CertificateInfo
}

type certificateEntries []certificateEntry

func (certificateEntries) Header() []string {
	return []string{"FILE", "#", "SUBJECT", "ISSUER", "NOT BEFORE", "NOT AFTER", "CA", "SANS", "SHA256"}
}

func (e certificateEntries) Rows() [][]string {
	rows := make([][]string, 0, len(e))
	for _, entry := range e {
		sans := append(append([]string{}, entry.DNSNames...), entry.IPAddresses...)
		rows = append(rows, []string{
			entry.File,
			fmt.Sprint(entry.Index),
			entry.Subject,
			entry.Issuer,
			entry.NotBefore.UTC().Format(time.RFC3339),
			entry.NotAfter.UTC().Format(time.RFC3339),
			fmt.Sprint(entry.IsCA),
			strings.Join(sans, ","),
			entry.Fingerprint,
		})
	}
	return rows
}

func displayCertInfo(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(infoFlags.format)
	if err != nil {
		return cli.NewConfigError("--format", err.Error())
	}

	var entries certificateEntries
	for _, file := range args {
		certs, err := certtls.ParseCertificatesFile(file)
		if err != nil {
			return cli.NewCommandError("certs info", fmt.Errorf("failed to read %s: %w", file, err))
		}
		if len(certs) == 0 {
			return cli.NewCommandError("certs info", fmt.Errorf("no certificates found in %s", file))
		}
		for i, cert := range certs {
			entries = append(entries, certificateEntry{
				File:            file,
				Index:           i,
				CertificateInfo: certtls.ExtractCertificateInfo(cert),
			})
		}
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), entries)
}
