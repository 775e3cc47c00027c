package main

import (
	"crypto/x509"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/certwatch/pkg/cli"
	certtls "mercator-hq/certwatch/pkg/security/tls"
)

var certsValidateFlags struct {
	keyStore      string
	trustStore    string
	expiryWarning time.Duration
	format        string
}

var certsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a key store and trust store",
	Long: `Validate a key store, a trust store, or both.

This command checks:
  - The key store parses and its private key matches the leaf
  - The leaf certificate is inside its validity window
  - Every trust store certificate is inside its validity window
  - The leaf chains to the trust store (when both are given)
  - Certificates expiring within --expiry-warning are reported

The command exits with status 3 when a check fails.

Examples:
  # Validate a key store
  certwatch certs validate --keystore keystore.pem

  # Validate a key store against a trust store
  certwatch certs validate --keystore keystore.pem --truststore truststore.pem

  # Warn about certificates expiring within 60 days, as JSON
  certwatch certs validate --keystore keystore.pem --expiry-warning 1440h --format json`,
	RunE: validateStores,
}

func init() {
	certsCmd.AddCommand(certsValidateCmd)

	certsValidateCmd.Flags().StringVar(&certsValidateFlags.keyStore, "keystore", "", "key store location")
	certsValidateCmd.Flags().StringVar(&certsValidateFlags.trustStore, "truststore", "", "trust store location")
	certsValidateCmd.Flags().DurationVar(&certsValidateFlags.expiryWarning, "expiry-warning", certtls.DefaultExpiryWarning, "warn about certificates expiring within this window")
	certsValidateCmd.Flags().StringVarP(&certsValidateFlags.format, "format", "f", "text", "output format (text, json, csv)")
	certsValidateCmd.MarkFlagsOneRequired("keystore", "truststore")
}

func validateStores(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(certsValidateFlags.format)
	if err != nil {
		return cli.NewConfigError("--format", err.Error())
	}

	checks := checkStores("", certsValidateFlags.keyStore, certsValidateFlags.trustStore, certsValidateFlags.expiryWarning, time.Now())
	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), checks); err != nil {
		return err
	}
	if err := checks.err(); err != nil {
		return cli.NewUnhealthyError("certs validate", err)
	}
	return nil
}

// Check outcomes.
const (
	checkOK      = "ok"
	checkWarning = "warning"
	checkError   = "error"
)

// storeCheck is the outcome of one store check.
type storeCheck struct {
	Role     string `json:"role,omitempty"`
	Check    string `json:"check"`
	Location string `json:"location"`
	Status   string `json:"status"`
	Detail   string `json:"detail,omitempty"`
}

type storeChecks []storeCheck

func (storeChecks) Header() []string {
	return []string{"ROLE", "CHECK", "LOCATION", "STATUS", "DETAIL"}
}

func (c storeChecks) Rows() [][]string {
	rows := make([][]string, 0, len(c))
	for _, check := range c {
		role := check.Role
		if role == "" {
			role = "-"
		}
		rows = append(rows, []string{role, check.Check, check.Location, check.Status, check.Detail})
	}
	return rows
}

// err summarizes the failed checks, or returns nil.
func (c storeChecks) err() error {
	failed := 0
	var first storeCheck
	for _, check := range c {
		if check.Status == checkError {
			if failed == 0 {
				first = check
			}
			failed++
		}
	}
	switch failed {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s: %s", first.Check, first.Detail)
	default:
		return fmt.Errorf("%d checks failed, first %s: %s", failed, first.Check, first.Detail)
	}
}

// checkStores loads the stores the way a TLS context does and reports each
// step. Empty locations are skipped.
func checkStores(role, keyStore, trustStore string, within time.Duration, now time.Time) storeChecks {
	var checks storeChecks
	add := func(check, location, status, detail string) {
		checks = append(checks, storeCheck{Role: role, Check: check, Location: location, Status: status, Detail: detail})
	}

	var leaf *x509.Certificate
	if keyStore != "" {
		cert, err := certtls.LoadKeyStore(keyStore)
		if err != nil {
			add("key_store", keyStore, checkError, err.Error())
		} else {
			leaf = cert.Leaf
			status, detail := expiryStatus(leaf, within, now)
			add("key_store", keyStore, status, detail)
		}
	}

	var pool *x509.CertPool
	if trustStore != "" {
		roots, anchors, err := certtls.LoadTrustStore(trustStore)
		if err != nil {
			add("trust_store", trustStore, checkError, err.Error())
		} else {
			pool = roots
			for _, anchor := range anchors {
				if err := certtls.ValidateX509Certificate(anchor, now); err != nil {
					add("trust_anchor", trustStore, checkError, anchor.Subject.String()+": "+err.Error())
					continue
				}
				status, detail := expiryStatus(anchor, within, now)
				add("trust_anchor", trustStore, status, detail)
			}
		}
	}

	if leaf != nil && pool != nil {
		if err := certtls.ValidateCertificateChain(leaf, pool, x509.ExtKeyUsageAny); err != nil {
			add("chain", keyStore, checkError, err.Error())
		} else {
			add("chain", keyStore, checkOK, "verified against "+trustStore)
		}
	}

	return checks
}

func expiryStatus(cert *x509.Certificate, within time.Duration, now time.Time) (string, string) {
	detail := fmt.Sprintf("%s, expires %s", cert.Subject.String(), cert.NotAfter.UTC().Format(time.RFC3339))
	if cert.NotAfter.Sub(now) < within {
		return checkWarning, detail
	}
	return checkOK, detail
}
