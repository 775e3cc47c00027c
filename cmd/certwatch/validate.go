package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/certwatch/pkg/cli"
	certtls "mercator-hq/certwatch/pkg/security/tls"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and the stores it names",
	Long: `Validate the configuration file, then load the key store and trust store
of the server and client TLS contexts the same way serve and probe would.

The command exits with status 2 when the configuration is invalid and with
status 3 when a store cannot be loaded, has expired, or does not chain to
its trust store.

Examples:
  # Validate the default configuration
  certwatch validate

  # Validate a specific file, as JSON
  certwatch validate --config certwatch.yaml --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.format, "format", "f", "text", "output format (text, json, csv)")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.format)
	if err != nil {
		return cli.NewConfigError("--format", err.Error())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	now := time.Now()
	var checks storeChecks
	checks = append(checks, roleChecks(certtls.RoleServer, cfg.Server.TLS, now)...)
	checks = append(checks, roleChecks(certtls.RoleClient, cfg.Client.TLS, now)...)

	if len(checks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid, no stores configured")
		return nil
	}
	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), checks); err != nil {
		return err
	}
	if err := checks.err(); err != nil {
		return cli.NewUnhealthyError("validate", err)
	}
	return nil
}

func roleChecks(role certtls.Role, cfg certtls.Config, now time.Time) storeChecks {
	within := cfg.ExpiryWarning
	if within == 0 {
		within = certtls.DefaultExpiryWarning
	}
	return checkStores(string(role), cfg.KeyStore, cfg.TrustStore, within, now)
}
