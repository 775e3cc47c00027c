package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"mercator-hq/certwatch/pkg/cli"
	"mercator-hq/certwatch/pkg/config"
	certtls "mercator-hq/certwatch/pkg/security/tls"
	"mercator-hq/certwatch/pkg/server"
	"mercator-hq/certwatch/pkg/telemetry/health"
	"mercator-hq/certwatch/pkg/telemetry/metrics"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTPS server",
	Long: `Start the HTTPS server with the server TLS context.

The server loads server.tls.key_store and server.tls.trust_store, starts the
credential watcher and serves every handshake with the credentials loaded at
that moment. The default route answers with the client's identity. Metrics
and health endpoints are served on the admin address.

Send SIGHUP to reload both stores immediately.

Examples:
  # Start with a config file
  certwatch serve --config /etc/certwatch/certwatch.yaml

  # Override listen address
  certwatch serve --listen 0.0.0.0:8443

  # Validate config and load the stores without serving
  certwatch serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "load the stores and exit without serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	serverCtx := certtls.NewServerContext(cfg.Server.TLS,
		certtls.WithLogger(logger),
		certtls.WithRecorder(collector.Recorder(string(certtls.RoleServer))),
	)
	if err := serverCtx.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer serverCtx.Stop()

	if serveFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid, stores loaded")
		return nil
	}

	srv := server.New(cfg.Server, serverCtx,
		server.WithLogger(logger),
		server.WithMetrics(collector),
	)
	if err := srv.Listen(); err != nil {
		return cli.NewCommandError("serve", err)
	}

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterTLSContext(serverCtx)
	checker.RegisterCheck("https_server", srv.Health)

	reloads, stopReloads := cli.ReloadSignals()
	defer stopReloads()
	go reloadOnSignal(ctx, reloads, logger, serverCtx.Context)

	printBanner(cmd, cfg, srv)

	var runners []func(context.Context) error
	runners = append(runners, srv.Serve)
	if cfg.Admin.Enabled {
		admin := server.NewAdmin(cfg, collector, checker,
			health.NewVersionInfo(Version, GitCommit, BuildDate), logger)
		if err := admin.Listen(); err != nil {
			return cli.NewCommandError("serve", err)
		}
		runners = append(runners, admin.Serve)
	}

	if err := runAll(ctx, runners...); err != nil {
		return cli.NewCommandError("serve", err)
	}
	return nil
}

// runAll runs every function until ctx is cancelled or one of them fails,
// in which case the others are cancelled too. It returns the first error.
func runAll(ctx context.Context, fns ...func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, fn := range fns {
		wg.Add(1)
		go func(fn func(context.Context) error) {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				once.Do(func() { firstErr = err })
				cancel()
			}
		}(fn)
	}
	wg.Wait()
	return firstErr
}

// reloadOnSignal reloads the contexts whenever a value arrives on signals.
func reloadOnSignal(ctx context.Context, signals <-chan os.Signal, logger *slog.Logger, contexts ...*certtls.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			for _, c := range contexts {
				if err := c.ReloadFrom("signal"); err != nil {
					logger.Warn("Reload on signal failed", "role", c.Role(), "error", err)
					continue
				}
				logger.Info("Reloaded SSL credentials on signal", "role", c.Role())
			}
		}
	}
}

func printBanner(cmd *cobra.Command, cfg *config.Config, srv *server.Server) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "certwatch %s\n", Version)
	fmt.Fprintf(out, "  HTTPS:       https://%s/\n", srv.Addr())
	fmt.Fprintf(out, "  Key store:   %s\n", cfg.Server.TLS.KeyStore)
	if cfg.Server.TLS.TrustStore != "" {
		fmt.Fprintf(out, "  Trust store: %s (client auth: %s)\n", cfg.Server.TLS.TrustStore, cfg.Server.TLS.ClientAuthType)
	}
	if cfg.Admin.Enabled {
		fmt.Fprintf(out, "  Admin:       http://%s\n", cfg.Admin.ListenAddress)
	}
}
