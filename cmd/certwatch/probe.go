package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/certwatch/pkg/cli"
	"mercator-hq/certwatch/pkg/config"
	certtls "mercator-hq/certwatch/pkg/security/tls"
	"mercator-hq/certwatch/pkg/server"
	"mercator-hq/certwatch/pkg/telemetry/health"
	"mercator-hq/certwatch/pkg/telemetry/metrics"
)

var probeFlags struct {
	target   string
	once     bool
	count    int
	interval time.Duration
	format   string
	admin    bool
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Connect to a TLS endpoint with the client context",
	Long: `Connect to client.target with the client TLS context and report the
negotiated session.

The client context loads client.tls.key_store (presented when the server asks
for a certificate) and client.tls.trust_store (used to verify the server), and
watches both like the server does. Probing in a loop therefore shows rotated
client credentials being picked up without a restart.

For https:// targets an HTTP GET is sent and, when the target is a certwatch
server, the identity the server read from the client certificate is shown.
For host:port targets only the TLS handshake is performed.

Examples:
  # Probe once and print the result
  certwatch probe --once

  # Probe a specific endpoint five times, as JSON
  certwatch probe --target https://localhost:8443/ --count 5 --format json

  # Probe forever, exposing client metrics on the admin address
  certwatch probe --interval 10s --admin`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVarP(&probeFlags.target, "target", "t", "", "override client.target (https URL or host:port)")
	probeCmd.Flags().BoolVar(&probeFlags.once, "once", false, "probe once and exit")
	probeCmd.Flags().IntVarP(&probeFlags.count, "count", "n", 0, "number of probes (0 = until interrupted)")
	probeCmd.Flags().DurationVar(&probeFlags.interval, "interval", 0, "override client.interval")
	probeCmd.Flags().StringVarP(&probeFlags.format, "format", "f", "text", "output format (text, json, csv)")
	probeCmd.Flags().BoolVar(&probeFlags.admin, "admin", false, "serve metrics and health on the admin address while probing")
}

// probeResult is the outcome of one probe.
type probeResult struct {
	Time           time.Time `json:"time"`
	Target         string    `json:"target"`
	Address        string    `json:"address"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	LatencyMS      float64   `json:"latency_ms"`
	TLSVersion     string    `json:"tls_version,omitempty"`
	CipherSuite    string    `json:"cipher_suite,omitempty"`
	ServerSubject  string    `json:"server_subject,omitempty"`
	ServerNotAfter string    `json:"server_not_after,omitempty"`
	StatusCode     int       `json:"status_code,omitempty"`
	Identity       string    `json:"identity,omitempty"`
}

type probeResults []probeResult

func (probeResults) Header() []string {
	return []string{"TIME", "TARGET", "RESULT", "LATENCY", "TLS", "SERVER", "NOT AFTER", "IDENTITY"}
}

func (r probeResults) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, p := range r {
		result := "ok"
		if !p.Success {
			result = "error: " + p.Error
		}
		rows = append(rows, []string{
			p.Time.Format(time.RFC3339),
			p.Target,
			result,
			strconv.FormatFloat(p.LatencyMS, 'f', 1, 64) + "ms",
			p.TLSVersion,
			p.ServerSubject,
			p.ServerNotAfter,
			p.Identity,
		})
	}
	return rows
}

func runProbe(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(probeFlags.format)
	if err != nil {
		return cli.NewConfigError("--format", err.Error())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	target := cfg.Client.Target
	if probeFlags.target != "" {
		target = probeFlags.target
	}
	if _, err := config.ProbeAddress(target); err != nil {
		return cli.NewConfigError("client.target", err.Error())
	}
	interval := cfg.Client.Interval
	if probeFlags.interval > 0 {
		interval = probeFlags.interval
	}
	count := probeFlags.count
	if probeFlags.once {
		count = 1
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	clientCtx := certtls.NewClientContext(cfg.Client.TLS,
		certtls.WithLogger(logger),
		certtls.WithRecorder(collector.Recorder(string(certtls.RoleClient))),
	)
	if err := clientCtx.Start(ctx); err != nil {
		return cli.NewCommandError("probe", err)
	}
	defer clientCtx.Stop()

	reloads, stopReloads := cli.ReloadSignals()
	defer stopReloads()
	go reloadOnSignal(ctx, reloads, logger, clientCtx.Context)

	if probeFlags.admin && cfg.Admin.Enabled {
		checker := health.New(cfg.Telemetry.Health.CheckTimeout)
		checker.RegisterTLSContext(clientCtx)
		admin := server.NewAdmin(cfg, collector, checker,
			health.NewVersionInfo(Version, GitCommit, BuildDate), logger)
		if err := admin.Listen(); err != nil {
			return cli.NewCommandError("probe", err)
		}
		go func() {
			if err := admin.Serve(ctx); err != nil {
				logger.Error("Admin server failed", "error", err)
			}
		}()
	}

	results := probeLoop(ctx, clientCtx, target, cfg.Client.Timeout, interval, count, logger)

	if count > 0 {
		if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	}

	for _, r := range results {
		if !r.Success {
			return cli.NewUnhealthyError("probe", errors.New(r.Error))
		}
	}
	return nil
}

// probeLoop probes count times, or until ctx is done when count is zero.
// Results are only kept when count is bounded.
func probeLoop(ctx context.Context, client *certtls.ClientContext, target string, timeout, interval time.Duration, count int, logger *slog.Logger) probeResults {
	var results probeResults
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; count == 0 || i < count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-ticker.C:
			}
		}

		r := probe(ctx, client, target, timeout)
		logProbe(logger, r)
		if count > 0 {
			results = append(results, r)
		}
	}
	return results
}

func logProbe(logger *slog.Logger, r probeResult) {
	if !r.Success {
		logger.Warn("Probe failed", "target", r.Target, "error", r.Error, "latency_ms", r.LatencyMS)
		return
	}
	logger.Info("Probe succeeded",
		"target", r.Target,
		"latency_ms", r.LatencyMS,
		"tls_version", r.TLSVersion,
		"server_subject", r.ServerSubject,
		"server_not_after", r.ServerNotAfter,
		"identity", r.Identity,
	)
}

// probe connects once. https targets get an HTTP GET; anything else only a
// handshake.
func probe(ctx context.Context, client *certtls.ClientContext, target string, timeout time.Duration) (r probeResult) {
	r = probeResult{Time: time.Now(), Target: target}
	start := time.Now()
	defer func() {
		r.LatencyMS = float64(time.Since(start)) / float64(time.Millisecond)
	}()

	addr, err := config.ProbeAddress(target)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Address = addr

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var state *tls.ConnectionState
	if strings.HasPrefix(target, "https://") {
		state, err = probeHTTP(ctx, client, target, timeout, &r)
	} else {
		state, err = probeHandshake(ctx, client, addr)
	}
	if state != nil {
		describeSession(&r, state)
	}
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Success = true
	return r
}

func probeHandshake(ctx context.Context, client *certtls.ClientContext, addr string) (*tls.ConnectionState, error) {
	conn, err := client.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil, fmt.Errorf("unexpected connection type %T", conn)
	}
	state := tlsConn.ConnectionState()
	return &state, nil
}

func probeHTTP(ctx context.Context, client *certtls.ClientContext, target string, timeout time.Duration, r *probeResult) (*tls.ConnectionState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	httpClient := client.HTTPClient(timeout)
	defer httpClient.CloseIdleConnections()

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	r.StatusCode = resp.StatusCode
	var identity server.IdentityResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&identity); err == nil {
			r.Identity = identity.Identity
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp.TLS, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.TLS, nil
}

func describeSession(r *probeResult, state *tls.ConnectionState) {
	r.TLSVersion = tls.VersionName(state.Version)
	r.CipherSuite = tls.CipherSuiteName(state.CipherSuite)
	if len(state.PeerCertificates) > 0 {
		leaf := state.PeerCertificates[0]
		r.ServerSubject = leaf.Subject.String()
		r.ServerNotAfter = leaf.NotAfter.UTC().Format(time.RFC3339)
	}
}
