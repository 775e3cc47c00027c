package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/certwatch/pkg/config"
	"mercator-hq/certwatch/pkg/telemetry/health"
	"mercator-hq/certwatch/pkg/telemetry/metrics"
)

func testAdminConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Admin = config.AdminConfig{Enabled: true, ListenAddress: "127.0.0.1:0"}
	cfg.Telemetry.Metrics = config.MetricsConfig{Enabled: true, Path: "/metrics", Namespace: "test", Subsystem: "tls"}
	cfg.Telemetry.Health = config.HealthConfig{
		Enabled:       true,
		LivenessPath:  "/health",
		ReadinessPath: "/ready",
		VersionPath:   "/version",
	}
	return cfg
}

func TestAdmin_Routes(t *testing.T) {
	cfg := testAdminConfig()
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
	collector.Recorder("server").RecordReload("startup", "", time.Millisecond, nil)

	checker := health.New(time.Second)
	checker.RegisterCheck("tls_server", func(context.Context) error { return errors.New("not loaded") })

	admin := NewAdmin(cfg, collector, checker, health.NewVersionInfo("1.0.0", "abc", "today"), discardLogger())

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{"/metrics", http.StatusOK, "test_tls_reloads_total"},
		{"/health", http.StatusOK, `"status":"ok"`},
		{"/ready", http.StatusServiceUnavailable, "not loaded"},
		{"/version", http.StatusOK, `"version":"1.0.0"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			admin.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body does not contain %q:\n%s", tt.contains, rec.Body.String())
			}
		})
	}
}

func TestAdmin_DisabledEndpoints(t *testing.T) {
	cfg := testAdminConfig()
	cfg.Telemetry.Metrics.Enabled = false
	cfg.Telemetry.Health.Enabled = false
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())

	admin := NewAdmin(cfg, collector, health.New(time.Second), health.VersionInfo{}, discardLogger())
	for _, path := range []string{"/metrics", "/ready"} {
		rec := httptest.NewRecorder()
		admin.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s code = %d, want 404", path, rec.Code)
		}
	}
}

func TestAdmin_Serve(t *testing.T) {
	admin := NewAdmin(testAdminConfig(), nil, health.New(time.Second), health.VersionInfo{}, discardLogger())
	if err := admin.Listen(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- admin.Serve(ctx) }()

	resp, err := http.Get("http://" + admin.Addr().String() + "/ready")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var status health.HealthStatus
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != health.StatusReady {
		t.Errorf("status = %q, want ready", status.Status)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
