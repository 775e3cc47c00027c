package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/certwatch/pkg/cli"
	certtls "mercator-hq/certwatch/pkg/security/tls"
)

// newTestCommand returns a command whose output goes to the returned buffer.
func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	return cmd, &out
}

// generate runs certs generate into dir and returns its output.
func generate(t *testing.T, dir, clientHosts string, selfSigned bool) string {
	t.Helper()

	saved := generateFlags
	t.Cleanup(func() { generateFlags = saved })
	generateFlags.hosts = "localhost,127.0.0.1"
	generateFlags.clientHosts = clientHosts
	generateFlags.org = "certwatch"
	generateFlags.validity = 1
	generateFlags.keySize = 2048
	generateFlags.output = dir
	generateFlags.selfSigned = selfSigned

	cmd, out := newTestCommand()
	if err := generateStores(cmd, nil); err != nil {
		t.Fatalf("generateStores() error = %v", err)
	}
	return out.String()
}

func TestGenerateStores(t *testing.T) {
	dir := t.TempDir()
	out := generate(t, dir, "probe.certwatch.test", false)

	for _, name := range []string{trustStoreFile, keyStoreFile, clientKeyStoreFile} {
		if !strings.Contains(out, name) {
			t.Errorf("output does not mention %s:\n%s", name, out)
		}
	}

	info, err := os.Stat(filepath.Join(dir, keyStoreFile))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key store mode = %o, want 600", perm)
	}

	checks := checkStores("server", filepath.Join(dir, keyStoreFile), filepath.Join(dir, trustStoreFile), time.Hour, time.Now())
	if err := checks.err(); err != nil {
		t.Fatalf("server stores do not validate: %v", err)
	}
	checks = checkStores("client", filepath.Join(dir, clientKeyStoreFile), filepath.Join(dir, trustStoreFile), time.Hour, time.Now())
	if err := checks.err(); err != nil {
		t.Fatalf("client stores do not validate: %v", err)
	}

	cert, err := certtls.LoadKeyStore(filepath.Join(dir, clientKeyStoreFile))
	if err != nil {
		t.Fatal(err)
	}
	if cert.Leaf.Subject.CommonName != "probe.certwatch.test" {
		t.Errorf("client CN = %q, want probe.certwatch.test", cert.Leaf.Subject.CommonName)
	}
}

func TestGenerateStores_SelfSigned(t *testing.T) {
	dir := t.TempDir()
	generate(t, dir, "", true)

	trust, err := os.ReadFile(filepath.Join(dir, trustStoreFile))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(trust, []byte("PRIVATE KEY")) {
		t.Error("trust store contains a private key")
	}

	checks := checkStores("", filepath.Join(dir, keyStoreFile), filepath.Join(dir, trustStoreFile), time.Hour, time.Now())
	if err := checks.err(); err != nil {
		t.Fatalf("self-signed stores do not validate: %v", err)
	}
}

func TestGenerateStores_InvalidFlags(t *testing.T) {
	tests := []struct {
		name   string
		modify func()
	}{
		{"key size", func() { generateFlags.keySize = 1024 }},
		{"validity", func() { generateFlags.validity = 0 }},
		{"no hosts", func() { generateFlags.hosts = " , " }},
		{"client without CA", func() {
			generateFlags.selfSigned = true
			generateFlags.clientHosts = "probe"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved := generateFlags
			defer func() { generateFlags = saved }()
			generateFlags.hosts = "localhost"
			generateFlags.validity = 1
			generateFlags.keySize = 2048
			generateFlags.output = t.TempDir()
			tt.modify()

			cmd, _ := newTestCommand()
			err := generateStores(cmd, nil)
			if got := cli.ExitCode(err); got != cli.ExitConfig {
				t.Errorf("ExitCode() = %d, want %d (err = %v)", got, cli.ExitConfig, err)
			}
		})
	}
}

func TestCheckStores(t *testing.T) {
	dir := t.TempDir()
	generate(t, dir, "", false)
	keyStore := filepath.Join(dir, keyStoreFile)
	trustStore := filepath.Join(dir, trustStoreFile)

	other := t.TempDir()
	generate(t, other, "", false)
	otherTrust := filepath.Join(other, trustStoreFile)

	tests := []struct {
		name       string
		keyStore   string
		trustStore string
		within     time.Duration
		wantStatus map[string]string
		wantErr    bool
	}{
		{
			name:       "valid",
			keyStore:   keyStore,
			trustStore: trustStore,
			within:     time.Hour,
			wantStatus: map[string]string{"key_store": checkOK, "trust_anchor": checkOK, "chain": checkOK},
		},
		{
			name:       "expiring soon",
			keyStore:   keyStore,
			within:     48 * time.Hour,
			wantStatus: map[string]string{"key_store": checkWarning},
		},
		{
			name:       "foreign trust store",
			keyStore:   keyStore,
			trustStore: otherTrust,
			within:     time.Hour,
			wantStatus: map[string]string{"key_store": checkOK, "chain": checkError},
			wantErr:    true,
		},
		{
			name:       "missing key store",
			keyStore:   filepath.Join(dir, "missing.pem"),
			within:     time.Hour,
			wantStatus: map[string]string{"key_store": checkError},
			wantErr:    true,
		},
		{
			name:       "missing trust store",
			trustStore: filepath.Join(dir, "missing.pem"),
			within:     time.Hour,
			wantStatus: map[string]string{"trust_store": checkError},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checks := checkStores("server", tt.keyStore, tt.trustStore, tt.within, time.Now())

			got := make(map[string]string)
			for _, c := range checks {
				if c.Role != "server" {
					t.Errorf("check %s role = %q, want server", c.Check, c.Role)
				}
				got[c.Check] = c.Status
			}
			for check, want := range tt.wantStatus {
				if got[check] != want {
					t.Errorf("%s status = %q, want %q (all: %v)", check, got[check], want, checks)
				}
			}
			if err := checks.err(); (err != nil) != tt.wantErr {
				t.Errorf("err() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckStores_ExpiredKeyStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "expired.pem")
	data, _, err := certtls.SelfSigned(certtls.CertificateRequest{
		Hosts:     []string{"localhost"},
		Validity:  time.Hour,
		NotBefore: time.Now().Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	saved := certsValidateFlags
	defer func() { certsValidateFlags = saved }()
	certsValidateFlags.keyStore = path
	certsValidateFlags.trustStore = ""
	certsValidateFlags.expiryWarning = time.Hour
	certsValidateFlags.format = "text"

	cmd, out := newTestCommand()
	err = validateStores(cmd, nil)
	if got := cli.ExitCode(err); got != cli.ExitUnhealthy {
		t.Fatalf("ExitCode() = %d, want %d (err = %v)", got, cli.ExitUnhealthy, err)
	}
	if !strings.Contains(out.String(), "expired") {
		t.Errorf("output does not report expiry:\n%s", out.String())
	}
}

func TestStoreChecksErr(t *testing.T) {
	checks := storeChecks{
		{Check: "key_store", Status: checkOK},
		{Check: "chain", Status: checkError, Detail: "unknown authority"},
		{Check: "trust_anchor", Status: checkError, Detail: "expired"},
	}
	err := checks.err()
	if err == nil {
		t.Fatal("err() = nil, want error")
	}
	if want := "2 checks failed, first chain: unknown authority"; err.Error() != want {
		t.Errorf("err() = %q, want %q", err.Error(), want)
	}

	if err := (storeChecks{{Status: checkWarning}}).err(); err != nil {
		t.Errorf("warnings should not fail: %v", err)
	}
}

func TestDisplayCertInfo(t *testing.T) {
	dir := t.TempDir()
	generate(t, dir, "", false)

	saved := infoFlags
	defer func() { infoFlags = saved }()
	infoFlags.format = "json"

	cmd, out := newTestCommand()
	if err := displayCertInfo(cmd, []string{filepath.Join(dir, keyStoreFile)}); err != nil {
		t.Fatalf("displayCertInfo() error = %v", err)
	}

	var entries []struct {
		File    string   `json:"file"`
		Index   int      `json:"index"`
		Subject string   `json:"subject"`
		IsCA    bool     `json:"is_ca"`
		IPs     []string `json:"ip_addresses"`
	}
	if err := json.Unmarshal(out.Bytes(), &entries); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out.String())
	}
	if len(entries) != 2 {
		t.Fatalf("got %d certificates, want leaf and CA", len(entries))
	}
	if entries[0].IsCA || !entries[1].IsCA {
		t.Errorf("IsCA = %v, %v, want false, true", entries[0].IsCA, entries[1].IsCA)
	}
	if len(entries[0].IPs) != 1 || entries[0].IPs[0] != "127.0.0.1" {
		t.Errorf("leaf IPs = %v, want [127.0.0.1]", entries[0].IPs)
	}
}

func TestDisplayCertInfo_NoCertificates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.pem")
	if err := os.WriteFile(path, []byte("not pem"), 0600); err != nil {
		t.Fatal(err)
	}

	cmd, _ := newTestCommand()
	err := displayCertInfo(cmd, []string{path})
	var cmdErr *cli.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error = %v, want CommandError", err)
	}
}

func TestSplitHosts(t *testing.T) {
	got := splitHosts(" localhost, ,127.0.0.1,")
	if len(got) != 2 || got[0] != "localhost" || got[1] != "127.0.0.1" {
		t.Errorf("splitHosts() = %v", got)
	}
	if got := splitHosts(""); len(got) != 0 {
		t.Errorf("splitHosts(\"\") = %v, want empty", got)
	}
}
