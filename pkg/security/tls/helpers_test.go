package tls

import (
	"crypto/x509"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testPKI is a CA plus a leaf issued by it, written to a temp directory as a
// key store and a trust store.
type testPKI struct {
	ca         *Authority
	dir        string
	keyStore   string
	trustStore string
	leaf       *x509.Certificate
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()

	ca, err := GenerateAuthority(CertificateRequest{
		Hosts:        []string{"certwatch test ca"},
		Organization: "certwatch",
		Validity:     24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("GenerateAuthority() error = %v", err)
	}

	dir := t.TempDir()
	p := &testPKI{
		ca:         ca,
		dir:        dir,
		keyStore:   filepath.Join(dir, "keystore.pem"),
		trustStore: filepath.Join(dir, "truststore.pem"),
	}
	p.leaf = p.issue(t, "localhost", 24*time.Hour)
	writeFile(t, p.trustStore, ca.CertificatePEM())
	return p
}

// issue writes a new leaf for host to the key store and returns it.
func (p *testPKI) issue(t *testing.T, host string, validity time.Duration) *x509.Certificate {
	t.Helper()

	data, leaf, err := p.ca.Issue(CertificateRequest{
		Hosts:    []string{host, "127.0.0.1"},
		Validity: validity,
	})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	writeFile(t, p.keyStore, data)
	return leaf
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
