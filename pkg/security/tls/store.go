package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"mercator-hq/certwatch/pkg/security/watch"
)

// LoadKeyStore reads a PEM key store: the certificate chain, leaf first,
// followed by the private key in the same file. The leaf must be inside its
// validity window.
func LoadKeyStore(location string) (*tls.Certificate, error) {
	data, err := readStore(watch.KeyStore, location)
	if err != nil {
		return nil, err
	}

	cert, err := tls.X509KeyPair(data, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key store %s: %w", location, err)
	}

	if _, err := ValidateCertificate(&cert); err != nil {
		return nil, fmt.Errorf("invalid key store %s: %w", location, err)
	}

	return &cert, nil
}

// LoadTrustStore reads a PEM bundle of CA certificates.
func LoadTrustStore(location string) (*x509.CertPool, []*x509.Certificate, error) {
	data, err := readStore(watch.TrustStore, location)
	if err != nil {
		return nil, nil, err
	}

	certs, err := parseCertificates(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse trust store %s: %w", location, err)
	}
	if len(certs) == 0 {
		return nil, nil, fmt.Errorf("trust store %s contains no certificates", location)
	}

	pool := x509.NewCertPool()
	for _, cert := range certs {
		pool.AddCert(cert)
	}

	return pool, certs, nil
}

// ParseCertificatesFile returns every certificate in a PEM file, ignoring
// other block types such as private keys.
func ParseCertificatesFile(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator config
	if err != nil {
		return nil, err
	}
	return parseCertificates(data)
}

func parseCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// readStore resolves location the same way the credential watcher does, so
// the file that is loaded is the file that is watched.
func readStore(kind watch.StoreKind, location string) ([]byte, error) {
	ref, err := watch.ResolveLocation(kind, location)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, fmt.Errorf("%s location is empty", kind)
	}

	data, err := os.ReadFile(ref.Path) // #nosec G304 - path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", kind, err)
	}
	return data, nil
}
