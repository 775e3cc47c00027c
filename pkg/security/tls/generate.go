package tls

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"
)

// CertificateRequest describes a certificate to issue.
type CertificateRequest struct {
	// Hosts are DNS names and IP addresses. The first one becomes the
	// common name.
	Hosts        []string
	Organization string
	Validity     time.Duration
	// KeySize is the RSA modulus size in bits. Default: 2048
	KeySize int
	// NotBefore defaults to now.
	NotBefore time.Time
}

// Authority is a certificate authority able to issue key stores. Its
// certificate PEM is what goes into a trust store.
type Authority struct {
	Certificate *x509.Certificate
	key         *rsa.PrivateKey
}

// GenerateAuthority creates a self-signed CA.
func GenerateAuthority(req CertificateRequest) (*Authority, error) {
	key, template, err := newTemplate(req)
	if err != nil {
		return nil, err
	}

	template.IsCA = true
	template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature
	template.ExtKeyUsage = nil

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return &Authority{Certificate: cert, key: key}, nil
}

// CertificatePEM returns the CA certificate in PEM form.
func (a *Authority) CertificatePEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: a.Certificate.Raw})
}

// Issue signs a leaf certificate usable for both server and client
// authentication and returns it as a key store: the leaf, the CA certificate
// and the private key in one PEM document.
func (a *Authority) Issue(req CertificateRequest) ([]byte, *x509.Certificate, error) {
	key, template, err := newTemplate(req)
	if err != nil {
		return nil, nil, err
	}

	der, err := x509.CreateCertificate(rand.Reader, template, a.Certificate, &key.PublicKey, a.key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return EncodeKeyStore(key, der, a.Certificate.Raw), leaf, nil
}

// SelfSigned issues a self-signed leaf certificate as a key store.
func SelfSigned(req CertificateRequest) ([]byte, *x509.Certificate, error) {
	key, template, err := newTemplate(req)
	if err != nil {
		return nil, nil, err
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return EncodeKeyStore(key, der), leaf, nil
}

// EncodeKeyStore writes the chain followed by the PKCS#1 private key.
func EncodeKeyStore(key *rsa.PrivateKey, chain ...[]byte) []byte {
	var buf bytes.Buffer
	for _, der := range chain {
		_ = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: der})
	}
	_ = pem.Encode(&buf, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return buf.Bytes()
}

func newTemplate(req CertificateRequest) (*rsa.PrivateKey, *x509.Certificate, error) {
	if len(req.Hosts) == 0 {
		return nil, nil, fmt.Errorf("at least one host is required")
	}
	if req.Validity <= 0 {
		return nil, nil, fmt.Errorf("validity must be positive")
	}

	keySize := req.KeySize
	if keySize == 0 {
		keySize = 2048
	}

	key, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := req.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now().Add(-time.Minute)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: strings.TrimSpace(req.Hosts[0]),
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(req.Validity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	if req.Organization != "" {
		template.Subject.Organization = []string{req.Organization}
	}

	for _, host := range req.Hosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	return key, template, nil
}
