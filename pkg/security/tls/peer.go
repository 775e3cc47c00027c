package tls

import (
	"crypto/x509"
	"net/http"
)

// PeerCertificate returns the leaf certificate presented by the client of r,
// or nil when the request did not use TLS or no certificate was sent.
func PeerCertificate(r *http.Request) *x509.Certificate {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return nil
	}
	return r.TLS.PeerCertificates[0]
}

// PeerIdentity extracts an identity from a peer certificate.
//
// Supported identity sources:
//   - "subject.CN": Common Name from Subject (default)
//   - "subject.OU": Organizational Unit from Subject
//   - "subject.O": Organization from Subject
//   - "SAN": First DNS name from Subject Alternative Names
//
// Returns an empty string if the identity cannot be extracted.
func PeerIdentity(cert *x509.Certificate, source string) string {
	if cert == nil {
		return ""
	}

	switch source {
	case "subject.CN", "":
		return cert.Subject.CommonName

	case "subject.OU":
		if len(cert.Subject.OrganizationalUnit) > 0 {
			return cert.Subject.OrganizationalUnit[0]
		}

	case "subject.O":
		if len(cert.Subject.Organization) > 0 {
			return cert.Subject.Organization[0]
		}

	case "SAN":
		if len(cert.DNSNames) > 0 {
			return cert.DNSNames[0]
		}
	}

	return ""
}
