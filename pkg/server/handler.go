package server

import (
	"crypto/tls"
	"encoding/json"
	"net/http"

	certtls "mercator-hq/certwatch/pkg/security/tls"
	"mercator-hq/certwatch/pkg/telemetry/logging"
)

// IdentityResponse describes the TLS session of a request: who the client
// is according to its certificate and which server certificate it saw.
type IdentityResponse struct {
	Identity          string                   `json:"identity,omitempty"`
	Subject           string                   `json:"subject,omitempty"`
	Issuer            string                   `json:"issuer,omitempty"`
	Verified          bool                     `json:"verified"`
	TLSVersion        string                   `json:"tls_version"`
	CipherSuite       string                   `json:"cipher_suite"`
	ServerName        string                   `json:"server_name,omitempty"`
	ServerCertificate *certtls.CertificateInfo `json:"server_certificate,omitempty"`
	RequestID         string                   `json:"request_id,omitempty"`
}

type identityHandler struct {
	tlsContext *certtls.ServerContext
	source     string
}

func (h *identityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if r.TLS == nil {
		writeError(w, r, http.StatusBadRequest, "tls required")
		return
	}

	resp := IdentityResponse{
		Verified:    len(r.TLS.VerifiedChains) > 0,
		TLSVersion:  tls.VersionName(r.TLS.Version),
		CipherSuite: tls.CipherSuiteName(r.TLS.CipherSuite),
		ServerName:  r.TLS.ServerName,
		RequestID:   logging.RequestID(r.Context()),
	}
	if peer := certtls.PeerCertificate(r); peer != nil {
		resp.Identity = certtls.PeerIdentity(peer, h.source)
		resp.Subject = peer.Subject.String()
		resp.Issuer = peer.Issuer.String()
	}
	if m := h.tlsContext.Material(); m != nil && m.Leaf != nil {
		resp.ServerCertificate = certtls.ExtractCertificateInfo(m.Leaf)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}
