package session

import (
	"crypto/subtle"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/mash-protocol/mash-uplink/pkg/cert"
)

// Verifier decides whether the server's identity is acceptable.
// The chain is in presentation order, leaf first.
type Verifier interface {
	VerifyPeer(serverName string, chain []*x509.Certificate) error
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(serverName string, chain []*x509.Certificate) error

// VerifyPeer calls f.
func (f VerifierFunc) VerifyPeer(serverName string, chain []*x509.Certificate) error {
	return f(serverName, chain)
}

// AcceptAny accepts every server identity. It performs no authentication;
// the driver logs a warning on each handshake that uses it.
type AcceptAny struct{}

// VerifyPeer accepts the peer unconditionally.
func (AcceptAny) VerifyPeer(string, []*x509.Certificate) error { return nil }

// Insecure reports that the policy does not authenticate the peer.
func (AcceptAny) Insecure() bool { return true }

// PinnedFingerprint accepts only a leaf certificate with the given SHA-256
// fingerprint.
type PinnedFingerprint struct {
	Fingerprint cert.Fingerprint
}

// NewPinnedFingerprint parses a hex fingerprint, optionally colon separated.
func NewPinnedFingerprint(s string) (*PinnedFingerprint, error) {
	fp, err := cert.ParseFingerprint(s)
	if err != nil {
		return nil, err
	}
	return &PinnedFingerprint{Fingerprint: fp}, nil
}

// VerifyPeer compares the leaf fingerprint with the pin.
func (p *PinnedFingerprint) VerifyPeer(_ string, chain []*x509.Certificate) error {
	if len(chain) == 0 {
		return ErrNoPeerCertificate
	}
	got := cert.FingerprintOf(chain[0])
	if subtle.ConstantTimeCompare(got[:], p.Fingerprint[:]) != 1 {
		return fmt.Errorf("%w: got %s", ErrFingerprintMismatch, got)
	}
	return nil
}

// RootPool verifies the chain against configured roots and checks the
// server name against the leaf.
type RootPool struct {
	// Roots are the trusted CA certificates.
	Roots *x509.CertPool

	// ServerName overrides the name passed by the engine (optional).
	ServerName string

	// Now returns the verification time (default: time.Now).
	Now func() time.Time
}

// VerifyPeer verifies the chain and the server name.
func (p *RootPool) VerifyPeer(serverName string, chain []*x509.Certificate) error {
	if len(chain) == 0 {
		return ErrNoPeerCertificate
	}
	if p.ServerName != "" {
		serverName = p.ServerName
	}

	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	opts := x509.VerifyOptions{
		Roots:         p.Roots,
		Intermediates: intermediates,
		DNSName:       serverName,
		CurrentTime:   now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	if _, err := chain[0].Verify(opts); err != nil {
		return fmt.Errorf("certificate chain verification failed: %w", err)
	}
	return nil
}

// insecure reports whether v skips authentication.
func insecure(v Verifier) bool {
	i, ok := v.(interface{ Insecure() bool })
	return ok && i.Insecure()
}

// Compile-time interface satisfaction checks.
var (
	_ Verifier = AcceptAny{}
	_ Verifier = (*PinnedFingerprint)(nil)
	_ Verifier = (*RootPool)(nil)
	_ Verifier = VerifierFunc(nil)
)
