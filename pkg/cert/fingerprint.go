package cert

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// FingerprintSize is the length of a SHA-256 certificate fingerprint.
const FingerprintSize = sha256.Size

// ErrInvalidFingerprint is returned for malformed fingerprint strings.
var ErrInvalidFingerprint = errors.New("invalid certificate fingerprint")

// Fingerprint is the SHA-256 digest of a certificate's DER encoding.
type Fingerprint [FingerprintSize]byte

// FingerprintOf returns the fingerprint of cert.
func FingerprintOf(cert *x509.Certificate) Fingerprint {
	return sha256.Sum256(cert.Raw)
}

// ParseFingerprint parses 64 hex characters, optionally separated by colons.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	clean := strings.ReplaceAll(strings.TrimSpace(s), ":", "")
	if len(clean) != 2*FingerprintSize {
		return fp, fmt.Errorf("%w: want %d hex characters, got %d", ErrInvalidFingerprint, 2*FingerprintSize, len(clean))
	}
	if _, err := hex.Decode(fp[:], []byte(clean)); err != nil {
		return fp, fmt.Errorf("%w: %v", ErrInvalidFingerprint, err)
	}
	return fp, nil
}

// String returns the lowercase hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}
