// Package cert holds the certificate helpers used by the uplink's identity
// policies: PEM encoding, SHA-256 fingerprints for pinning, root pools, and
// self-signed ECDSA P-256 identities for simulated peers and tests.
package cert
