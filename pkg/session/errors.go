package session

import (
	"errors"
	"fmt"
)

// Attempt errors.
var (
	// ErrTransport indicates the transport connection failed.
	ErrTransport = errors.New("transport connect failed")

	// ErrHandshake indicates the secure handshake failed.
	ErrHandshake = errors.New("handshake failed")

	// ErrAttemptActive indicates a previous channel is still open.
	ErrAttemptActive = errors.New("previous attempt still active")

	// ErrChannelClosed indicates I/O on a closed channel.
	ErrChannelClosed = errors.New("channel closed")
)

// Handshake policy errors.
var (
	// ErrCipherSuite indicates the peer negotiated an unexpected cipher suite.
	ErrCipherSuite = errors.New("unexpected cipher suite")

	// ErrNoPeerCertificate indicates the peer presented no certificate.
	ErrNoPeerCertificate = errors.New("no peer certificate")

	// ErrFingerprintMismatch indicates the leaf does not match the pin.
	ErrFingerprintMismatch = errors.New("certificate fingerprint mismatch")
)

// Record errors.
var (
	// ErrRecordTooLarge indicates a record does not fit the record buffer.
	ErrRecordTooLarge = errors.New("record too large")

	// ErrRecordEmpty indicates a zero-length record.
	ErrRecordEmpty = errors.New("record is empty")

	// ErrRecordTruncated indicates the stream ended inside a record.
	ErrRecordTruncated = errors.New("record truncated")
)

// Configuration errors.
var (
	ErrInvalidRemote = errors.New("remote endpoint is invalid")
	ErrNoRandomness  = errors.New("randomness source is required")
	ErrNoVerifier    = errors.New("identity verifier is required")
)

// Stage identifies where an attempt failed.
type Stage uint8

const (
	// StageTransport is the socket connect.
	StageTransport Stage = iota

	// StageHandshake is session establishment.
	StageHandshake
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageTransport:
		return "transport"
	case StageHandshake:
		return "handshake"
	default:
		return "unknown"
	}
}

// AttemptError reports a failed attempt and the stage that failed.
// It matches ErrTransport or ErrHandshake with errors.Is.
type AttemptError struct {
	AttemptID string
	Stage     Stage
	Err       error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("session: %s failed: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *AttemptError) Unwrap() error { return e.Err }

// Is matches the sentinel for the failed stage.
func (e *AttemptError) Is(target error) bool {
	switch e.Stage {
	case StageTransport:
		return target == ErrTransport
	case StageHandshake:
		return target == ErrHandshake
	}
	return false
}
