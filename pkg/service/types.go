package service

import (
	"errors"
	"io"
	"log/slog"

	"github.com/mash-protocol/mash-uplink/pkg/connection"
	"github.com/mash-protocol/mash-uplink/pkg/link"
	"github.com/mash-protocol/mash-uplink/pkg/log"
	"github.com/mash-protocol/mash-uplink/pkg/metrics"
	"github.com/mash-protocol/mash-uplink/pkg/netstack"
	"github.com/mash-protocol/mash-uplink/pkg/session"
)

// Service errors.
var (
	ErrNoRadio        = errors.New("radio is required")
	ErrNoStack        = errors.New("network engine is required")
	ErrAlreadyStarted = errors.New("service already started")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateRunning - service tasks are running.
	StateRunning

	// StateStopped - service stopped after cancellation.
	StateStopped

	// StateFailed - service stopped on a fatal error.
	StateFailed
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Dependencies are the collaborators a Service drives.
type Dependencies struct {
	// Radio is the wireless driver. Required.
	Radio link.Radio

	// Stack is the network engine. Required.
	Stack netstack.Engine

	// Entropy drives handshake randomness (default: a new entropy.Source).
	Entropy io.Reader

	// NewSocket constructs transport sockets (default: session.NewTCPSocket).
	NewSocket session.SocketFactory

	// NewEngine constructs session engines (default: TLS with the
	// configured server name and cipher suite).
	NewEngine session.EngineFactory

	// Handler serves established channels (default: connection.Discard).
	Handler connection.Handler

	// Logger for operational output (optional).
	Logger *slog.Logger

	// ProtocolLogger captures connectivity events (optional).
	ProtocolLogger log.Logger

	// Metrics receives connectivity metrics (optional).
	Metrics *metrics.Metrics
}
