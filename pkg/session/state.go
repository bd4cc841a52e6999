package session

// State is the per-attempt session state.
type State uint8

const (
	// StateIdle indicates no attempt is in progress.
	StateIdle State = iota

	// StateTransportConnecting indicates the socket is connecting.
	StateTransportConnecting

	// StateTransportConnected indicates the socket is connected.
	StateTransportConnected

	// StateHandshakeInProgress indicates the secure handshake is running.
	StateHandshakeInProgress

	// StateSessionEstablished indicates a live secure channel.
	StateSessionEstablished

	// StateFailed indicates the attempt failed.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTransportConnecting:
		return "TRANSPORT_CONNECTING"
	case StateTransportConnected:
		return "TRANSPORT_CONNECTED"
	case StateHandshakeInProgress:
		return "HANDSHAKE_IN_PROGRESS"
	case StateSessionEstablished:
		return "SESSION_ESTABLISHED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
