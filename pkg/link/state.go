package link

// AssociationState is the station's association with its access point.
type AssociationState uint8

const (
	// StateDisconnected indicates no association.
	StateDisconnected AssociationState = iota

	// StateConnecting indicates a connect request is in flight.
	StateConnecting

	// StateConnected indicates the station is associated.
	StateConnected
)

// String returns a human-readable state name.
func (s AssociationState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}
