package log

import (
	"strings"
	"time"
)

// Event is a connectivity event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the connection attempt (UUID); empty for
	// link and stack events.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Layer where the event was captured.
	Layer Layer `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// RemoteAddr is the peer address (IP:port), when known.
	RemoteAddr string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	StateChange *StateChangeEvent `cbor:"10,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"11,keyasint,omitempty"`
	Data        *DataEvent        `cbor:"12,keyasint,omitempty"`
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerLink is wireless association.
	LayerLink Layer = 0
	// LayerStack is IP stack readiness.
	LayerStack Layer = 1
	// LayerTransport is the TCP socket.
	LayerTransport Layer = 2
	// LayerSession is the TLS session.
	LayerSession Layer = 3
	// LayerApplication is payload exchange over an established channel.
	LayerApplication Layer = 4
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerLink:
		return "LINK"
	case LayerStack:
		return "STACK"
	case LayerTransport:
		return "TRANSPORT"
	case LayerSession:
		return "SESSION"
	case LayerApplication:
		return "APPLICATION"
	default:
		return "UNKNOWN"
	}
}

// ParseLayer parses a layer name as printed by Layer.String (case-insensitive).
func ParseLayer(s string) (Layer, bool) {
	for l := LayerLink; l <= LayerApplication; l++ {
		if strings.EqualFold(l.String(), s) {
			return l, true
		}
	}
	return 0, false
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryState indicates a state change.
	CategoryState Category = 0
	// CategoryError indicates an error event.
	CategoryError Category = 1
	// CategoryData indicates application data.
	CategoryData Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures a state machine transition.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityLink is the wireless association.
	StateEntityLink StateEntity = 0
	// StateEntityStack is the IP stack readiness.
	StateEntityStack StateEntity = 1
	// StateEntityAttempt is a connection attempt.
	StateEntityAttempt StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityLink:
		return "LINK"
	case StateEntityStack:
		return "STACK"
	case StateEntityAttempt:
		return "ATTEMPT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures a failure.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`

	// Fatal is set when the process cannot continue.
	Fatal bool `cbor:"4,keyasint,omitempty"`
}

// Direction indicates data flow.
type Direction uint8

const (
	// DirectionIn is data received from the peer.
	DirectionIn Direction = 0
	// DirectionOut is data sent to the peer.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// DataEvent captures application bytes.
type DataEvent struct {
	Direction Direction `cbor:"1,keyasint"`

	// Size is the number of bytes transferred.
	Size int `cbor:"2,keyasint"`

	// Data holds up to MaxCapturedData bytes of the payload.
	Data []byte `cbor:"3,keyasint,omitempty"`

	// Truncated indicates Data is shorter than Size.
	Truncated bool `cbor:"4,keyasint,omitempty"`
}

// MaxCapturedData limits how much payload a DataEvent carries.
const MaxCapturedData = 256

// NewDataEvent builds a DataEvent, truncating the captured payload.
func NewDataEvent(dir Direction, data []byte) *DataEvent {
	ev := &DataEvent{Direction: dir, Size: len(data)}
	n := len(data)
	if n > MaxCapturedData {
		n = MaxCapturedData
		ev.Truncated = true
	}
	ev.Data = append([]byte(nil), data[:n]...)
	return ev
}

// NewStateEvent is a convenience constructor for state transitions.
func NewStateEvent(layer Layer, entity StateEntity, oldState, newState, reason string) Event {
	return Event{
		Timestamp: time.Now(),
		Layer:     layer,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}

// NewErrorEvent is a convenience constructor for failures.
func NewErrorEvent(layer Layer, err error, context string) Event {
	return Event{
		Timestamp: time.Now(),
		Layer:     layer,
		Category:  CategoryError,
		Error: &ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	}
}
