package link

import (
	"context"
	"errors"
	"fmt"
)

// Credential limits for WPA2-PSK client configuration.
const (
	MaxSSIDLength     = 32
	MinPasswordLength = 8
	MaxPasswordLength = 64
)

// Credential errors.
var (
	ErrEmptySSID       = errors.New("ssid is empty")
	ErrSSIDTooLong     = errors.New("ssid exceeds 32 bytes")
	ErrInvalidPassword = errors.New("password must be empty or 8-64 bytes")
)

// Credentials identify the access point the station joins.
// They are fixed at build time and shared read-only.
type Credentials struct {
	SSID     string
	Password string
}

// Validate checks the credentials against the client configuration limits.
func (c Credentials) Validate() error {
	if c.SSID == "" {
		return ErrEmptySSID
	}
	if len(c.SSID) > MaxSSIDLength {
		return ErrSSIDTooLong
	}
	if n := len(c.Password); n != 0 && (n < MinPasswordLength || n > MaxPasswordLength) {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidPassword, n)
	}
	return nil
}

// String hides the password.
func (c Credentials) String() string {
	return fmt.Sprintf("ssid=%q", c.SSID)
}

// Event is a radio driver event.
type Event uint8

const (
	// EventStaStarted is emitted when the station interface starts.
	EventStaStarted Event = iota + 1

	// EventStaStopped is emitted when the station interface stops.
	EventStaStopped

	// EventStaConnected is emitted when the station associates.
	EventStaConnected

	// EventStaDisconnected is emitted when the station loses association.
	EventStaDisconnected
)

// String returns a human-readable event name.
func (e Event) String() string {
	switch e {
	case EventStaStarted:
		return "STA_STARTED"
	case EventStaStopped:
		return "STA_STOPPED"
	case EventStaConnected:
		return "STA_CONNECTED"
	case EventStaDisconnected:
		return "STA_DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Radio is the wireless driver contract the Supervisor depends on.
type Radio interface {
	// Configure sets the station (client) credentials.
	Configure(creds Credentials) error

	// Start brings the radio up.
	Start(ctx context.Context) error

	// IsStarted reports whether the radio is running.
	IsStarted() (bool, error)

	// Connect associates with the configured access point.
	Connect(ctx context.Context) error

	// WaitForEvent blocks until the driver emits the given event.
	WaitForEvent(ctx context.Context, event Event) error

	// Capabilities describes the radio for diagnostics.
	Capabilities() string
}
