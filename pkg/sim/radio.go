package sim

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/mash-protocol/mash-uplink/pkg/link"
)

// Radio errors.
var (
	ErrStartFailed       = errors.New("sim: radio start failed")
	ErrConfigureFailed   = errors.New("sim: radio configure failed")
	ErrAssociationFailed = errors.New("sim: association rejected")
	ErrNotConfigured     = errors.New("sim: radio not configured")
	ErrNotStarted        = errors.New("sim: radio not started")
)

// RadioConfig configures the simulated radio.
type RadioConfig struct {
	// SuccessProbability is the chance a connect succeeds (default: 1).
	SuccessProbability float64

	// ConnectLatency delays every connect.
	ConnectLatency time.Duration

	// MeanDropInterval is the mean association lifetime before a random
	// drop. Zero disables drops.
	MeanDropInterval time.Duration

	// FailConfigure and FailStart make bring-up fail.
	FailConfigure bool
	FailStart     bool

	// Stack follows the association state (optional).
	Stack *Stack

	// Seed for the simulation's random choices.
	Seed uint64

	// Logger for operational output (optional).
	Logger *slog.Logger
}

// Radio is a simulated station-mode radio.
type Radio struct {
	config RadioConfig
	logger *slog.Logger

	mu         sync.Mutex
	rng        *rand.Rand
	creds      *link.Credentials
	started    bool
	associated bool
	dropTimer  *time.Timer
	connects   int

	events chan link.Event
}

// NewRadio creates a simulated radio.
func NewRadio(config RadioConfig) *Radio {
	if config.SuccessProbability <= 0 {
		config.SuccessProbability = 1
	}
	return &Radio{
		config: config,
		logger: config.Logger,
		rng:    rand.New(rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15)),
		events: make(chan link.Event, 16),
	}
}

// Configure stores the client credentials.
func (r *Radio) Configure(creds link.Credentials) error {
	if r.config.FailConfigure {
		return ErrConfigureFailed
	}
	if err := creds.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds = &creds
	return nil
}

// Start brings the radio up.
func (r *Radio) Start(ctx context.Context) error {
	if r.config.FailStart {
		return ErrStartFailed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.creds == nil {
		return ErrNotConfigured
	}
	r.started = true
	r.emit(link.EventStaStarted)
	return nil
}

// IsStarted reports whether Start succeeded.
func (r *Radio) IsStarted() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, nil
}

// Connect associates with the configured network.
func (r *Radio) Connect(ctx context.Context) error {
	if r.config.ConnectLatency > 0 {
		t := time.NewTimer(r.config.ConnectLatency)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return ErrNotStarted
	}
	r.connects++
	if r.rng.Float64() >= r.config.SuccessProbability {
		return ErrAssociationFailed
	}

	r.associated = true
	if r.config.Stack != nil {
		r.config.Stack.SetLinkUp(true)
	}
	r.emit(link.EventStaConnected)
	r.scheduleDrop()
	r.debugLog("sim radio associated", "ssid", r.creds.SSID)
	return nil
}

// WaitForEvent blocks until the event occurs. Other events are discarded.
func (r *Radio) WaitForEvent(ctx context.Context, event link.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.events:
			if ev == event {
				return nil
			}
		}
	}
}

// Capabilities describes the simulated hardware.
func (r *Radio) Capabilities() string {
	return "sim radio: 802.11 b/g/n, station mode, WPA2-PSK"
}

// Drop forces a disconnect, as if the access point went away.
func (r *Radio) Drop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drop()
}

// Associated reports whether the radio is associated.
func (r *Radio) Associated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.associated
}

// Connects returns the number of connect requests that reached the radio.
func (r *Radio) Connects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// drop is called with r.mu held.
func (r *Radio) drop() {
	if !r.associated {
		return
	}
	r.associated = false
	if r.dropTimer != nil {
		r.dropTimer.Stop()
		r.dropTimer = nil
	}
	if r.config.Stack != nil {
		r.config.Stack.SetLinkUp(false)
	}
	r.emit(link.EventStaDisconnected)
	r.debugLog("sim radio disconnected")
}

// scheduleDrop is called with r.mu held.
func (r *Radio) scheduleDrop() {
	if r.config.MeanDropInterval <= 0 {
		return
	}
	d := time.Duration(r.rng.ExpFloat64() * float64(r.config.MeanDropInterval))
	r.dropTimer = time.AfterFunc(d, r.Drop)
}

// emit is called with r.mu held. Events are dropped when nobody listens.
func (r *Radio) emit(ev link.Event) {
	select {
	case r.events <- ev:
	default:
	}
}

func (r *Radio) debugLog(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

// Compile-time interface satisfaction check.
var _ link.Radio = (*Radio)(nil)
