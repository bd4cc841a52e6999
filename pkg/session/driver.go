package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/mash-uplink/pkg/log"
)

// DriverConfig configures the session driver.
type DriverConfig struct {
	// Remote is the fixed endpoint.
	Remote netip.AddrPort

	// Timeout is the idle timeout applied to every socket operation
	// (default: 10s).
	Timeout time.Duration

	// Logger for operational output (optional).
	Logger *slog.Logger

	// ProtocolLogger receives attempt events (optional).
	ProtocolLogger log.Logger
}

// Dependencies are the collaborators an attempt borrows.
type Dependencies struct {
	// Buffers are reused by every attempt (default: NewBuffers with
	// default sizes).
	Buffers *Buffers

	// NewSocket constructs the transport socket (default: NewTCPSocket).
	NewSocket SocketFactory

	// NewEngine constructs the session engine (default: TLS with the
	// default cipher suite).
	NewEngine EngineFactory

	// Rand drives handshake randomness. Required.
	Rand io.Reader

	// Verifier is the server identity policy. Required.
	Verifier Verifier
}

// Driver runs secure session attempts against one endpoint.
type Driver struct {
	config    DriverConfig
	buffers   *Buffers
	newSocket SocketFactory
	newEngine EngineFactory
	rand      io.Reader
	verifier  Verifier
	logger    *slog.Logger
	plog      log.Logger

	active atomic.Bool
	state  atomic.Uint32

	mu            sync.RWMutex
	onStateChange func(old, new State)
}

// NewDriver creates a session driver.
func NewDriver(config DriverConfig, deps Dependencies) (*Driver, error) {
	if !config.Remote.IsValid() || config.Remote.Port() == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRemote, config.Remote)
	}
	if deps.Rand == nil {
		return nil, ErrNoRandomness
	}
	if deps.Verifier == nil {
		return nil, ErrNoVerifier
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if deps.Buffers == nil {
		deps.Buffers = NewBuffers(BufferSizes{})
	}
	if deps.NewSocket == nil {
		deps.NewSocket = NewTCPSocket
	}
	if deps.NewEngine == nil {
		deps.NewEngine = NewTLSEngineFactory(TLSConfig{})
	}

	return &Driver{
		config:    config,
		buffers:   deps.Buffers,
		newSocket: deps.NewSocket,
		newEngine: deps.NewEngine,
		rand:      deps.Rand,
		verifier:  deps.Verifier,
		logger:    config.Logger,
		plog:      log.OrNoop(config.ProtocolLogger),
	}, nil
}

// State returns the current attempt state.
func (d *Driver) State() State {
	return State(d.state.Load())
}

// Remote returns the endpoint the driver connects to.
func (d *Driver) Remote() netip.AddrPort {
	return d.config.Remote
}

// OnStateChange sets a callback for attempt state changes.
// The callback runs on the attempting goroutine.
func (d *Driver) OnStateChange(fn func(old, new State)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onStateChange = fn
}

// Attempt runs one transport connect and handshake. On success the caller
// owns the returned Channel and must close it before the next Attempt.
// Failures are *AttemptError values matching ErrTransport or ErrHandshake.
func (d *Driver) Attempt(ctx context.Context) (Channel, error) {
	if !d.active.CompareAndSwap(false, true) {
		return nil, ErrAttemptActive
	}
	id := uuid.NewString()

	d.setState(id, StateTransportConnecting, "")
	sock := d.newSocket(d.buffers.SocketRx, d.buffers.SocketTx)
	sock.SetTimeout(d.config.Timeout)

	if err := sock.Connect(ctx, d.config.Remote); err != nil {
		sock.Close()
		return nil, d.fail(id, StageTransport, err)
	}
	d.setState(id, StateTransportConnected, "")
	d.debugLog("transport connected", "attempt", id, "remote", d.config.Remote)

	engine := d.newEngine(sock, d.buffers.RecordRead, d.buffers.RecordWrite)
	d.setState(id, StateHandshakeInProgress, "")
	if insecure(d.verifier) {
		d.warn("server identity is not verified", "attempt", id, "remote", d.config.Remote)
	}

	if err := engine.Establish(ctx, d.rand, d.verifier); err != nil {
		engine.Close()
		sock.Close()
		return nil, d.fail(id, StageHandshake, err)
	}

	state := engine.ConnectionState()
	d.setState(id, StateSessionEstablished, "")
	d.info("session established",
		"attempt", id,
		"remote", d.config.Remote,
		"cipher", cipherName(state.CipherSuite))

	return &channel{
		id:      id,
		remote:  d.config.Remote,
		engine:  engine,
		sock:    sock,
		plog:    d.plog,
		release: func() { d.release(id) },
	}, nil
}

func (d *Driver) fail(id string, stage Stage, err error) error {
	layer := log.LayerTransport
	if stage == StageHandshake {
		layer = log.LayerSession
	}
	ev := log.NewErrorEvent(layer, err, stage.String())
	ev.ConnectionID = id
	ev.RemoteAddr = d.config.Remote.String()
	d.plog.Log(ev)
	d.debugLog("attempt failed", "attempt", id, "stage", stage, "error", err)

	d.setState(id, StateFailed, err.Error())
	d.setState(id, StateIdle, "")
	d.active.Store(false)
	return &AttemptError{AttemptID: id, Stage: stage, Err: err}
}

func (d *Driver) release(id string) {
	d.setState(id, StateIdle, "channel closed")
	d.active.Store(false)
}

func (d *Driver) setState(id string, newState State, reason string) {
	old := State(d.state.Swap(uint32(newState)))
	if old == newState {
		return
	}

	layer := log.LayerSession
	if newState == StateTransportConnecting || newState == StateTransportConnected {
		layer = log.LayerTransport
	}
	ev := log.NewStateEvent(layer, log.StateEntityAttempt, old.String(), newState.String(), reason)
	ev.ConnectionID = id
	ev.RemoteAddr = d.config.Remote.String()
	d.plog.Log(ev)

	d.mu.RLock()
	fn := d.onStateChange
	d.mu.RUnlock()

	if fn != nil {
		fn(old, newState)
	}
}

func (d *Driver) info(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Info(msg, args...)
	}
}

func (d *Driver) warn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}

func (d *Driver) debugLog(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}

func cipherName(id uint16) string {
	if id == 0 {
		return "none"
	}
	return tls.CipherSuiteName(id)
}
