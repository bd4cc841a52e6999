package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCooldown is the fixed delay after a disconnect or a failed connect.
const DefaultCooldown = 5 * time.Second

// ErrFatal marks failures the process cannot recover from.
var ErrFatal = errors.New("link: fatal radio failure")

// FatalError reports a radio configuration or start failure.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("link: radio %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the driver error.
func (e *FatalError) Unwrap() error { return e.Err }

// Is matches ErrFatal.
func (e *FatalError) Is(target error) bool { return target == ErrFatal }

// SupervisorConfig configures the link supervisor.
type SupervisorConfig struct {
	// Cooldown is the delay after a disconnect or a failed connect (default: 5s).
	Cooldown time.Duration

	// Logger for operational output (optional).
	Logger *slog.Logger
}

// Supervisor keeps the radio associated.
type Supervisor struct {
	radio    Radio
	creds    Credentials
	cooldown time.Duration
	logger   *slog.Logger

	state atomic.Uint32

	mu            sync.RWMutex
	onStateChange func(old, new AssociationState)
}

// NewSupervisor creates a supervisor for the given radio.
func NewSupervisor(radio Radio, creds Credentials, config SupervisorConfig) *Supervisor {
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldown
	}
	return &Supervisor{
		radio:    radio,
		creds:    creds,
		cooldown: config.Cooldown,
		logger:   config.Logger,
	}
}

// State returns the current association state.
func (s *Supervisor) State() AssociationState {
	return AssociationState(s.state.Load())
}

// OnStateChange sets a callback for association state changes.
// The callback runs on the supervisor goroutine.
func (s *Supervisor) OnStateChange(fn func(old, new AssociationState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = fn
}

// Run supervises the link until ctx is cancelled or the radio fails fatally.
// It returns ctx.Err() on cancellation and a *FatalError otherwise.
func (s *Supervisor) Run(ctx context.Context) error {
	s.info("link supervisor started", "capabilities", s.radio.Capabilities())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if s.State() == StateConnected {
			err := s.radio.WaitForEvent(ctx, EventStaDisconnected)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.setState(StateDisconnected)
			if err != nil {
				s.warn("link event wait failed", "error", err, "cooldown", s.cooldown)
			} else {
				s.info("link lost", "cooldown", s.cooldown)
			}
			if err := sleep(ctx, s.cooldown); err != nil {
				return err
			}
		}

		if started, err := s.radio.IsStarted(); err != nil || !started {
			if err := s.startRadio(ctx); err != nil {
				return err
			}
		}

		s.setState(StateConnecting)
		s.debugLog("connecting", "credentials", s.creds.String())

		if err := s.radio.Connect(ctx); err != nil {
			s.setState(StateDisconnected)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.warn("link connect failed", "error", err, "cooldown", s.cooldown)
			if err := sleep(ctx, s.cooldown); err != nil {
				return err
			}
			continue
		}

		s.setState(StateConnected)
		s.info("link connected", "ssid", s.creds.SSID)
	}
}

// startRadio configures and starts the radio. Both failures are fatal.
func (s *Supervisor) startRadio(ctx context.Context) error {
	if err := s.radio.Configure(s.creds); err != nil {
		return &FatalError{Op: "configure", Err: err}
	}
	s.info("starting radio")
	if err := s.radio.Start(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &FatalError{Op: "start", Err: err}
	}
	s.info("radio started")
	return nil
}

func (s *Supervisor) setState(newState AssociationState) {
	old := AssociationState(s.state.Swap(uint32(newState)))
	if old == newState {
		return
	}

	s.mu.RLock()
	fn := s.onStateChange
	s.mu.RUnlock()

	if fn != nil {
		fn(old, newState)
	}
}

func (s *Supervisor) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Supervisor) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Supervisor) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
