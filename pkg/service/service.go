package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mash-protocol/mash-uplink/pkg/config"
	"github.com/mash-protocol/mash-uplink/pkg/connection"
	"github.com/mash-protocol/mash-uplink/pkg/entropy"
	"github.com/mash-protocol/mash-uplink/pkg/link"
	"github.com/mash-protocol/mash-uplink/pkg/log"
	"github.com/mash-protocol/mash-uplink/pkg/metrics"
	"github.com/mash-protocol/mash-uplink/pkg/netstack"
	"github.com/mash-protocol/mash-uplink/pkg/session"
)

// Service is the uplink device process.
type Service struct {
	stack      netstack.Engine
	supervisor *link.Supervisor
	gate       *netstack.Gate
	driver     *session.Driver
	loop       *connection.Loop

	logger  *slog.Logger
	plog    log.Logger
	metrics *metrics.Metrics

	state atomic.Uint32

	mu        sync.RWMutex
	onAttempt func(connection.AttemptResult)
}

// New validates cfg and builds the service's tasks.
func New(cfg *config.Config, deps Dependencies) (*Service, error) {
	if deps.Radio == nil {
		return nil, ErrNoRadio
	}
	if deps.Stack == nil {
		return nil, ErrNoStack
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	remote, err := cfg.RemoteAddr()
	if err != nil {
		return nil, err
	}
	verifier, err := cfg.Verifier()
	if err != nil {
		return nil, err
	}
	retry, err := cfg.RetryPolicy()
	if err != nil {
		return nil, err
	}

	if deps.Entropy == nil {
		src, err := entropy.New()
		if err != nil {
			return nil, fmt.Errorf("randomness source: %w", err)
		}
		deps.Entropy = src
	}
	if deps.NewEngine == nil {
		suite, err := cfg.CipherSuiteID()
		if err != nil {
			return nil, err
		}
		deps.NewEngine = session.NewTLSEngineFactory(session.TLSConfig{
			ServerName:  cfg.Remote.ServerName,
			CipherSuite: suite,
		})
	}

	s := &Service{
		stack:   deps.Stack,
		logger:  deps.Logger,
		plog:    log.OrNoop(deps.ProtocolLogger),
		metrics: deps.Metrics,
	}

	s.supervisor = link.NewSupervisor(deps.Radio, cfg.Credentials(), link.SupervisorConfig{
		Cooldown: cfg.Timing.LinkCooldown,
		Logger:   deps.Logger,
	})
	s.supervisor.OnStateChange(s.handleAssociation)

	s.gate = netstack.NewGate(deps.Stack, netstack.GateConfig{
		PollInterval: cfg.Timing.PollInterval,
		Logger:       deps.Logger,
	})

	s.driver, err = session.NewDriver(
		session.DriverConfig{
			Remote:         remote,
			Timeout:        cfg.Timing.SocketTimeout,
			Logger:         deps.Logger,
			ProtocolLogger: deps.ProtocolLogger,
		},
		session.Dependencies{
			Buffers:   session.NewBuffers(cfg.BufferSizes()),
			NewSocket: deps.NewSocket,
			NewEngine: deps.NewEngine,
			Rand:      deps.Entropy,
			Verifier:  verifier,
		},
	)
	if err != nil {
		return nil, err
	}
	s.driver.OnStateChange(s.metrics.ObserveSessionState)

	s.loop = connection.NewLoop(readinessGate{s}, s.driver, connection.LoopConfig{
		Retry:            retry,
		PostAttemptDelay: cfg.Timing.PostAttemptDelay,
		Handler:          deps.Handler,
		Logger:           deps.Logger,
	})
	s.loop.OnAttempt(s.handleAttempt)

	return s, nil
}

// Run runs the pump, the link supervisor and the connection loop until ctx
// is cancelled (returning nil) or the radio fails fatally (returning the
// *link.FatalError).
func (s *Service) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(uint32(StateIdle), uint32(StateRunning)) {
		return ErrAlreadyStarted
	}
	s.info("uplink starting", "remote", s.driver.Remote())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.stack.Run(gctx) })
	g.Go(func() error { return s.supervisor.Run(gctx) })
	g.Go(func() error { return s.loop.Run(gctx) })

	err := g.Wait()
	if ctx.Err() != nil && (err == nil || errors.Is(err, ctx.Err())) {
		s.state.Store(uint32(StateStopped))
		s.info("uplink stopped")
		return nil
	}

	s.state.Store(uint32(StateFailed))
	ev := log.NewErrorEvent(log.LayerLink, err, "service")
	ev.Error.Fatal = errors.Is(err, link.ErrFatal)
	s.plog.Log(ev)
	s.error("uplink failed", "error", err)
	return err
}

// State returns the service state.
func (s *Service) State() ServiceState {
	return ServiceState(s.state.Load())
}

// AssociationState returns the link supervisor's state.
func (s *Service) AssociationState() link.AssociationState {
	return s.supervisor.State()
}

// SessionState returns the session driver's state.
func (s *Service) SessionState() session.State {
	return s.driver.State()
}

// Stats returns the connection loop's attempt counters.
func (s *Service) Stats() connection.Stats {
	return s.loop.Stats()
}

// StackPolls returns the number of readiness polls performed.
func (s *Service) StackPolls() int {
	return s.gate.Polls()
}

// OnAttempt sets a callback invoked after every connection attempt.
func (s *Service) OnAttempt(fn func(connection.AttemptResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAttempt = fn
}

func (s *Service) handleAssociation(old, new link.AssociationState) {
	s.metrics.ObserveAssociation(old, new)
	s.plog.Log(log.NewStateEvent(log.LayerLink, log.StateEntityLink, old.String(), new.String(), ""))
}

func (s *Service) handleAttempt(r connection.AttemptResult) {
	s.metrics.ObserveAttempt(r.Err, r.Duration)

	s.mu.RLock()
	fn := s.onAttempt
	s.mu.RUnlock()
	if fn != nil {
		fn(r)
	}
}

func (s *Service) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Service) error(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

// readinessGate reports the gate opening to metrics and the protocol log.
type readinessGate struct {
	s *Service
}

func (g readinessGate) Wait(ctx context.Context) error {
	if err := g.s.gate.Wait(ctx); err != nil {
		return err
	}
	reason := ""
	if addr, ok := g.s.stack.IPv4Config(); ok {
		reason = addr.String()
	}
	g.s.metrics.ObserveStackReady(g.s.gate.Polls())
	g.s.plog.Log(log.NewStateEvent(log.LayerStack, log.StateEntityStack, "WAITING", "READY", reason))
	return nil
}
