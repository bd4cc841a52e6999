package netstack

import (
	"context"
	"log/slog"
	"net/netip"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is the fixed readiness polling interval.
const DefaultPollInterval = 500 * time.Millisecond

// Readiness is the read-only view of the network engine's state.
type Readiness interface {
	// IsLinkUp reports whether the link layer is up.
	IsLinkUp() bool

	// IPv4Config returns the assigned IPv4 address, if any.
	IPv4Config() (netip.Prefix, bool)
}

// Engine is a network engine with a long-running pump task.
type Engine interface {
	Readiness

	// Run processes network events until ctx is cancelled.
	Run(ctx context.Context) error
}

// GateConfig configures the readiness gate.
type GateConfig struct {
	// PollInterval is the delay between polls (default: 500ms).
	PollInterval time.Duration

	// Logger for operational output (optional).
	Logger *slog.Logger
}

// Gate blocks until the stack has a live link and an IPv4 address.
type Gate struct {
	stack    Readiness
	interval time.Duration
	logger   *slog.Logger

	polls atomic.Int64
}

// NewGate creates a gate over the given stack state.
func NewGate(stack Readiness, config GateConfig) *Gate {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &Gate{
		stack:    stack,
		interval: config.PollInterval,
		logger:   config.Logger,
	}
}

// Wait returns once the link is up and an IPv4 address is assigned.
// The only error it returns is ctx.Err().
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.polls.Add(1)
		g.info("waiting for link")
		if g.stack.IsLinkUp() {
			break
		}
		if err := g.sleep(ctx); err != nil {
			return err
		}
	}

	for {
		g.polls.Add(1)
		g.info("waiting for IPv4 address")
		if addr, ok := g.stack.IPv4Config(); ok {
			g.info("got IP", "address", addr.String())
			return nil
		}
		if err := g.sleep(ctx); err != nil {
			return err
		}
	}
}

// Polls returns the number of readiness polls performed so far.
func (g *Gate) Polls() int {
	return int(g.polls.Load())
}

func (g *Gate) sleep(ctx context.Context) error {
	t := time.NewTimer(g.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *Gate) info(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Info(msg, args...)
	}
}
