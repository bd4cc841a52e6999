package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mash-protocol/mash-uplink/pkg/config"
	"github.com/mash-protocol/mash-uplink/pkg/link"
	"github.com/mash-protocol/mash-uplink/pkg/netstack"
)

// hostRadio stands in for the radio on hosts whose OS manages association.
// It reports the stack's view of the interface link as the association.
type hostRadio struct {
	iface          string
	stack          *netstack.HostStack
	interval       time.Duration
	connectTimeout time.Duration
	started        bool
}

// errLinkDown is returned by Connect when the interface stays down.
var errLinkDown = errors.New("interface link not up")

func hostEnvironment(iface string, cfg *config.Config, logger *slog.Logger) (*hostRadio, *netstack.HostStack) {
	stack := netstack.NewHostStack(iface, netstack.HostStackConfig{
		PumpInterval: cfg.Timing.StackPump,
		Logger:       logger,
	})
	return newHostRadio(iface, stack, cfg.Timing.PollInterval, cfg.Timing.SocketTimeout), stack
}

func newHostRadio(iface string, stack *netstack.HostStack, interval, connectTimeout time.Duration) *hostRadio {
	if connectTimeout <= 0 {
		connectTimeout = 10 * interval
	}
	return &hostRadio{
		iface:          iface,
		stack:          stack,
		interval:       interval,
		connectTimeout: connectTimeout,
	}
}

func (r *hostRadio) Configure(creds link.Credentials) error {
	return creds.Validate()
}

func (r *hostRadio) Start(context.Context) error {
	if _, err := netstack.LookupInterface(r.iface); err != nil {
		return err
	}
	r.started = true
	return nil
}

func (r *hostRadio) IsStarted() (bool, error) {
	return r.started, nil
}

// Connect succeeds once the interface reports link up. It gives up with
// errLinkDown after connectTimeout.
func (r *hostRadio) Connect(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()
	if err := r.waitFor(waitCtx, true); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s after %s", errLinkDown, r.iface, r.connectTimeout)
	}
	return nil
}

func (r *hostRadio) WaitForEvent(ctx context.Context, event link.Event) error {
	switch event {
	case link.EventStaConnected:
		return r.waitFor(ctx, true)
	case link.EventStaDisconnected:
		return r.waitFor(ctx, false)
	default:
		<-ctx.Done()
		return ctx.Err()
	}
}

func (r *hostRadio) Capabilities() string {
	return fmt.Sprintf("host interface %s (association managed by the OS)", r.iface)
}

func (r *hostRadio) waitFor(ctx context.Context, up bool) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		if r.stack.IsLinkUp() == up {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Compile-time interface satisfaction check.
var _ link.Radio = (*hostRadio)(nil)
