package netstack

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync/atomic"
	"time"
)

// DefaultPumpInterval is how often HostStack refreshes interface state.
const DefaultPumpInterval = 250 * time.Millisecond

// Snapshot is one observation of an interface.
type Snapshot struct {
	LinkUp  bool
	IPv4    netip.Prefix
	HasIPv4 bool
}

// LookupFunc observes the named interface.
type LookupFunc func(name string) (Snapshot, error)

// HostStackConfig configures a HostStack.
type HostStackConfig struct {
	// PumpInterval is the refresh period (default: 250ms).
	PumpInterval time.Duration

	// Lookup replaces the host interface lookup (tests and simulators).
	Lookup LookupFunc

	// Logger for operational output (optional).
	Logger *slog.Logger
}

// HostStack is an Engine backed by a host network interface. Its pump is the
// single writer of the published state; readers never block.
type HostStack struct {
	iface    string
	interval time.Duration
	lookup   LookupFunc
	logger   *slog.Logger

	linkUp atomic.Bool
	ipv4   atomic.Pointer[netip.Prefix]
}

// NewHostStack creates a stack that follows the named interface.
func NewHostStack(iface string, config HostStackConfig) *HostStack {
	if config.PumpInterval <= 0 {
		config.PumpInterval = DefaultPumpInterval
	}
	if config.Lookup == nil {
		config.Lookup = LookupInterface
	}
	return &HostStack{
		iface:    iface,
		interval: config.PumpInterval,
		lookup:   config.Lookup,
		logger:   config.Logger,
	}
}

// IsLinkUp reports the last observed link state.
func (s *HostStack) IsLinkUp() bool {
	return s.linkUp.Load()
}

// IPv4Config returns the last observed IPv4 address.
func (s *HostStack) IPv4Config() (netip.Prefix, bool) {
	p := s.ipv4.Load()
	if p == nil {
		return netip.Prefix{}, false
	}
	return *p, true
}

// Refresh observes the interface once and publishes the result.
// A lookup failure publishes "not ready".
func (s *HostStack) Refresh() error {
	snap, err := s.lookup(s.iface)
	if err != nil {
		s.linkUp.Store(false)
		s.ipv4.Store(nil)
		return err
	}

	s.linkUp.Store(snap.LinkUp)
	if snap.LinkUp && snap.HasIPv4 {
		p := snap.IPv4
		s.ipv4.Store(&p)
	} else {
		s.ipv4.Store(nil)
	}
	return nil
}

// Run is the pump task. It refreshes interface state until ctx is cancelled.
func (s *HostStack) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Refresh(); err != nil && s.logger != nil {
			s.logger.Debug("interface lookup failed", "interface", s.iface, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LookupInterface observes a host interface. Link up means the interface is
// both administratively up and running.
func LookupInterface(name string) (Snapshot, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return Snapshot{}, fmt.Errorf("interface %s: %w", name, err)
	}

	snap := Snapshot{
		LinkUp: ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagRunning != 0,
	}

	addrs, err := ifi.Addrs()
	if err != nil {
		return snap, fmt.Errorf("interface %s addresses: %w", name, err)
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		ones, _ := ipNet.Mask.Size()
		addr, _ := netip.AddrFromSlice(ip4)
		snap.IPv4 = netip.PrefixFrom(addr, ones)
		snap.HasIPv4 = true
		break
	}
	return snap, nil
}

// Compile-time interface satisfaction check.
var _ Engine = (*HostStack)(nil)
