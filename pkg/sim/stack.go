package sim

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"sync"

	"github.com/mash-protocol/mash-uplink/pkg/netstack"
)

// maxRandomDHCPPolls bounds the seeded DHCP delay.
const maxRandomDHCPPolls = 6

// StackConfig configures the simulated network stack.
type StackConfig struct {
	// DHCPPolls is the number of IPv4 polls after link-up before an address
	// is assigned. Negative picks a seeded value in [0, 6).
	DHCPPolls int

	// Subnet the lease is taken from (default: 192.168.10.0/24).
	Subnet netip.Prefix

	// Seed, typically the entropy source's stack seed.
	Seed uint64

	// Logger for operational output (optional).
	Logger *slog.Logger
}

// Stack is a simulated network engine.
type Stack struct {
	logger *slog.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	subnet    netip.Prefix
	dhcpPolls int
	random    bool
	linkUp    bool
	polls     int
	lease     netip.Prefix
	hasLease  bool
	pumpTicks int
}

// NewStack creates a simulated stack with the link down.
func NewStack(config StackConfig) *Stack {
	if !config.Subnet.IsValid() {
		config.Subnet = netip.MustParsePrefix("192.168.10.0/24")
	}
	return &Stack{
		logger:    config.Logger,
		rng:       rand.New(rand.NewPCG(config.Seed, ^config.Seed)),
		subnet:    config.Subnet.Masked(),
		dhcpPolls: config.DHCPPolls,
		random:    config.DHCPPolls < 0,
	}
}

// SetLinkUp changes the link state. Taking the link down drops the lease.
func (s *Stack) SetLinkUp(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkUp == up {
		return
	}
	s.linkUp = up
	s.polls = 0
	s.hasLease = false
	if up && s.random {
		s.dhcpPolls = s.rng.IntN(maxRandomDHCPPolls)
	}
}

// IsLinkUp reports the link state.
func (s *Stack) IsLinkUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkUp
}

// IPv4Config returns the lease once DHCPPolls polls have passed since
// link-up.
func (s *Stack) IPv4Config() (netip.Prefix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.linkUp {
		return netip.Prefix{}, false
	}
	if s.hasLease {
		return s.lease, true
	}
	if s.polls < s.dhcpPolls {
		s.polls++
		return netip.Prefix{}, false
	}

	s.lease = s.allocate()
	s.hasLease = true
	if s.logger != nil {
		s.logger.Debug("sim dhcp lease", "address", s.lease)
	}
	return s.lease, true
}

// Run is the pump task. The simulated stack has no packets to process.
func (s *Stack) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// allocate picks a host address in the subnet; called with s.mu held.
func (s *Stack) allocate() netip.Prefix {
	base := s.subnet.Addr()
	if !base.Is4() {
		return netip.PrefixFrom(base.Next(), s.subnet.Bits())
	}
	hostBits := 32 - s.subnet.Bits()
	hosts := uint32(1)<<hostBits - 2
	if hostBits <= 1 {
		hosts = 1
	}
	b := base.As4()
	n := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	n += 1 + s.rng.Uint32N(hosts)
	addr := netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
	return netip.PrefixFrom(addr, s.subnet.Bits())
}

// Compile-time interface satisfaction check.
var _ netstack.Engine = (*Stack)(nil)
