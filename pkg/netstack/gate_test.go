package netstack

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPollInterval = 10 * time.Millisecond

// scriptedStack becomes ready after a fixed number of polls per phase.
type scriptedStack struct {
	mu         sync.Mutex
	linkAfter  int
	addrAfter  int
	linkPolls  int
	addrPolls  int
	addr       netip.Prefix
	neverReady bool
}

func (s *scriptedStack) IsLinkUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linkPolls++
	return !s.neverReady && s.linkPolls >= s.linkAfter
}

func (s *scriptedStack) IPv4Config() (netip.Prefix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrPolls++
	if s.addrPolls >= s.addrAfter {
		return s.addr, true
	}
	return netip.Prefix{}, false
}

func TestGate(t *testing.T) {
	addr := netip.MustParsePrefix("192.168.10.42/24")

	t.Run("ReadyImmediately", func(t *testing.T) {
		stack := &scriptedStack{linkAfter: 1, addrAfter: 1, addr: addr}
		g := NewGate(stack, GateConfig{PollInterval: testPollInterval})

		require.NoError(t, g.Wait(context.Background()))
		assert.Equal(t, 2, g.Polls())
	})

	t.Run("AddressAfterNPolls", func(t *testing.T) {
		const n = 4
		stack := &scriptedStack{linkAfter: 1, addrAfter: n, addr: addr}
		g := NewGate(stack, GateConfig{PollInterval: testPollInterval})

		start := time.Now()
		require.NoError(t, g.Wait(context.Background()))
		elapsed := time.Since(start)

		// One link poll plus n address polls.
		assert.Equal(t, n+1, g.Polls())
		assert.Equal(t, n, stack.addrPolls)
		assert.GreaterOrEqual(t, elapsed, (n-1)*testPollInterval)
	})

	t.Run("LinkThenAddress", func(t *testing.T) {
		stack := &scriptedStack{linkAfter: 2, addrAfter: 2, addr: addr}
		g := NewGate(stack, GateConfig{PollInterval: testPollInterval})

		start := time.Now()
		require.NoError(t, g.Wait(context.Background()))

		assert.Equal(t, 4, g.Polls())
		assert.Equal(t, 2, stack.linkPolls)
		assert.Equal(t, 2, stack.addrPolls)
		assert.GreaterOrEqual(t, time.Since(start), 2*testPollInterval)
	})

	t.Run("NeverReturnsBeforeLinkUp", func(t *testing.T) {
		stack := &scriptedStack{neverReady: true, addrAfter: 1, addr: addr}
		g := NewGate(stack, GateConfig{PollInterval: testPollInterval})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := g.Wait(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Zero(t, stack.addrPolls, "address must not be polled before link is up")
		assert.Greater(t, g.Polls(), 1)
	})

	t.Run("DefaultInterval", func(t *testing.T) {
		g := NewGate(&scriptedStack{}, GateConfig{})
		assert.Equal(t, DefaultPollInterval, g.interval)
	})
}

func TestHostStack(t *testing.T) {
	t.Run("PublishesLookup", func(t *testing.T) {
		snap := Snapshot{LinkUp: true, IPv4: netip.MustParsePrefix("10.0.0.7/8"), HasIPv4: true}
		s := NewHostStack("wlan0", HostStackConfig{
			Lookup: func(name string) (Snapshot, error) {
				assert.Equal(t, "wlan0", name)
				return snap, nil
			},
		})

		assert.False(t, s.IsLinkUp())
		require.NoError(t, s.Refresh())
		assert.True(t, s.IsLinkUp())
		got, ok := s.IPv4Config()
		require.True(t, ok)
		assert.Equal(t, snap.IPv4, got)
	})

	t.Run("AddressIgnoredWhileLinkDown", func(t *testing.T) {
		s := NewHostStack("wlan0", HostStackConfig{
			Lookup: func(string) (Snapshot, error) {
				return Snapshot{IPv4: netip.MustParsePrefix("10.0.0.7/8"), HasIPv4: true}, nil
			},
		})
		require.NoError(t, s.Refresh())
		_, ok := s.IPv4Config()
		assert.False(t, ok)
	})

	t.Run("LookupErrorClearsState", func(t *testing.T) {
		fail := false
		s := NewHostStack("wlan0", HostStackConfig{
			Lookup: func(string) (Snapshot, error) {
				if fail {
					return Snapshot{}, errors.New("no such interface")
				}
				return Snapshot{LinkUp: true, IPv4: netip.MustParsePrefix("10.0.0.7/8"), HasIPv4: true}, nil
			},
		})
		require.NoError(t, s.Refresh())
		fail = true
		assert.Error(t, s.Refresh())
		assert.False(t, s.IsLinkUp())
		_, ok := s.IPv4Config()
		assert.False(t, ok)
	})

	t.Run("PumpFeedsGate", func(t *testing.T) {
		s := NewHostStack("wlan0", HostStackConfig{
			PumpInterval: 5 * time.Millisecond,
			Lookup: func(string) (Snapshot, error) {
				return Snapshot{LinkUp: true, IPv4: netip.MustParsePrefix("10.0.0.7/8"), HasIPv4: true}, nil
			},
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()

		g := NewGate(s, GateConfig{PollInterval: testPollInterval})
		waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
		defer waitCancel()
		require.NoError(t, g.Wait(waitCtx))

		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
}

func TestLookupInterfaceLoopback(t *testing.T) {
	ifaces, err := net.Interfaces()
	require.NoError(t, err)

	var name string
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagLoopback != 0 && ifi.Flags&net.FlagUp != 0 {
			name = ifi.Name
			break
		}
	}
	if name == "" {
		t.Skip("no loopback interface")
	}

	snap, err := LookupInterface(name)
	require.NoError(t, err)
	if snap.HasIPv4 {
		assert.True(t, snap.IPv4.Addr().Is4())
	}

	_, err = LookupInterface("does-not-exist0")
	assert.Error(t, err)
}
