package sim

import (
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/mash-protocol/mash-uplink/pkg/cert"
	"github.com/mash-protocol/mash-uplink/pkg/session"
)

// DefaultGreeting is the record a peer sends after each handshake.
const DefaultGreeting = "mash-uplink peer ready"

// PeerConfig configures the loopback TLS peer.
type PeerConfig struct {
	// Address to listen on (default: 127.0.0.1:0).
	Address string

	// Identity presented to clients (default: a generated self-signed
	// certificate for 127.0.0.1 and localhost).
	Identity *cert.Identity

	// Greeting is sent as one record after the handshake
	// (default: DefaultGreeting).
	Greeting string

	// CloseAfterGreeting ends each session after the greeting instead of
	// waiting for the client to close.
	CloseAfterGreeting bool

	// Logger for operational output (optional).
	Logger *slog.Logger
}

// Peer is a TLS 1.3 endpoint standing in for the remote server.
type Peer struct {
	config   PeerConfig
	identity *cert.Identity
	listener net.Listener
	logger   *slog.Logger

	sessions  atomic.Int64
	handshake atomic.Int64
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// StartPeer listens and serves sessions until Close.
func StartPeer(config PeerConfig) (*Peer, error) {
	if config.Address == "" {
		config.Address = "127.0.0.1:0"
	}
	if config.Greeting == "" {
		config.Greeting = DefaultGreeting
	}
	id := config.Identity
	if id == nil {
		var err error
		id, err = cert.GenerateSelfSigned("mash-uplink-peer", "127.0.0.1", "localhost")
		if err != nil {
			return nil, err
		}
	}

	ln, err := tls.Listen("tcp", config.Address, &tls.Config{
		Certificates:           []tls.Certificate{id.TLSCertificate()},
		MinVersion:             tls.VersionTLS13,
		MaxVersion:             tls.VersionTLS13,
		SessionTicketsDisabled: true,
	})
	if err != nil {
		return nil, err
	}

	p := &Peer{
		config:   config,
		identity: id,
		listener: ln,
		logger:   config.Logger,
		conns:    make(map[net.Conn]struct{}),
	}
	p.wg.Add(1)
	go p.acceptLoop()
	return p, nil
}

// Addr returns the listening endpoint.
func (p *Peer) Addr() netip.AddrPort {
	return netip.MustParseAddrPort(p.listener.Addr().String())
}

// Identity returns the presented certificate and key.
func (p *Peer) Identity() *cert.Identity {
	return p.identity
}

// Fingerprint returns the SHA-256 fingerprint of the presented certificate.
func (p *Peer) Fingerprint() cert.Fingerprint {
	return p.identity.Fingerprint()
}

// Sessions returns the number of completed handshakes.
func (p *Peer) Sessions() int {
	return int(p.sessions.Load())
}

// HandshakeFailures returns the number of failed handshakes.
func (p *Peer) HandshakeFailures() int {
	return int(p.handshake.Load())
}

// Close stops listening, closes open sessions and waits for them to end.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.listener.Close()
		p.mu.Lock()
		for c := range p.conns {
			c.Close()
		}
		p.mu.Unlock()
		p.wg.Wait()
	})
	return err
}

func (p *Peer) acceptLoop() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				p.debugLog("sim peer accept", "error", err)
			}
			return
		}
		p.wg.Add(1)
		go p.serve(conn.(*tls.Conn))
	}
}

func (p *Peer) serve(conn *tls.Conn) {
	defer p.wg.Done()
	p.track(conn, true)
	defer p.track(conn, false)
	defer conn.Close()

	if err := conn.Handshake(); err != nil {
		p.handshake.Add(1)
		p.debugLog("sim peer handshake failed", "error", err)
		return
	}
	p.sessions.Add(1)
	p.debugLog("sim peer session", "remote", conn.RemoteAddr().String())

	if _, err := conn.Write(session.AppendRecord(nil, []byte(p.config.Greeting))); err != nil {
		return
	}
	if p.config.CloseAfterGreeting {
		return
	}
	io.Copy(io.Discard, conn)
}

func (p *Peer) track(c net.Conn, open bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if open {
		p.conns[c] = struct{}{}
	} else {
		delete(p.conns, c)
	}
}

func (p *Peer) debugLog(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
