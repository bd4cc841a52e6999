package session

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync/atomic"
	"time"
)

// DefaultTimeout is the idle timeout applied to every socket operation.
const DefaultTimeout = 10 * time.Second

// Socket errors.
var (
	ErrSocketClosed     = errors.New("socket closed")
	ErrNotConnected     = errors.New("socket not connected")
	ErrAlreadyConnected = errors.New("socket already connected")
)

// Socket is a transport socket bound to caller-owned buffers.
// A socket is consumed by Close and is not reusable.
type Socket interface {
	// SetTimeout sets the idle timeout for connect, read and write.
	SetTimeout(d time.Duration)

	// Connect opens the transport connection.
	Connect(ctx context.Context, remote netip.AddrPort) error

	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// SocketFactory constructs a socket over the receive and transmit buffers.
type SocketFactory func(rx, tx []byte) Socket

// TCPSocket is a Socket over a TCP connection. Reads are staged through the
// receive buffer and writes are chunked through the transmit buffer, so the
// socket never allocates per operation.
type TCPSocket struct {
	rx, tx  []byte
	r, w    int
	timeout time.Duration

	conn   net.Conn
	err    error // read error deferred until the buffer drains
	closed atomic.Bool
}

// NewTCPSocket creates an unconnected TCP socket. It satisfies SocketFactory.
func NewTCPSocket(rx, tx []byte) Socket {
	return &TCPSocket{rx: rx, tx: tx, timeout: DefaultTimeout}
}

// SetTimeout sets the idle timeout. Zero disables it.
func (s *TCPSocket) SetTimeout(d time.Duration) {
	s.timeout = d
}

// Connect dials the remote endpoint within the idle timeout.
func (s *TCPSocket) Connect(ctx context.Context, remote netip.AddrPort) error {
	if s.closed.Load() {
		return ErrSocketClosed
	}
	if s.conn != nil {
		return ErrAlreadyConnected
	}

	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", remote.String())
	if err != nil {
		return err
	}
	s.conn = conn
	s.r, s.w = 0, 0
	s.err = nil
	return nil
}

// Read copies buffered bytes into p, refilling the receive buffer from the
// connection when it is empty. An error that arrives with data is returned
// once the buffered data has been consumed.
func (s *TCPSocket) Read(p []byte) (int, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	if s.r == s.w {
		if err := s.err; err != nil {
			s.err = nil
			return 0, err
		}
		if s.timeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
				return 0, err
			}
		}
		n, err := s.conn.Read(s.rx)
		s.r, s.w = 0, n
		if n == 0 {
			return 0, err
		}
		s.err = err
	}

	n := copy(p, s.rx[s.r:s.w])
	s.r += n
	return n, nil
}

// Write sends p in transmit-buffer sized chunks.
func (s *TCPSocket) Write(p []byte) (int, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}

	total := 0
	for len(p) > 0 {
		n := copy(s.tx, p)
		if s.timeout > 0 {
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
				return total, err
			}
		}
		written, err := s.conn.Write(s.tx[:n])
		total += written
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}

// Close closes the connection. Subsequent calls return nil.
func (s *TCPSocket) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// LocalAddr returns the local address, or nil before Connect.
func (s *TCPSocket) LocalAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// RemoteAddr returns the remote address, or nil before Connect.
func (s *TCPSocket) RemoteAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.RemoteAddr()
}

// SetDeadline sets both deadlines on the connection. The idle timeout
// still applies per operation.
func (s *TCPSocket) SetDeadline(t time.Time) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	return s.conn.SetDeadline(t)
}

// SetReadDeadline sets the read deadline on the connection.
func (s *TCPSocket) SetReadDeadline(t time.Time) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	return s.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline on the connection.
func (s *TCPSocket) SetWriteDeadline(t time.Time) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	return s.conn.SetWriteDeadline(t)
}

func (s *TCPSocket) usable() error {
	if s.closed.Load() {
		return ErrSocketClosed
	}
	if s.conn == nil {
		return ErrNotConnected
	}
	return nil
}

// socketConn adapts a Socket that is not a net.Conn for crypto/tls.
type socketConn struct {
	Socket
}

func (socketConn) LocalAddr() net.Addr              { return nil }
func (socketConn) RemoteAddr() net.Addr             { return nil }
func (socketConn) SetDeadline(time.Time) error      { return nil }
func (socketConn) SetReadDeadline(time.Time) error  { return nil }
func (socketConn) SetWriteDeadline(time.Time) error { return nil }

func asConn(s Socket) net.Conn {
	if c, ok := s.(net.Conn); ok {
		return c
	}
	return socketConn{s}
}

// Compile-time interface satisfaction checks.
var (
	_ Socket   = (*TCPSocket)(nil)
	_ net.Conn = (*TCPSocket)(nil)
	_ net.Conn = socketConn{}
)
