package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startEchoServer echoes everything it reads.
func startEchoServer(t *testing.T) netip.AddrPort {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	}()

	return netip.MustParseAddrPort(ln.Addr().String())
}

// dataWithErrorConn returns its data and err from a single Read.
type dataWithErrorConn struct {
	net.Conn
	data []byte
	err  error
}

func (c *dataWithErrorConn) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, c.err
	}
	n := copy(p, c.data)
	c.data = c.data[n:]
	return n, c.err
}

func TestTCPSocket(t *testing.T) {
	t.Run("SmallBuffers", func(t *testing.T) {
		rx := make([]byte, 4)
		tx := make([]byte, 3)
		sock := NewTCPSocket(rx, tx)
		sock.SetTimeout(time.Second)
		require.NoError(t, sock.Connect(context.Background(), startEchoServer(t)))
		defer sock.Close()

		payload := []byte("0123456789abcdef")
		n, err := sock.Write(payload)
		require.NoError(t, err)
		assert.Equal(t, len(payload), n)

		got := make([]byte, 0, len(payload))
		buf := make([]byte, 16)
		for len(got) < len(payload) {
			n, err := sock.Read(buf)
			require.NoError(t, err)
			assert.LessOrEqual(t, n, len(rx), "reads are staged through rx")
			got = append(got, buf[:n]...)
		}
		assert.Equal(t, payload, got)
		assert.Len(t, rx, 4)
		assert.Len(t, tx, 3)
	})

	t.Run("ReadTimeout", func(t *testing.T) {
		sock := NewTCPSocket(make([]byte, 16), make([]byte, 16))
		sock.SetTimeout(50 * time.Millisecond)
		require.NoError(t, sock.Connect(context.Background(), startEchoServer(t)))
		defer sock.Close()

		_, err := sock.Read(make([]byte, 1))
		var netErr net.Error
		require.ErrorAs(t, err, &netErr)
		assert.True(t, netErr.Timeout())
	})

	t.Run("RefusedConnect", func(t *testing.T) {
		sock := NewTCPSocket(make([]byte, 16), make([]byte, 16))
		assert.Error(t, sock.Connect(context.Background(), closedPort(t)))
	})

	t.Run("NotConnected", func(t *testing.T) {
		sock := NewTCPSocket(make([]byte, 16), make([]byte, 16))
		_, err := sock.Read(make([]byte, 1))
		assert.ErrorIs(t, err, ErrNotConnected)
		_, err = sock.Write([]byte("x"))
		assert.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("ClosedIsNotReusable", func(t *testing.T) {
		remote := startEchoServer(t)
		sock := NewTCPSocket(make([]byte, 16), make([]byte, 16))
		require.NoError(t, sock.Connect(context.Background(), remote))
		assert.ErrorIs(t, sock.Connect(context.Background(), remote), ErrAlreadyConnected)

		require.NoError(t, sock.Close())
		require.NoError(t, sock.Close())

		_, err := sock.Read(make([]byte, 1))
		assert.ErrorIs(t, err, ErrSocketClosed)
		assert.ErrorIs(t, sock.Connect(context.Background(), remote), ErrSocketClosed)
	})

	t.Run("OverwritesStaleBuffer", func(t *testing.T) {
		rx := bytes.Repeat([]byte{0xEE}, 8)
		sock := NewTCPSocket(rx, make([]byte, 8))
		sock.SetTimeout(time.Second)
		require.NoError(t, sock.Connect(context.Background(), startEchoServer(t)))
		defer sock.Close()

		_, err := sock.Write([]byte{1, 2})
		require.NoError(t, err)
		got := make([]byte, 2)
		_, err = io.ReadFull(sock, got)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2}, got)
	})

	t.Run("ErrorWithDataIsDeferred", func(t *testing.T) {
		local, remote := net.Pipe()
		defer remote.Close()
		reset := errors.New("connection reset by peer")

		s := NewTCPSocket(make([]byte, 8), make([]byte, 8)).(*TCPSocket)
		s.SetTimeout(0)
		s.conn = &dataWithErrorConn{Conn: local, data: []byte{1, 2, 3}, err: reset}
		defer s.Close()

		got := make([]byte, 2)
		n, err := s.Read(got)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2}, got[:n])

		n, err = s.Read(got)
		require.NoError(t, err)
		assert.Equal(t, []byte{3}, got[:n])

		n, err = s.Read(got)
		assert.Equal(t, 0, n)
		assert.ErrorIs(t, err, reset)
	})

	t.Run("EOFWithDataIsDeferred", func(t *testing.T) {
		local, remote := net.Pipe()
		defer remote.Close()

		s := NewTCPSocket(make([]byte, 8), make([]byte, 8)).(*TCPSocket)
		s.SetTimeout(0)
		s.conn = &dataWithErrorConn{Conn: local, data: []byte("bye"), err: io.EOF}
		defer s.Close()

		got, err := io.ReadAll(s)
		require.NoError(t, err)
		assert.Equal(t, []byte("bye"), got)
	})
}
