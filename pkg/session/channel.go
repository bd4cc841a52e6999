package session

import (
	"crypto/tls"
	"io"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mash-protocol/mash-uplink/pkg/log"
)

// Channel is a live secure channel produced by a successful attempt.
// Closing it releases the socket and the engine and lets the driver start
// the next attempt.
type Channel interface {
	io.ReadWriter

	// ReadRecord reads one length-prefixed record. The result aliases the
	// read record buffer and is valid until the next ReadRecord.
	ReadRecord() ([]byte, error)

	// WriteRecord writes one length-prefixed record.
	WriteRecord(p []byte) error

	// ConnectionState returns the negotiated TLS state.
	ConnectionState() tls.ConnectionState

	// AttemptID identifies the attempt that produced the channel.
	AttemptID() string

	// RemoteAddr returns the peer endpoint.
	RemoteAddr() netip.AddrPort

	Close() error
}

type channel struct {
	id     string
	remote netip.AddrPort
	engine Engine
	sock   Socket
	plog   log.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	release   func()
}

func (c *channel) Read(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrChannelClosed
	}
	n, err := c.engine.Read(p)
	if n > 0 {
		c.logData(log.DirectionIn, p[:n])
	}
	return n, err
}

func (c *channel) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrChannelClosed
	}
	n, err := c.engine.Write(p)
	if n > 0 {
		c.logData(log.DirectionOut, p[:n])
	}
	return n, err
}

func (c *channel) ReadRecord() ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrChannelClosed
	}
	rec, err := c.engine.ReadRecord()
	if err == nil {
		c.logData(log.DirectionIn, rec)
	}
	return rec, err
}

func (c *channel) WriteRecord(p []byte) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	err := c.engine.WriteRecord(p)
	if err == nil {
		c.logData(log.DirectionOut, p)
	}
	return err
}

func (c *channel) ConnectionState() tls.ConnectionState {
	return c.engine.ConnectionState()
}

func (c *channel) AttemptID() string {
	return c.id
}

func (c *channel) RemoteAddr() netip.AddrPort {
	return c.remote
}

// Close tears down the engine and the socket. It is safe to call more than
// once; later calls return the first result.
func (c *channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.engine.Close()
		if err := c.sock.Close(); c.closeErr == nil {
			c.closeErr = err
		}
		c.release()
	})
	return c.closeErr
}

func (c *channel) logData(dir log.Direction, data []byte) {
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerApplication,
		Category:     log.CategoryData,
		RemoteAddr:   c.remote.String(),
		Data:         log.NewDataEvent(dir, data),
	})
}

// Compile-time interface satisfaction check.
var _ Channel = (*channel)(nil)
