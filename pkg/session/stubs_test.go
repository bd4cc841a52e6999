package session

import (
	"context"
	"crypto/tls"
	"io"
	"net/netip"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/mash-protocol/mash-uplink/pkg/log"
)

// ---------------------------------------------------------------------------
// stubSocket
// ---------------------------------------------------------------------------

type stubSocket struct {
	mock.Mock
	rx, tx []byte
}

func (s *stubSocket) SetTimeout(d time.Duration)  { s.Called(d) }
func (s *stubSocket) Read(p []byte) (int, error)  { return 0, io.EOF }
func (s *stubSocket) Write(p []byte) (int, error) { return len(p), nil }
func (s *stubSocket) Close() error                { return s.Called().Error(0) }
func (s *stubSocket) Connect(ctx context.Context, remote netip.AddrPort) error {
	return s.Called(ctx, remote).Error(0)
}

// ---------------------------------------------------------------------------
// stubEngine
// ---------------------------------------------------------------------------

type stubEngine struct {
	mock.Mock
}

func (e *stubEngine) Establish(ctx context.Context, rand io.Reader, v Verifier) error {
	return e.Called(ctx, rand, v).Error(0)
}
func (e *stubEngine) Read(p []byte) (int, error)  { return 0, io.EOF }
func (e *stubEngine) Write(p []byte) (int, error) { return len(p), nil }
func (e *stubEngine) ReadRecord() ([]byte, error) { return nil, io.EOF }
func (e *stubEngine) WriteRecord(p []byte) error  { return nil }
func (e *stubEngine) Close() error                { return e.Called().Error(0) }
func (e *stubEngine) ConnectionState() tls.ConnectionState {
	return tls.ConnectionState{Version: tls.VersionTLS13, CipherSuite: DefaultCipherSuite}
}

// ---------------------------------------------------------------------------
// factories
// ---------------------------------------------------------------------------

// socketFactory hands out a new stubSocket per attempt, configured by setup.
type socketFactory struct {
	mu      sync.Mutex
	setup   func(*stubSocket)
	sockets []*stubSocket
}

func (f *socketFactory) New(rx, tx []byte) Socket {
	s := &stubSocket{rx: rx, tx: tx}
	s.On("SetTimeout", mock.Anything).Return()
	s.On("Close").Return(nil)
	f.setup(s)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sockets = append(f.sockets, s)
	return s
}

func (f *socketFactory) all() []*stubSocket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*stubSocket(nil), f.sockets...)
}

type engineFactory struct {
	mu      sync.Mutex
	setup   func(*stubEngine)
	engines []*stubEngine
	records [][2][]byte
}

func (f *engineFactory) New(sock Socket, readRec, writeRec []byte) Engine {
	e := &stubEngine{}
	e.On("Close").Return(nil)
	f.setup(e)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.engines = append(f.engines, e)
	f.records = append(f.records, [2][]byte{readRec, writeRec})
	return e
}

func (f *engineFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

// ---------------------------------------------------------------------------
// recordingLogger
// ---------------------------------------------------------------------------

type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *recordingLogger) Log(e log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *recordingLogger) snapshot() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}
