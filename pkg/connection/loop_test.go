package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/mash-uplink/pkg/session"
)

const (
	testRetry = 20 * time.Millisecond
	testPost  = 60 * time.Millisecond
)

// ---------------------------------------------------------------------------
// stubGate
// ---------------------------------------------------------------------------

type stubGate struct {
	mock.Mock
}

func (g *stubGate) Wait(ctx context.Context) error { return g.Called(ctx).Error(0) }

func readyGate() *stubGate {
	g := &stubGate{}
	g.On("Wait", mock.Anything).Return(nil)
	return g
}

// ---------------------------------------------------------------------------
// fakeChannel
// ---------------------------------------------------------------------------

type fakeChannel struct {
	id      string
	records chan []byte
	readErr error
	closed  atomic.Int32
	done    chan struct{}
	once    sync.Once
}

func newFakeChannel(id string, records ...string) *fakeChannel {
	ch := &fakeChannel{id: id, records: make(chan []byte, len(records)), readErr: io.EOF, done: make(chan struct{})}
	for _, r := range records {
		ch.records <- []byte(r)
	}
	close(ch.records)
	return ch
}

func (c *fakeChannel) Read(p []byte) (int, error)  { return 0, io.EOF }
func (c *fakeChannel) Write(p []byte) (int, error) { return len(p), nil }
func (c *fakeChannel) WriteRecord(p []byte) error  { return nil }
func (c *fakeChannel) AttemptID() string           { return c.id }
func (c *fakeChannel) RemoteAddr() netip.AddrPort  { return netip.MustParseAddrPort("10.0.0.1:8883") }
func (c *fakeChannel) ConnectionState() tls.ConnectionState {
	return tls.ConnectionState{Version: tls.VersionTLS13}
}

func (c *fakeChannel) ReadRecord() ([]byte, error) {
	select {
	case rec, ok := <-c.records:
		if ok {
			return rec, nil
		}
	case <-c.done:
		return nil, session.ErrChannelClosed
	}
	if c.readErr == nil {
		// Block like a silent peer until closed.
		<-c.done
		return nil, session.ErrChannelClosed
	}
	return nil, c.readErr
}

func (c *fakeChannel) Close() error {
	c.closed.Add(1)
	c.once.Do(func() { close(c.done) })
	return nil
}

// ---------------------------------------------------------------------------
// scriptedAttempter
// ---------------------------------------------------------------------------

type attemptOutcome struct {
	ch  session.Channel
	err error
}

// scriptedAttempter replays outcomes, repeating the last one forever.
type scriptedAttempter struct {
	mu       sync.Mutex
	outcomes []attemptOutcome
	times    []time.Time
}

func (a *scriptedAttempter) Attempt(ctx context.Context) (session.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.times = append(a.times, time.Now())
	o := a.outcomes[0]
	if len(a.outcomes) > 1 {
		a.outcomes = a.outcomes[1:]
	}
	if o.err != nil {
		return nil, o.err
	}
	return o.ch, nil
}

func (a *scriptedAttempter) calls() []time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]time.Time(nil), a.times...)
}

// ---------------------------------------------------------------------------
// countingRetry
// ---------------------------------------------------------------------------

type countingRetry struct {
	next   atomic.Int32
	resets atomic.Int32
}

func (r *countingRetry) Next() time.Duration { r.next.Add(1); return testRetry }
func (r *countingRetry) Reset()              { r.resets.Add(1) }

func transportErr(msg string) error {
	return &session.AttemptError{AttemptID: "t", Stage: session.StageTransport, Err: errors.New(msg)}
}

func handshakeErr(msg string) error {
	return &session.AttemptError{AttemptID: "h", Stage: session.StageHandshake, Err: errors.New(msg)}
}

func runLoop(t *testing.T, l *Loop) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		errCh <- l.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel, errCh
}

func TestLoopWaitsForGateOnce(t *testing.T) {
	gate := readyGate()
	att := &scriptedAttempter{outcomes: []attemptOutcome{{err: transportErr("refused")}}}
	l := NewLoop(gate, att, LoopConfig{Retry: FixedDelay(testRetry), PostAttemptDelay: testPost})

	runLoop(t, l)

	assert.Eventually(t, func() bool { return len(att.calls()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	gate.AssertNumberOfCalls(t, "Wait", 1)
}

func TestLoopGateCancellation(t *testing.T) {
	gate := &stubGate{}
	gate.On("Wait", mock.Anything).Return(context.Canceled)
	att := &scriptedAttempter{outcomes: []attemptOutcome{{err: transportErr("refused")}}}
	l := NewLoop(gate, att, LoopConfig{})

	err := l.Run(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, att.calls())
}

func TestLoopDelaysAfterTransportFailure(t *testing.T) {
	att := &scriptedAttempter{outcomes: []attemptOutcome{{err: transportErr("i/o timeout")}}}
	l := NewLoop(readyGate(), att, LoopConfig{Retry: FixedDelay(testRetry), PostAttemptDelay: testPost})

	start := time.Now()
	_, errCh := runLoop(t, l)

	require.Eventually(t, func() bool { return len(att.calls()) >= 3 }, 2*time.Second, 5*time.Millisecond)

	calls := att.calls()
	assert.GreaterOrEqual(t, calls[0].Sub(start), testRetry, "pre-attempt delay")
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), testRetry+testPost,
			"gap between attempt %d and %d", i-1, i)
	}

	stats := l.Stats()
	assert.GreaterOrEqual(t, stats.TransportFailures, 3)
	assert.Zero(t, stats.Established)
	assert.Contains(t, stats.LastError, "i/o timeout")

	select {
	case err := <-errCh:
		t.Fatalf("loop returned early: %v", err)
	default:
	}
}

func TestLoopServesAndClosesChannel(t *testing.T) {
	first := newFakeChannel("a1", "hello", "world")
	second := newFakeChannel("a2")
	att := &scriptedAttempter{outcomes: []attemptOutcome{
		{ch: first},
		{err: handshakeErr("alert")},
		{ch: second},
		{err: transportErr("refused")},
	}}

	var mu sync.Mutex
	var received []string
	handler := ReadUntilEOF{OnRecord: func(rec []byte) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, string(rec))
	}}

	var results []AttemptResult
	retry := &countingRetry{}
	l := NewLoop(readyGate(), att, LoopConfig{Retry: retry, PostAttemptDelay: testPost, Handler: handler})
	l.OnAttempt(func(r AttemptResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	})

	runLoop(t, l)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{"hello", "world"}, received)
	assert.EqualValues(t, 1, first.closed.Load())
	assert.EqualValues(t, 1, second.closed.Load())

	assert.True(t, results[0].Established)
	assert.Equal(t, "a1", results[0].AttemptID)
	assert.NoError(t, results[0].ServeErr)
	assert.Equal(t, 1, results[0].Number)

	assert.False(t, results[1].Established)
	assert.ErrorIs(t, results[1].Err, session.ErrHandshake)
	assert.Equal(t, "h", results[1].AttemptID)

	assert.True(t, results[2].Established)
	assert.GreaterOrEqual(t, retry.resets.Load(), int32(2))

	stats := l.Stats()
	assert.GreaterOrEqual(t, stats.Established, 2)
	assert.GreaterOrEqual(t, stats.HandshakeFailures, 1)
}

func TestLoopPostDelayAfterSuccess(t *testing.T) {
	att := &scriptedAttempter{outcomes: []attemptOutcome{{ch: newFakeChannel("s1")}, {err: transportErr("refused")}}}
	l := NewLoop(readyGate(), att, LoopConfig{Retry: FixedDelay(testRetry), PostAttemptDelay: testPost})

	runLoop(t, l)

	require.Eventually(t, func() bool { return len(att.calls()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	calls := att.calls()
	assert.GreaterOrEqual(t, calls[1].Sub(calls[0]), testRetry+testPost)
}

func TestLoopCancelReturnsContextError(t *testing.T) {
	att := &scriptedAttempter{outcomes: []attemptOutcome{{err: transportErr("refused")}}}
	l := NewLoop(readyGate(), att, LoopConfig{Retry: FixedDelay(testRetry), PostAttemptDelay: testPost})

	cancel, errCh := runLoop(t, l)
	require.Eventually(t, func() bool { return len(att.calls()) >= 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopDefaults(t *testing.T) {
	l := NewLoop(readyGate(), &scriptedAttempter{}, LoopConfig{})
	assert.Equal(t, FixedDelay(DefaultRetryDelay), l.retry)
	assert.Equal(t, DefaultPostAttemptDelay, l.postDelay)
	assert.NotNil(t, l.handler)
}

func TestReadUntilEOF(t *testing.T) {
	t.Run("EOF", func(t *testing.T) {
		ch := newFakeChannel("x", "a", "b", "c")
		var n int
		err := ReadUntilEOF{OnRecord: func([]byte) { n++ }}.Serve(context.Background(), ch)
		assert.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("ReadError", func(t *testing.T) {
		ch := newFakeChannel("x", "a")
		ch.readErr = errors.New("i/o timeout")
		err := ReadUntilEOF{}.Serve(context.Background(), ch)
		assert.EqualError(t, err, "i/o timeout")
	})

	t.Run("CancelClosesChannel", func(t *testing.T) {
		ch := newFakeChannel("x")
		ch.readErr = nil // silent peer

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- ReadUntilEOF{}.Serve(ctx, ch) }()

		cancel()
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("handler did not stop")
		}
		assert.EqualValues(t, 1, ch.closed.Load())
	})
}
