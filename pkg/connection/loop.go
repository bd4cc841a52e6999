package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mash-protocol/mash-uplink/pkg/session"
)

// DefaultPostAttemptDelay is the fixed delay after every attempt.
const DefaultPostAttemptDelay = 3 * time.Second

// Gate blocks until the network stack is usable.
type Gate interface {
	Wait(ctx context.Context) error
}

// Attempter runs one session attempt.
type Attempter interface {
	Attempt(ctx context.Context) (session.Channel, error)
}

// LoopConfig configures the connection loop.
type LoopConfig struct {
	// Retry yields the delay before each attempt (default: FixedDelay of 1s).
	Retry RetryPolicy

	// PostAttemptDelay is the delay after each attempt, independent of its
	// outcome (default: 3s).
	PostAttemptDelay time.Duration

	// Handler serves established channels (default: Discard).
	Handler Handler

	// Logger for operational output (optional).
	Logger *slog.Logger
}

// AttemptResult describes one finished attempt.
type AttemptResult struct {
	// Number is the 1-based attempt count.
	Number int

	// AttemptID is the session attempt ID (empty if none was assigned).
	AttemptID string

	// Established reports whether the handshake succeeded.
	Established bool

	// Err is the attempt failure, nil when Established.
	Err error

	// ServeErr is the handler's result for an established channel.
	ServeErr error

	// Duration covers the attempt and the handler.
	Duration time.Duration
}

// Stats summarise the loop's attempts.
type Stats struct {
	Attempts          int
	Established       int
	TransportFailures int
	HandshakeFailures int
	LastError         string
	LastAttempt       time.Time
}

// Loop drives session attempts forever.
type Loop struct {
	gate      Gate
	attempter Attempter
	retry     RetryPolicy
	postDelay time.Duration
	handler   Handler
	logger    *slog.Logger

	mu        sync.RWMutex
	stats     Stats
	onAttempt func(AttemptResult)
}

// NewLoop creates a connection loop.
func NewLoop(gate Gate, attempter Attempter, config LoopConfig) *Loop {
	if config.Retry == nil {
		config.Retry = FixedDelay(DefaultRetryDelay)
	}
	if config.PostAttemptDelay <= 0 {
		config.PostAttemptDelay = DefaultPostAttemptDelay
	}
	if config.Handler == nil {
		config.Handler = Discard
	}
	return &Loop{
		gate:      gate,
		attempter: attempter,
		retry:     config.Retry,
		postDelay: config.PostAttemptDelay,
		handler:   config.Handler,
		logger:    config.Logger,
	}
}

// OnAttempt sets a callback invoked after every attempt.
// The callback runs on the loop goroutine.
func (l *Loop) OnAttempt(fn func(AttemptResult)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onAttempt = fn
}

// Stats returns a snapshot of the attempt counters.
func (l *Loop) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// Run waits for the gate once and then attempts forever.
// It only returns when ctx is done, with ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	if err := l.gate.Wait(ctx); err != nil {
		return err
	}
	l.info("network ready")

	for {
		if err := sleep(ctx, l.retry.Next()); err != nil {
			return err
		}

		l.attempt(ctx)

		if err := sleep(ctx, l.postDelay); err != nil {
			return err
		}
	}
}

// attempt runs one attempt and always releases its channel before returning.
func (l *Loop) attempt(ctx context.Context) {
	start := time.Now()

	l.mu.Lock()
	l.stats.Attempts++
	l.stats.LastAttempt = start
	result := AttemptResult{Number: l.stats.Attempts}
	l.mu.Unlock()

	l.debugLog("connecting", "attempt", result.Number)

	ch, err := l.attempter.Attempt(ctx)
	if err != nil {
		result.Err = err
		var attemptErr *session.AttemptError
		if errors.As(err, &attemptErr) {
			result.AttemptID = attemptErr.AttemptID
		}
		if ctx.Err() == nil {
			l.warn("connection attempt failed", "attempt", result.Number, "error", err)
		}
	} else {
		result.Established = true
		result.AttemptID = ch.AttemptID()
		l.retry.Reset()
		l.info("connected", "attempt", result.Number, "id", result.AttemptID, "remote", ch.RemoteAddr())

		result.ServeErr = l.handler.Serve(ctx, ch)
		if result.ServeErr != nil && ctx.Err() == nil {
			l.warn("session ended with error", "id", result.AttemptID, "error", result.ServeErr)
		}
		if err := ch.Close(); err != nil {
			l.debugLog("channel close", "id", result.AttemptID, "error", err)
		}
		l.info("session closed", "id", result.AttemptID)
	}
	result.Duration = time.Since(start)

	l.record(result)
}

func (l *Loop) record(result AttemptResult) {
	l.mu.Lock()
	switch {
	case result.Established:
		l.stats.Established++
	case errors.Is(result.Err, session.ErrTransport):
		l.stats.TransportFailures++
	case errors.Is(result.Err, session.ErrHandshake):
		l.stats.HandshakeFailures++
	}
	if result.Err != nil {
		l.stats.LastError = result.Err.Error()
	}
	fn := l.onAttempt
	l.mu.Unlock()

	if fn != nil {
		fn(result)
	}
}

func (l *Loop) info(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Info(msg, args...)
	}
}

func (l *Loop) warn(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}

func (l *Loop) debugLog(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
