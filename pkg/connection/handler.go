package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/mash-protocol/mash-uplink/pkg/session"
)

// Handler exchanges application payload over an established channel.
// The loop closes the channel after Serve returns.
type Handler interface {
	Serve(ctx context.Context, ch session.Channel) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, ch session.Channel) error

// Serve calls f.
func (f HandlerFunc) Serve(ctx context.Context, ch session.Channel) error {
	return f(ctx, ch)
}

// Discard closes the channel straight after the handshake.
var Discard Handler = HandlerFunc(func(context.Context, session.Channel) error { return nil })

// ReadUntilEOF reads records until the peer closes the channel or an error
// occurs. A peer that stays silent past the socket idle timeout ends the
// exchange with that timeout error.
type ReadUntilEOF struct {
	// Logger for received records (optional).
	Logger *slog.Logger

	// OnRecord is called with each record (optional). The slice is only
	// valid during the call.
	OnRecord func(rec []byte)
}

// Serve reads records until EOF. Cancellation of ctx closes the channel.
func (h ReadUntilEOF) Serve(ctx context.Context, ch session.Channel) error {
	stop := context.AfterFunc(ctx, func() { ch.Close() })
	defer stop()

	for {
		rec, err := ch.ReadRecord()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		if h.Logger != nil {
			h.Logger.Info("received record", "attempt", ch.AttemptID(), "size", len(rec))
			h.Logger.Debug("record data", "attempt", ch.AttemptID(), "data", string(rec))
		}
		if h.OnRecord != nil {
			h.OnRecord(rec)
		}
	}
}

// Compile-time interface satisfaction check.
var _ Handler = ReadUntilEOF{}
