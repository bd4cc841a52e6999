// Package session drives one end-to-end secure session attempt against the
// fixed remote endpoint.
//
// An attempt opens a transport socket over the shared socket buffers, layers
// a secure session engine over it using the shared record buffers, and runs
// the handshake with the process randomness source and an explicit server
// identity policy (Verifier). The per-attempt state machine is:
//
//	Idle → TransportConnecting → TransportConnected → HandshakeInProgress
//	     → SessionEstablished | Failed → Idle
//
// Transport failures never reach the engine. Handshake failures close the
// engine and the socket. At most one Channel is live per Driver; the next
// Attempt returns ErrAttemptActive until it is closed.
//
// Records exchanged over a Channel are length-prefixed: a 4-byte big-endian
// length followed by the payload. The payload must fit in the record
// buffer.
package session
