package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"

	utls "github.com/refraction-networking/utls"
)

// DefaultCipherSuite is the one cipher suite the uplink accepts.
const DefaultCipherSuite = tls.TLS_AES_128_GCM_SHA256

// Engine errors.
var (
	ErrNotEstablished     = errors.New("session not established")
	ErrAlreadyEstablished = errors.New("session already established")
)

// Engine is a secure session layered on a connected socket.
type Engine interface {
	// Establish performs the handshake using rand for all randomness and v
	// to decide whether the server identity is acceptable.
	Establish(ctx context.Context, rand io.Reader, v Verifier) error

	Read(p []byte) (int, error)
	Write(p []byte) (int, error)

	// ReadRecord reads one length-prefixed record into the read record
	// buffer. The result is valid until the next ReadRecord.
	ReadRecord() ([]byte, error)

	// WriteRecord writes one length-prefixed record through the write
	// record buffer.
	WriteRecord(p []byte) error

	ConnectionState() tls.ConnectionState
	Close() error
}

// EngineFactory constructs an engine over a connected socket and the read
// and write record buffers.
type EngineFactory func(sock Socket, readRec, writeRec []byte) Engine

// TLSConfig configures the TLS engine.
type TLSConfig struct {
	// ServerName is sent as SNI and passed to the Verifier.
	ServerName string

	// CipherSuite is the only suite offered in the ClientHello; it must be
	// a TLS 1.3 suite (default: TLS_AES_128_GCM_SHA256).
	CipherSuite uint16
}

// TLSEngine is a TLS 1.3 Engine whose ClientHello offers exactly the
// configured cipher suite.
type TLSEngine struct {
	sock     Socket
	readRec  []byte
	writeRec []byte
	config   TLSConfig

	conn    *utls.UConn
	records *recordFramer
	state   tls.ConnectionState
}

// NewTLSEngineFactory returns an EngineFactory producing TLS engines.
func NewTLSEngineFactory(config TLSConfig) EngineFactory {
	if config.CipherSuite == 0 {
		config.CipherSuite = DefaultCipherSuite
	}
	return func(sock Socket, readRec, writeRec []byte) Engine {
		return &TLSEngine{
			sock:     sock,
			readRec:  readRec,
			writeRec: writeRec,
			config:   config,
		}
	}
}

// Establish runs the TLS 1.3 handshake offering only the configured suite.
func (e *TLSEngine) Establish(ctx context.Context, rand io.Reader, v Verifier) error {
	if e.conn != nil {
		return ErrAlreadyEstablished
	}
	if v == nil {
		return ErrNoVerifier
	}
	if !isTLS13Suite(e.config.CipherSuite) {
		return fmt.Errorf("%w: %s is not a TLS 1.3 suite", ErrCipherSuite, tls.CipherSuiteName(e.config.CipherSuite))
	}

	serverName := e.config.ServerName
	tlsConfig := &utls.Config{
		// TLS 1.3 only - no fallback
		MinVersion: utls.VersionTLS13,
		MaxVersion: utls.VersionTLS13,

		ServerName: serverName,
		Rand:       rand,

		// Identity is decided by the Verifier, not the default chain check.
		InsecureSkipVerify: true,
		VerifyConnection: func(cs utls.ConnectionState) error {
			return v.VerifyPeer(serverName, cs.PeerCertificates)
		},

		// Session tickets disabled (no resumption)
		SessionTicketsDisabled: true,
	}

	conn := utls.UClient(asConn(e.sock), tlsConfig, utls.HelloCustom)
	if err := conn.ApplyPreset(clientHelloSpec(e.config.CipherSuite, serverName)); err != nil {
		return fmt.Errorf("client hello: %w", err)
	}
	if err := conn.HandshakeContext(ctx); err != nil {
		return err
	}

	state := connectionState(conn.ConnectionState())
	if state.CipherSuite != e.config.CipherSuite {
		conn.Close()
		return fmt.Errorf("%w: negotiated %s, want %s", ErrCipherSuite,
			tls.CipherSuiteName(state.CipherSuite), tls.CipherSuiteName(e.config.CipherSuite))
	}

	e.conn = conn
	e.state = state
	e.records = newRecordFramer(conn, e.readRec, e.writeRec)
	return nil
}

// clientHelloSpec is a minimal TLS 1.3 ClientHello carrying one cipher suite.
func clientHelloSpec(suite uint16, serverName string) *utls.ClientHelloSpec {
	curves := []utls.CurveID{utls.X25519, utls.CurveP256}

	var extensions []utls.TLSExtension
	// IP literals are not permitted as SNI values.
	if serverName != "" && net.ParseIP(serverName) == nil {
		extensions = append(extensions, &utls.SNIExtension{ServerName: serverName})
	}
	extensions = append(extensions,
		&utls.SupportedCurvesExtension{Curves: curves},
		&utls.SignatureAlgorithmsExtension{SupportedSignatureAlgorithms: []utls.SignatureScheme{
			utls.ECDSAWithP256AndSHA256,
			utls.ECDSAWithP384AndSHA384,
			utls.PSSWithSHA256,
			utls.PSSWithSHA384,
			utls.Ed25519,
		}},
		&utls.KeyShareExtension{KeyShares: []utls.KeyShare{
			{Group: utls.X25519},
			{Group: utls.CurveP256},
		}},
		&utls.SupportedVersionsExtension{Versions: []uint16{utls.VersionTLS13}},
	)

	return &utls.ClientHelloSpec{
		TLSVersMin:         utls.VersionTLS13,
		TLSVersMax:         utls.VersionTLS13,
		CipherSuites:       []uint16{suite},
		CompressionMethods: []uint8{0},
		Extensions:         extensions,
	}
}

// connectionState converts the handshake result to the crypto/tls type.
func connectionState(cs utls.ConnectionState) tls.ConnectionState {
	return tls.ConnectionState{
		Version:            cs.Version,
		HandshakeComplete:  cs.HandshakeComplete,
		DidResume:          cs.DidResume,
		CipherSuite:        cs.CipherSuite,
		NegotiatedProtocol: cs.NegotiatedProtocol,
		ServerName:         cs.ServerName,
		PeerCertificates:   cs.PeerCertificates,
		VerifiedChains:     cs.VerifiedChains,
	}
}

func isTLS13Suite(id uint16) bool {
	for _, suite := range tls.CipherSuites() {
		if suite.ID != id {
			continue
		}
		for _, v := range suite.SupportedVersions {
			if v == tls.VersionTLS13 {
				return true
			}
		}
	}
	return false
}

// Read reads decrypted application data.
func (e *TLSEngine) Read(p []byte) (int, error) {
	if e.conn == nil {
		return 0, ErrNotEstablished
	}
	return e.conn.Read(p)
}

// Write encrypts and sends application data.
func (e *TLSEngine) Write(p []byte) (int, error) {
	if e.conn == nil {
		return 0, ErrNotEstablished
	}
	return e.conn.Write(p)
}

// ReadRecord reads one record.
func (e *TLSEngine) ReadRecord() ([]byte, error) {
	if e.records == nil {
		return nil, ErrNotEstablished
	}
	return e.records.readRecord()
}

// WriteRecord writes one record.
func (e *TLSEngine) WriteRecord(p []byte) error {
	if e.records == nil {
		return ErrNotEstablished
	}
	return e.records.writeRecord(p)
}

// ConnectionState returns the negotiated TLS state.
func (e *TLSEngine) ConnectionState() tls.ConnectionState {
	return e.state
}

// Close sends close_notify and closes the socket.
func (e *TLSEngine) Close() error {
	if e.conn == nil {
		return e.sock.Close()
	}
	return e.conn.Close()
}

// Compile-time interface satisfaction check.
var _ Engine = (*TLSEngine)(nil)
