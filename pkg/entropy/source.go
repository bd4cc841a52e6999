// Package entropy provides the process-wide randomness source.
//
// A Source is a ChaCha20 DRBG. Its key is derived with HKDF-SHA256 from a
// seed read from a hardware entropy reader, replaced after every read so
// earlier output cannot be reconstructed from a captured state, and reseeded
// from the entropy reader every ReseedInterval bytes.
//
// The same Source seeds the network stack once at startup and feeds every
// TLS handshake. Fixed or low-quality seeds are rejected.
package entropy

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

const (
	// SeedSize is the number of entropy bytes read per (re)seed.
	SeedSize = 32

	// ReseedInterval is the number of output bytes between reseeds.
	ReseedInterval = 1 << 20

	hkdfInfo = "mash-uplink drbg v1"
)

// Entropy errors.
var (
	ErrWeakEntropy  = errors.New("entropy: seed is all zero")
	ErrShortEntropy = errors.New("entropy: short read from entropy source")
)

// Source is a cryptographically secure random byte generator.
// It is safe for concurrent use.
type Source struct {
	mu        sync.Mutex
	entropy   io.Reader
	key       [chacha20.KeySize]byte
	generated int
	reseeds   int
}

// New creates a Source seeded from crypto/rand.
func New() (*Source, error) {
	return NewFromReader(rand.Reader)
}

// NewFromReader creates a Source seeded from the given entropy reader,
// typically a hardware TRNG.
func NewFromReader(entropy io.Reader) (*Source, error) {
	s := &Source{entropy: entropy}
	if err := s.reseed(); err != nil {
		return nil, err
	}
	return s, nil
}

// Read fills p with random bytes. It only fails if a scheduled reseed fails.
func (s *Source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generated >= ReseedInterval {
		if err := s.reseed(); err != nil {
			return 0, err
		}
	}

	c, err := chacha20.NewUnauthenticatedCipher(s.key[:], make([]byte, chacha20.NonceSize))
	if err != nil {
		return 0, fmt.Errorf("entropy: %w", err)
	}

	// The first block of keystream becomes the next key.
	var next [chacha20.KeySize]byte
	c.XORKeyStream(next[:], next[:])

	clear(p)
	c.XORKeyStream(p, p)

	s.key = next
	s.generated += len(p)
	return len(p), nil
}

// StackSeed returns a 64-bit seed for the network stack.
func (s *Source) StackSeed() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(s, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// Reseeds returns how many times the source has been seeded.
func (s *Source) Reseeds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reseeds
}

// reseed mixes fresh entropy and the current key into a new key.
// Callers hold s.mu, except during construction.
func (s *Source) reseed() error {
	var seed [SeedSize]byte
	if _, err := io.ReadFull(s.entropy, seed[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrShortEntropy, err)
	}
	if seed == [SeedSize]byte{} {
		return ErrWeakEntropy
	}

	kdf := hkdf.New(sha256.New, seed[:], s.key[:], []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return fmt.Errorf("entropy: derive key: %w", err)
	}
	clear(seed[:])

	s.generated = 0
	s.reseeds++
	return nil
}

// Compile-time interface satisfaction check.
var _ io.Reader = (*Source)(nil)
