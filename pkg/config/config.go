// Package config holds the uplink's compile-time configuration.
//
// The configuration is a YAML document embedded in the binary. Network
// credentials, the remote endpoint and the pinned server fingerprint can be
// replaced at build time with -ldflags -X on the variables below; there is no
// runtime surface for them.
package config

import (
	"crypto/tls"
	_ "embed"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/mash-uplink/pkg/cert"
	"github.com/mash-protocol/mash-uplink/pkg/connection"
	"github.com/mash-protocol/mash-uplink/pkg/link"
	"github.com/mash-protocol/mash-uplink/pkg/session"
)

//go:embed uplink.yaml
var embedded []byte

// Build-time overrides, set with -ldflags -X. Empty means keep the embedded value.
var (
	SSID        string
	Password    string
	Remote      string
	Fingerprint string
)

// Identity verification modes.
const (
	VerifyPinned            = "pinned"
	VerifyRootPool          = "root-pool"
	VerifyInsecureAcceptAny = "insecure-accept-any"
)

// Retry modes.
const (
	RetryFixed       = "fixed"
	RetryExponential = "exponential"
)

// minBufferSize bounds how small an attempt buffer may be configured.
const minBufferSize = 64

// Configuration errors.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrNoIdentityPolicy = errors.New("remote.verify.mode must be set")
)

// Config is the complete uplink configuration.
type Config struct {
	Network NetworkConfig `yaml:"network"`
	Remote  RemoteConfig  `yaml:"remote"`
	Timing  TimingConfig  `yaml:"timing"`
	Retry   RetryConfig   `yaml:"retry"`
	Buffers BufferConfig  `yaml:"buffers"`
}

// NetworkConfig holds the wireless credentials.
type NetworkConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

// RemoteConfig describes the fixed endpoint.
type RemoteConfig struct {
	Address     string       `yaml:"address"`
	ServerName  string       `yaml:"server_name"`
	CipherSuite string       `yaml:"cipher_suite"`
	Verify      VerifyConfig `yaml:"verify"`
}

// VerifyConfig selects the server identity policy.
type VerifyConfig struct {
	Mode        string `yaml:"mode"`
	Fingerprint string `yaml:"fingerprint"`
	RootsPEM    string `yaml:"roots_pem"`
}

// TimingConfig holds the fixed delays and timeouts.
type TimingConfig struct {
	LinkCooldown     time.Duration `yaml:"link_cooldown"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	StackPump        time.Duration `yaml:"stack_pump"`
	SocketTimeout    time.Duration `yaml:"socket_timeout"`
	PreAttemptDelay  time.Duration `yaml:"pre_attempt_delay"`
	PostAttemptDelay time.Duration `yaml:"post_attempt_delay"`
}

// RetryConfig selects the pre-attempt delay policy.
type RetryConfig struct {
	Mode string        `yaml:"mode"`
	Max  time.Duration `yaml:"max"`
}

// BufferConfig sets the attempt buffer sizes in bytes.
type BufferConfig struct {
	SocketRx    int `yaml:"socket_rx"`
	SocketTx    int `yaml:"socket_tx"`
	RecordRead  int `yaml:"record_read"`
	RecordWrite int `yaml:"record_write"`
}

// Overrides replace embedded values. Empty fields are ignored.
type Overrides struct {
	SSID        string
	Password    string
	Remote      string
	Fingerprint string
}

// BuildOverrides returns the values set with -ldflags -X.
func BuildOverrides() Overrides {
	return Overrides{SSID: SSID, Password: Password, Remote: Remote, Fingerprint: Fingerprint}
}

// Default returns the embedded configuration without build-time overrides.
func Default() (*Config, error) {
	return Parse(embedded)
}

// Load returns the embedded configuration with build-time overrides applied
// and validated.
func Load() (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	cfg.Apply(BuildOverrides())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// Apply replaces fields with the non-empty overrides. A fingerprint
// override selects the pinned policy.
func (c *Config) Apply(o Overrides) {
	if o.SSID != "" {
		c.Network.SSID = o.SSID
	}
	if o.Password != "" {
		c.Network.Password = o.Password
	}
	if o.Remote != "" {
		c.Remote.Address = o.Remote
	}
	if o.Fingerprint != "" {
		c.Remote.Verify.Mode = VerifyPinned
		c.Remote.Verify.Fingerprint = o.Fingerprint
	}
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Credentials().Validate(); err != nil {
		return fmt.Errorf("%w: network: %v", ErrInvalidConfig, err)
	}
	if _, err := c.RemoteAddr(); err != nil {
		return err
	}
	if _, err := c.CipherSuiteID(); err != nil {
		return err
	}
	if _, err := c.Verifier(); err != nil {
		return err
	}

	timings := []struct {
		name string
		d    time.Duration
	}{
		{"link_cooldown", c.Timing.LinkCooldown},
		{"poll_interval", c.Timing.PollInterval},
		{"stack_pump", c.Timing.StackPump},
		{"socket_timeout", c.Timing.SocketTimeout},
		{"pre_attempt_delay", c.Timing.PreAttemptDelay},
		{"post_attempt_delay", c.Timing.PostAttemptDelay},
	}
	for _, t := range timings {
		if t.d <= 0 {
			return fmt.Errorf("%w: timing.%s must be positive, got %v", ErrInvalidConfig, t.name, t.d)
		}
	}

	if _, err := c.RetryPolicy(); err != nil {
		return err
	}

	buffers := []struct {
		name string
		n    int
	}{
		{"socket_rx", c.Buffers.SocketRx},
		{"socket_tx", c.Buffers.SocketTx},
		{"record_read", c.Buffers.RecordRead},
		{"record_write", c.Buffers.RecordWrite},
	}
	for _, b := range buffers {
		if b.n < minBufferSize {
			return fmt.Errorf("%w: buffers.%s must be at least %d, got %d", ErrInvalidConfig, b.name, minBufferSize, b.n)
		}
	}
	return nil
}

// Credentials returns the wireless credentials.
func (c *Config) Credentials() link.Credentials {
	return link.Credentials{SSID: c.Network.SSID, Password: c.Network.Password}
}

// RemoteAddr parses the remote endpoint.
func (c *Config) RemoteAddr() (netip.AddrPort, error) {
	addr, err := netip.ParseAddrPort(c.Remote.Address)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: remote.address: %v", ErrInvalidConfig, err)
	}
	if addr.Port() == 0 {
		return netip.AddrPort{}, fmt.Errorf("%w: remote.address: port must not be zero", ErrInvalidConfig)
	}
	return addr, nil
}

// CipherSuiteID resolves the configured TLS 1.3 cipher suite name.
// An empty name selects the default suite.
func (c *Config) CipherSuiteID() (uint16, error) {
	if c.Remote.CipherSuite == "" {
		return session.DefaultCipherSuite, nil
	}
	for _, suite := range tls.CipherSuites() {
		if suite.Name != c.Remote.CipherSuite {
			continue
		}
		for _, v := range suite.SupportedVersions {
			if v == tls.VersionTLS13 {
				return suite.ID, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: remote.cipher_suite %q is not a TLS 1.3 suite", ErrInvalidConfig, c.Remote.CipherSuite)
}

// Verifier builds the configured server identity policy.
func (c *Config) Verifier() (session.Verifier, error) {
	v := c.Remote.Verify
	switch v.Mode {
	case VerifyPinned:
		p, err := session.NewPinnedFingerprint(v.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("%w: remote.verify.fingerprint: %v", ErrInvalidConfig, err)
		}
		return p, nil
	case VerifyRootPool:
		pool, err := cert.PoolFromPEM([]byte(v.RootsPEM))
		if err != nil {
			return nil, fmt.Errorf("%w: remote.verify.roots_pem: %v", ErrInvalidConfig, err)
		}
		return &session.RootPool{Roots: pool, ServerName: c.Remote.ServerName}, nil
	case VerifyInsecureAcceptAny:
		return session.AcceptAny{}, nil
	case "":
		return nil, ErrNoIdentityPolicy
	default:
		return nil, fmt.Errorf("%w: unknown remote.verify.mode %q", ErrInvalidConfig, v.Mode)
	}
}

// RetryPolicy builds the pre-attempt delay policy.
func (c *Config) RetryPolicy() (connection.RetryPolicy, error) {
	switch c.Retry.Mode {
	case RetryFixed, "":
		return connection.FixedDelay(c.Timing.PreAttemptDelay), nil
	case RetryExponential:
		return connection.NewBackoffWithConfig(connection.BackoffConfig{
			Initial: c.Timing.PreAttemptDelay,
			Max:     c.Retry.Max,
			Jitter:  connection.JitterFactor,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown retry.mode %q", ErrInvalidConfig, c.Retry.Mode)
	}
}

// BufferSizes returns the attempt buffer sizes.
func (c *Config) BufferSizes() session.BufferSizes {
	return session.BufferSizes{
		SocketRx:    c.Buffers.SocketRx,
		SocketTx:    c.Buffers.SocketTx,
		RecordRead:  c.Buffers.RecordRead,
		RecordWrite: c.Buffers.RecordWrite,
	}
}
