package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidConfig is returned for every rejected configuration value
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultAppID      = "lothar.com/wormhole/text-or-file-xfer"
	DefaultRelayURL   = "stun:stun.l.google.com:19302"
	DefaultCodeLength = 2

	DefaultChunkSize = 64 * 1024
	MinChunkSize     = 4 * 1024
	MaxChunkSize     = 256 * 1024

	// MinTimeout catches unit-less values such as "30", which parse as nanoseconds
	MinTimeout = 10 * time.Millisecond
)

// Config is the immutable parameter set shared by every transfer. Values are
// fixed at construction and only exposed through accessors.
type Config struct {
	appID       string
	mailboxURL  string
	relayURL    string
	codeLength  int
	historyPath string

	transfer TransferConfig
	timeouts TimeoutConfig
	webrtc   WebRTCConfig
	firebase FirebaseConfig
}

// TransferConfig holds payload shaping options
type TransferConfig struct {
	ChunkSize int  `json:"chunk_size"`
	Compress  bool `json:"compress"`
	Checksum  bool `json:"checksum"`
}

// TimeoutConfig bounds every suspension point of a transfer
type TimeoutConfig struct {
	Handshake time.Duration `json:"handshake"` // rendezvous + key agreement
	Metadata  time.Duration `json:"metadata"`  // receiver waiting for the announcement
	Stall     time.Duration `json:"stall"`     // gap between two data frames
	Ack       time.Duration `json:"ack"`       // sender waiting for the final acknowledgement
	Close     time.Duration `json:"close"`
}

// WebRTCConfig holds data channel flow control thresholds
type WebRTCConfig struct {
	BufferedAmountLowThreshold uint64 `json:"buffered_amount_low_threshold"`
	MaxBufferedAmount          uint64 `json:"max_buffered_amount"`
}

// FirebaseConfig holds Firebase client configuration
type FirebaseConfig struct {
	CredentialsPath string `json:"credentials_path"`
}

// Option adjusts optional settings during New
type Option func(*Config)

func WithChunkSize(size int) Option {
	return func(c *Config) { c.transfer.ChunkSize = size }
}

func WithCompression(enabled bool) Option {
	return func(c *Config) { c.transfer.Compress = enabled }
}

func WithChecksum(enabled bool) Option {
	return func(c *Config) { c.transfer.Checksum = enabled }
}

func WithTimeouts(t TimeoutConfig) Option {
	return func(c *Config) { c.timeouts = t }
}

func WithWebRTC(w WebRTCConfig) Option {
	return func(c *Config) { c.webrtc = w }
}

func WithFirebaseCredentials(path string) Option {
	return func(c *Config) { c.firebase.CredentialsPath = path }
}

// WithHistoryPath enables the transfer history store at path.
func WithHistoryPath(path string) Option {
	return func(c *Config) { c.historyPath = path }
}

// DefaultTimeouts returns the timeouts used when none are configured
func DefaultTimeouts() TimeoutConfig {
	return TimeoutConfig{
		Handshake: 5 * time.Minute,
		Metadata:  30 * time.Second,
		Stall:     30 * time.Second,
		Ack:       30 * time.Second,
		Close:     5 * time.Second,
	}
}

// DefaultWebRTC returns the default flow control thresholds
func DefaultWebRTC() WebRTCConfig {
	return WebRTCConfig{
		BufferedAmountLowThreshold: 512 * 1024,  // 512 KB
		MaxBufferedAmount:          1024 * 1024, // 1 MB
	}
}

// New validates and builds a Config. It has no side effects.
func New(appID, mailboxURL, relayURL string, codeLength int, opts ...Option) (*Config, error) {
	c := &Config{
		appID:      strings.TrimSpace(appID),
		mailboxURL: strings.TrimSpace(mailboxURL),
		relayURL:   strings.TrimSpace(relayURL),
		codeLength: codeLength,
		transfer: TransferConfig{
			ChunkSize: DefaultChunkSize,
			Checksum:  true,
		},
		timeouts: DefaultTimeouts(),
		webrtc:   DefaultWebRTC(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.appID == "" {
		return fmt.Errorf("%w: app id must be set", ErrInvalidConfig)
	}
	if err := validateURL("mailbox url", c.mailboxURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("relay url", c.relayURL, "stun", "stuns", "turn", "turns"); err != nil {
		return err
	}
	if c.codeLength < 1 {
		return fmt.Errorf("%w: code length must be at least 1, got %d", ErrInvalidConfig, c.codeLength)
	}
	if c.transfer.ChunkSize < MinChunkSize || c.transfer.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: chunk size must be within [%d, %d], got %d",
			ErrInvalidConfig, MinChunkSize, MaxChunkSize, c.transfer.ChunkSize)
	}

	t := c.timeouts
	for name, d := range map[string]time.Duration{
		"handshake": t.Handshake,
		"metadata":  t.Metadata,
		"stall":     t.Stall,
		"ack":       t.Ack,
		"close":     t.Close,
	} {
		if d < MinTimeout {
			return fmt.Errorf("%w: %s timeout %s is below %s, durations need a unit such as 30s",
				ErrInvalidConfig, name, d, MinTimeout)
		}
	}

	if c.webrtc.BufferedAmountLowThreshold >= c.webrtc.MaxBufferedAmount {
		return fmt.Errorf("%w: buffered amount low threshold must be less than max buffered amount", ErrInvalidConfig)
	}
	return nil
}

// validateURL accepts hierarchical (https://host) and opaque (stun:host:port) forms
func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%w: %s must be set", ErrInvalidConfig, field)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s is malformed: %v", ErrInvalidConfig, field, err)
	}

	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range schemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s scheme %q not one of %v", ErrInvalidConfig, field, u.Scheme, schemes)
	}
	if u.Host == "" && strings.Trim(u.Opaque, ":") == "" {
		return fmt.Errorf("%w: %s has no host", ErrInvalidConfig, field)
	}
	return nil
}

func (c *Config) AppID() string       { return c.appID }
func (c *Config) MailboxURL() string  { return c.mailboxURL }
func (c *Config) RelayURL() string    { return c.relayURL }
func (c *Config) CodeLength() int     { return c.codeLength }
func (c *Config) HistoryPath() string { return c.historyPath }

func (c *Config) Transfer() TransferConfig { return c.transfer }
func (c *Config) Timeouts() TimeoutConfig  { return c.timeouts }
func (c *Config) WebRTC() WebRTCConfig     { return c.webrtc }
func (c *Config) Firebase() FirebaseConfig { return c.firebase }
