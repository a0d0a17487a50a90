package workerhost

import (
	"net/http"
	"time"

	"github.com/vango-dev/bridge/pkg/wire"
)

// Config holds per-connection settings for a Host.
type Config struct {
	// ReadTimeout is the maximum time to wait for a message or pong from the
	// client. Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a frame.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HandshakeTimeout is the maximum time for the Hello exchange.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// HeartbeatInterval is the time between ping frames. Zero disables pings.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// MaxMessageSize is the maximum size of an incoming WebSocket message.
	// Values below wire.MaxFrameSize are raised to it.
	// Default: wire.MaxFrameSize.
	MaxMessageSize int64

	// MailboxSize is the number of inputs that may wait for the worker.
	// Further inputs are rejected with a non-fatal MailboxFull error frame.
	// Default: 128.
	MailboxSize int

	// ReadBufferSize and WriteBufferSize size the WebSocket buffers.
	// Default: 4096.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates the upgrade request origin.
	// Default: allows all origins.
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    wire.MaxFrameSize,
		MailboxSize:       128,
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// withDefaults fills zero fields from DefaultConfig. HeartbeatInterval is
// left alone so zero can disable pings.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := c.Clone()
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = d.ReadTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = d.HandshakeTimeout
	}
	if out.MaxMessageSize < wire.MaxFrameSize {
		out.MaxMessageSize = wire.MaxFrameSize
	}
	if out.MailboxSize <= 0 {
		out.MailboxSize = d.MailboxSize
	}
	if out.ReadBufferSize <= 0 {
		out.ReadBufferSize = d.ReadBufferSize
	}
	if out.WriteBufferSize <= 0 {
		out.WriteBufferSize = d.WriteBufferSize
	}
	return out
}
