package console

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/danmuck/tcpconsole/internal/protocol/frame"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidPort      = errors.New("console: invalid port")
	ErrNonLoopbackBind  = errors.New("console: loopback-only console cannot bind a non-loopback address")
	ErrInvalidTimeout   = errors.New("console: invalid timeout")
	ErrInvalidFrameSize = errors.New("console: invalid max frame size")
)

// ConfigError is returned by New and Registry.Register and names the
// configuration field that was rejected.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("console: config: %s", e.Reason)
	}
	return fmt.Sprintf("console: config field=%s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// GreetingMode selects how the welcome text is written.
type GreetingMode int

const (
	// GreetingFramed writes the welcome as one length-prefixed frame.
	GreetingFramed GreetingMode = iota
	// GreetingBare writes the welcome text as-is, without a length prefix.
	GreetingBare
)

func (m GreetingMode) String() string {
	switch m {
	case GreetingFramed:
		return "framed"
	case GreetingBare:
		return "bare"
	default:
		return fmt.Sprintf("greeting(%d)", int(m))
	}
}

// Config is the finished, immutable description of one console.
type Config struct {
	// Host is the bind host. Empty binds every interface, or 127.0.0.1 when
	// LoopbackOnly is set.
	Host string
	// Port 0 lets the kernel pick one; see Handle.Addr.
	Port int
	// Welcome is written once per connection. A trailing newline is added.
	Welcome  string
	Greeting GreetingMode
	// LoopbackOnly restricts the bind address and drops non-loopback peers.
	LoopbackOnly bool
	// ReusePort sets SO_REUSEPORT on the listening socket where supported so
	// several processes can share one port.
	ReusePort bool

	MaxFrameSize uint32
	// IdleTimeout ends a session that sends nothing for this long. Zero
	// disables it.
	IdleTimeout  time.Duration
	WriteTimeout time.Duration

	// ReportUnprocessable writes a framed notice back to the client when no
	// handler took a command.
	ReportUnprocessable bool

	Subscriptions []Binding

	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// DefaultWriteTimeout bounds a single response write.
const DefaultWriteTimeout = 15 * time.Second

// Validate checks scalar settings. Subscriptions are validated when the
// registry is built.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Field: "port", Reason: fmt.Sprintf("port %d out of range", c.Port), Err: ErrInvalidPort}
	}
	if c.LoopbackOnly {
		if host := strings.TrimSpace(c.Host); host != "" && !isLoopbackHost(host) {
			return &ConfigError{Field: "host", Reason: fmt.Sprintf("host %q is not loopback", host), Err: ErrNonLoopbackBind}
		}
	}
	if c.IdleTimeout < 0 {
		return &ConfigError{Field: "idle_timeout", Reason: "negative duration", Err: ErrInvalidTimeout}
	}
	if c.WriteTimeout < 0 {
		return &ConfigError{Field: "write_timeout", Reason: "negative duration", Err: ErrInvalidTimeout}
	}
	if c.MaxFrameSize != 0 && c.MaxFrameSize < envelopeOverhead {
		return &ConfigError{
			Field:  "max_frame_size",
			Reason: fmt.Sprintf("max frame size %d below typed envelope overhead %d", c.MaxFrameSize, envelopeOverhead),
			Err:    ErrInvalidFrameSize,
		}
	}
	if c.Greeting != GreetingFramed && c.Greeting != GreetingBare {
		return &ConfigError{Field: "greeting", Reason: fmt.Sprintf("unknown greeting mode %d", int(c.Greeting))}
	}
	return nil
}

// WithDefaults fills unset settings.
func (c Config) WithDefaults() Config {
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" && c.LoopbackOnly {
		c.Host = "127.0.0.1"
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = frame.DefaultLimits().MaxPayloadBytes
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Welcome != "" {
		c.Welcome = ensureNewline(c.Welcome)
	}
	return c
}

// Address is the host:port the listener binds.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

func (c Config) limits() frame.Limits {
	return frame.Limits{MaxPayloadBytes: c.MaxFrameSize}
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
