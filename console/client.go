package console

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/danmuck/tcpconsole/internal/protocol/frame"
)

// ClientOptions tunes Dial.
type ClientOptions struct {
	// ExpectWelcome reads the server welcome during Dial.
	ExpectWelcome bool
	Greeting      GreetingMode
	MaxFrameSize  uint32
	DialTimeout   time.Duration
}

// Client speaks the console wire format. It is not safe for concurrent use.
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	limits  frame.Limits
	welcome string
}

// Dial connects to a console at addr.
func Dial(ctx context.Context, addr string, opts ClientOptions) (*Client, error) {
	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("console: dial %s: %w", addr, err)
	}
	c := &Client{
		conn:   conn,
		r:      bufio.NewReader(conn),
		limits: frame.Limits{MaxPayloadBytes: opts.MaxFrameSize}.WithDefaults(),
	}
	if !opts.ExpectWelcome {
		return c, nil
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	if opts.Greeting == GreetingBare {
		c.welcome, err = c.r.ReadString('\n')
	} else {
		var b []byte
		b, err = frame.ReadFrame(c.r, c.limits)
		c.welcome = string(b)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("console: read welcome: %w", err)
	}
	return c, nil
}

// Welcome is the greeting read during Dial.
func (c *Client) Welcome() string {
	return c.welcome
}

// Send encodes v as a CBOR payload and writes it as a typed command.
func (c *Client) Send(service ServiceID, v any) error {
	p, err := MarshalPayload(v)
	if err != nil {
		return err
	}
	return c.SendRaw(service, p)
}

// SendRaw writes a typed command with an already encoded payload.
func (c *Client) SendRaw(service ServiceID, payload []byte) error {
	b, err := EncodeTyped(service, payload)
	if err != nil {
		return err
	}
	return c.WriteFrame(b)
}

// SendText writes text as an untyped command frame.
func (c *Client) SendText(text string) error {
	return c.WriteFrame([]byte(text))
}

// WriteFrame writes one raw frame.
func (c *Client) WriteFrame(payload []byte) error {
	return frame.WriteFrame(c.conn, payload, c.limits)
}

// Read returns the next response frame.
func (c *Client) Read() ([]byte, error) {
	return frame.ReadFrame(c.r, c.limits)
}

// ReadText returns the next response frame with surrounding whitespace
// trimmed.
func (c *Client) ReadText() (string, error) {
	b, err := c.Read()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// ReadValue decodes the next response frame as a CBOR payload into v.
func (c *Client) ReadValue(v any) error {
	b, err := c.Read()
	if err != nil {
		return err
	}
	return UnmarshalPayload(b, v)
}

// Call sends req to service and decodes one response into resp. The ctx
// deadline, if any, bounds the round trip.
func (c *Client) Call(ctx context.Context, service ServiceID, req, resp any) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}
	if err := c.Send(service, req); err != nil {
		return err
	}
	return c.ReadValue(resp)
}

func (c *Client) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// CloseWrite half-closes the connection so the server sees EOF while
// responses can still be read.
func (c *Client) CloseWrite() error {
	if tc, ok := c.conn.(*net.TCPConn); ok {
		return tc.CloseWrite()
	}
	return c.conn.Close()
}

func (c *Client) Close() error {
	return c.conn.Close()
}
