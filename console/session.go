package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/danmuck/tcpconsole/internal/observability"
	"github.com/danmuck/tcpconsole/internal/protocol/frame"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const readChunkSize = 4096

var (
	ErrPeerRejected = errors.New("console: non-loopback peer rejected")
	ErrIdleTimeout  = errors.New("console: session idle timeout")
	ErrHandlerPanic = errors.New("console: handler panic")
)

// SessionState is a step of the per-connection state machine.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateGreeting
	StateReading
	StateDispatching
	StateResponding
	StateClosed
	StateErrored
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateGreeting:
		return "greeting"
	case StateReading:
		return "reading"
	case StateDispatching:
		return "dispatching"
	case StateResponding:
		return "responding"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session owns one accepted connection. Frames are handled strictly in
// arrival order with at most one dispatch in flight.
type Session struct {
	id       string
	conn     net.Conn
	cfg      Config
	registry *Registry
	log      zerolog.Logger
	dec      *frame.Decoder
	state    SessionState
}

// NewSession wraps conn. cfg must already carry defaults and registry must
// be sealed.
func NewSession(conn net.Conn, cfg Config, registry *Registry, logger zerolog.Logger) *Session {
	id := ulid.Make().String()
	sessionLog := logger.With().
		Str("session_id", id).
		Str("remote", remoteString(conn)).
		Logger()
	return &Session{
		id:       id,
		conn:     conn,
		cfg:      cfg,
		registry: registry,
		log:      sessionLog,
		dec:      frame.NewDecoder(cfg.limits()),
		state:    StateConnecting,
	}
}

func (s *Session) ID() string {
	return s.id
}

// Run drives the session until the connection ends and closes conn. It
// returns StateClosed with a nil error on clean EOF, StateClosed with
// ErrPeerRejected for a refused peer, and StateErrored otherwise.
// Cancelling ctx abandons the socket at the next suspension point.
func (s *Session) Run(ctx context.Context) (SessionState, error) {
	defer s.conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Now())
	})
	defer stop()

	if s.cfg.LoopbackOnly && !isLoopbackPeer(s.conn.RemoteAddr()) {
		observability.RecordPeer(observability.PeerRejected)
		s.log.Warn().Msg("console.session non-loopback peer rejected")
		s.state = StateClosed
		return s.state, ErrPeerRejected
	}
	observability.RecordPeer(observability.PeerAccepted)
	observability.RecordSessionStart()
	s.log.Debug().Msg("console.session connected")

	state, err := s.serve(ctx)
	s.state = state
	observability.RecordSessionEnd(state.String())
	if err != nil {
		s.log.Warn().Err(err).Str("state", state.String()).Msg("console.session ended")
	} else {
		s.log.Debug().Str("state", state.String()).Msg("console.session ended")
	}
	return state, err
}

func (s *Session) serve(ctx context.Context) (SessionState, error) {
	s.state = StateGreeting
	if err := s.greet(ctx); err != nil {
		return StateErrored, s.ioError(ctx, err)
	}

	buf := make([]byte, readChunkSize)
	for {
		s.state = StateReading
		if err := s.armDeadline(ctx, s.conn.SetReadDeadline, s.cfg.IdleTimeout); err != nil {
			return StateErrored, s.ioError(ctx, err)
		}
		n, readErr := s.conn.Read(buf)
		if n > 0 {
			s.dec.Feed(buf[:n])
			for payload, err := range s.dec.Frames() {
				if err != nil {
					return StateErrored, err
				}
				observability.RecordFrame()
				if err := s.dispatch(ctx, payload); err != nil {
					return StateErrored, s.ioError(ctx, err)
				}
			}
		}
		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			if err := s.dec.Finish(); err != nil {
				return StateErrored, err
			}
			return StateClosed, nil
		}
		return StateErrored, s.ioError(ctx, readErr)
	}
}

func (s *Session) greet(ctx context.Context) error {
	if s.cfg.Welcome == "" {
		return nil
	}
	if err := s.armDeadline(ctx, s.conn.SetWriteDeadline, s.cfg.WriteTimeout); err != nil {
		return err
	}
	if s.cfg.Greeting == GreetingBare {
		_, err := io.WriteString(s.conn, s.cfg.Welcome)
		return err
	}
	return frame.WriteFrame(s.conn, []byte(s.cfg.Welcome), s.cfg.limits())
}

func (s *Session) dispatch(ctx context.Context, payload []byte) error {
	s.state = StateDispatching
	start := time.Now()
	switch cmd := Classify(payload).(type) {
	case Typed:
		return s.dispatchTyped(ctx, cmd, start)
	case Text:
		return s.dispatchText(ctx, cmd, start)
	default:
		return nil
	}
}

func (s *Session) dispatchTyped(ctx context.Context, cmd Typed, start time.Time) error {
	handler, ok := s.registry.ResolveTyped(cmd.Service)
	if !ok {
		observability.RecordCommand(observability.KindTyped, observability.OutcomeUnprocessable, time.Since(start))
		s.log.Warn().
			Uint16("service_id", uint16(cmd.Service)).
			Int("bytes", len(cmd.Payload)).
			Msg("console.session unprocessable typed command: no subscription")
		return s.reportUnprocessable(ctx, fmt.Sprintf("unprocessable: no subscription for %s", cmd.Service))
	}

	name := s.registry.NameOf(cmd.Service)
	s.log.Debug().Str("service", name).Int("bytes", len(cmd.Payload)).Msg("console.session typed command")
	resp, err := invokeTyped(ctx, handler, cmd.Payload)
	if err != nil {
		observability.RecordCommand(observability.KindTyped, observability.OutcomeHandlerError, time.Since(start))
		s.log.Warn().Str("service", name).Err(err).Msg("console.session typed handler failed")
		return nil
	}
	observability.RecordCommand(observability.KindTyped, observability.OutcomeHandled, time.Since(start))
	if resp == nil {
		return nil
	}
	return s.respond(ctx, resp)
}

func (s *Session) dispatchText(ctx context.Context, cmd Text, start time.Time) error {
	s.log.Debug().Int("bytes", len(cmd.Raw)).Msg("console.session text command")
	for id, handler := range s.registry.ResolveText() {
		resp, accepted, err := invokeText(ctx, handler, cmd.Raw)
		if err != nil {
			s.log.Warn().Str("service", s.registry.NameOf(id)).Err(err).Msg("console.session text handler failed")
			continue
		}
		if !accepted {
			continue
		}
		observability.RecordCommand(observability.KindText, observability.OutcomeHandled, time.Since(start))
		s.log.Debug().Str("service", s.registry.NameOf(id)).Msg("console.session text command accepted")
		if resp == nil {
			return nil
		}
		return s.respond(ctx, ensureNewlineBytes(resp))
	}

	observability.RecordCommand(observability.KindText, observability.OutcomeUnprocessable, time.Since(start))
	s.log.Warn().Int("bytes", len(cmd.Raw)).Msg("console.session unprocessable text command: no subscription accepted")
	return s.reportUnprocessable(ctx, "unprocessable: no subscription accepted the text command")
}

func (s *Session) reportUnprocessable(ctx context.Context, msg string) error {
	if !s.cfg.ReportUnprocessable {
		return nil
	}
	return s.respond(ctx, []byte(msg+"\n"))
}

func (s *Session) respond(ctx context.Context, resp []byte) error {
	s.state = StateResponding
	if err := s.armDeadline(ctx, s.conn.SetWriteDeadline, s.cfg.WriteTimeout); err != nil {
		return err
	}
	err := frame.WriteFrame(s.conn, resp, s.cfg.limits())
	if errors.Is(err, frame.ErrFrameTooLarge) {
		s.log.Error().Int("bytes", len(resp)).Msg("console.session response exceeds max frame size; dropped")
		return nil
	}
	return err
}

// armDeadline sets timeout and then checks ctx, since a cancel hook that
// fired earlier had its deadline replaced.
func (s *Session) armDeadline(ctx context.Context, set func(time.Time) error, timeout time.Duration) error {
	if timeout > 0 {
		_ = set(time.Now().Add(timeout))
	}
	return ctx.Err()
}

// ioError attributes deadline errors to their cause.
func (s *Session) ioError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("console: session abandoned: %w", ctx.Err())
	}
	var ne net.Error
	if s.state == StateReading && errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrIdleTimeout, err)
	}
	return err
}

func invokeTyped(ctx context.Context, h TypedHandler, payload []byte) (resp []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h.HandleTyped(ctx, payload)
}

func invokeText(ctx context.Context, h TextHandler, text []byte) (resp []byte, accepted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h.HandleText(ctx, text)
}

func isLoopbackPeer(addr net.Addr) bool {
	switch a := addr.(type) {
	case nil:
		return false
	case *net.TCPAddr:
		return a.IP.IsLoopback()
	}
	ap, err := netip.ParseAddrPort(addr.String())
	return err == nil && ap.Addr().Unmap().IsLoopback()
}

func remoteString(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

func ensureNewlineBytes(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\n' {
		return b
	}
	return append(b[:len(b):len(b)], '\n')
}
