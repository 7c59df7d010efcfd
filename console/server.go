package console

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/tcpconsole/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Server is a validated console that has not started listening yet.
type Server struct {
	cfg      Config
	registry *Registry
	log      zerolog.Logger
}

// New validates cfg, fills defaults and builds the sealed registry from
// cfg.Subscriptions. Configuration problems are returned as *ConfigError.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	registry := NewRegistry()
	for _, b := range cfg.Subscriptions {
		if err := registry.Register(b.ID, b.Subscription); err != nil {
			return nil, err
		}
	}
	registry.Seal()

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	observability.RegisterMetrics()

	return &Server{
		cfg:      cfg,
		registry: registry,
		log:      logger.With().Str("component", "console").Logger(),
	}, nil
}

func (s *Server) Registry() *Registry {
	return s.registry
}

// Config returns the effective configuration after defaults.
func (s *Server) Config() Config {
	return s.cfg
}

// Spawn binds the listener and starts the accept loop in the background.
// Bind failures are returned here rather than from the loop. Cancelling ctx
// stops accepting like Stop; open sessions are only severed by Abort.
func (s *Server) Spawn(ctx context.Context) (*Handle, error) {
	lc := listenConfig(s.cfg.ReusePort)
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("console: listen %s: %w", s.cfg.Address(), err)
	}
	if s.cfg.LoopbackOnly && !isLoopbackPeer(ln.Addr()) {
		_ = ln.Close()
		return nil, &ConfigError{
			Field:  "host",
			Reason: fmt.Sprintf("resolved bind address %s is not loopback", ln.Addr()),
			Err:    ErrNonLoopbackBind,
		}
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &Handle{
		srv:        s,
		ln:         ln,
		ctx:        sessCtx,
		cancel:     cancel,
		stopping:   make(chan struct{}),
		acceptDone: make(chan struct{}),
		drained:    make(chan struct{}),
	}
	h.unwatch = context.AfterFunc(ctx, h.Stop)

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Int("services", s.registry.Len()).
		Bool("loopback_only", s.cfg.LoopbackOnly).
		Msg("console listening")
	go h.acceptLoop()
	return h, nil
}

// Handle controls a running console.
type Handle struct {
	srv    *Server
	ln     net.Listener
	ctx    context.Context
	cancel context.CancelFunc

	stopOnce   sync.Once
	stopping   chan struct{}
	acceptDone chan struct{}
	drained    chan struct{}
	unwatch    func() bool

	sessions sync.WaitGroup
	active   atomic.Int64
}

// Addr is the bound listener address, including a kernel-chosen port.
func (h *Handle) Addr() net.Addr {
	return h.ln.Addr()
}

// Stop closes the listener. Sessions already accepted keep running until
// their peers disconnect. Stop is idempotent.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopping)
		_ = h.ln.Close()
	})
}

// Abort stops the listener and abandons every open session.
func (h *Handle) Abort() {
	h.Stop()
	h.cancel()
}

// Stopped is closed once the accept loop has exited.
func (h *Handle) Stopped() <-chan struct{} {
	return h.acceptDone
}

// Wait blocks until the accept loop has exited and every session has ended,
// or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.drained:
		h.unwatch()
		h.cancel()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveSessions reports sessions currently running.
func (h *Handle) ActiveSessions() int64 {
	return h.active.Load()
}

func (h *Handle) acceptLoop() {
	defer func() {
		close(h.acceptDone)
		// no session can be added once the loop is gone
		h.sessions.Wait()
		close(h.drained)
	}()
	logger := h.srv.log
	attempt := 0
	for {
		conn, err := h.ln.Accept()
		if err != nil {
			if h.isStopping() || errors.Is(err, net.ErrClosed) {
				logger.Info().Str("addr", h.ln.Addr().String()).Msg("console stopped accepting")
				return
			}
			attempt++
			delay := acceptRetry.delay(attempt)
			logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("console accept failed")
			select {
			case <-time.After(delay):
			case <-h.stopping:
				return
			}
			continue
		}
		attempt = 0

		h.sessions.Add(1)
		active := h.active.Add(1)
		logger.Debug().Str("remote", remoteString(conn)).Int64("active_sessions", active).Msg("console client connected")
		go func() {
			defer h.sessions.Done()
			defer h.active.Add(-1)
			sess := NewSession(conn, h.srv.cfg, h.srv.registry, logger)
			_, _ = sess.Run(h.ctx)
		}()
	}
}

func (h *Handle) isStopping() bool {
	select {
	case <-h.stopping:
		return true
	default:
		return false
	}
}
