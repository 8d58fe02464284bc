package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the listener and per-connection policy.
type Config struct {
	Port               int
	BindAll            bool // false = loopback only
	MaxBodyBytes       int64
	IdleTimeout        time.Duration
	LargeUploadTimeout time.Duration
	HeartbeatInterval  time.Duration
	ProcessingCeiling  time.Duration
}

// BindError means the listening socket could not be opened: port occupied or
// access denied.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string { return fmt.Sprintf("bind %s: %v", e.Addr, e.Err) }
func (e *BindError) Unwrap() error { return e.Err }

// Server owns the listening socket and the set of live connections. The
// accept loop never blocks on per-connection work; every accepted socket is
// handed to its own goroutine immediately.
type Server struct {
	cfg    Config
	router *Router
	log    zerolog.Logger

	ln      net.Listener
	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// New creates a server for the given router.
func New(cfg Config, router *Router, log zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		router: router,
		log:    log.With().Str("component", "httpserver").Logger(),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start binds the socket and runs the accept loop until Stop. Returns a
// BindError when the port is occupied or access is denied, nil after a clean
// Stop.
func (s *Server) Start() error {
	host := "127.0.0.1"
	if s.cfg.BindAll {
		host = "0.0.0.0"
	}
	addr := fmt.Sprintf("%s:%d", host, s.cfg.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &BindError{Addr: addr, Err: err}
	}
	s.ln = ln
	s.running.Store(true)
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	for {
		rwc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if !s.running.Load() {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		s.track(rwc)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(rwc)
			newConn(rwc, s.router, connConfig{
				maxBodyBytes:       s.cfg.MaxBodyBytes,
				idleTimeout:        s.cfg.IdleTimeout,
				largeUploadTimeout: s.cfg.LargeUploadTimeout,
				heartbeatInterval:  s.cfg.HeartbeatInterval,
				processingCeiling:  s.cfg.ProcessingCeiling,
			}, s.log).serve(s.ctx)
		}()
	}
}

// Stop closes the listener and every accepted connection, then waits for
// handlers to drain or the context to expire. No accepted socket is leaked.
func (s *Server) Stop(ctx context.Context) error {
	s.running.Store(false)
	s.cancel()
	if s.ln != nil {
		s.ln.Close()
	}

	s.mu.Lock()
	for rwc := range s.conns {
		rwc.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info().Msg("stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop: %w", ctx.Err())
	}
}

// Running reports whether the accept loop is live.
func (s *Server) Running() bool { return s.running.Load() }

// ActiveConnections returns the number of open client connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Port returns the bound port, which differs from Config.Port when 0 was
// requested.
func (s *Server) Port() int {
	if s.ln == nil {
		return s.cfg.Port
	}
	if addr, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.cfg.Port
}

func (s *Server) track(rwc net.Conn) {
	s.mu.Lock()
	s.conns[rwc] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(rwc net.Conn) {
	s.mu.Lock()
	delete(s.conns, rwc)
	s.mu.Unlock()
}
