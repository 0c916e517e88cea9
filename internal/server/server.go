// Package server implements the chat server loop: it owns the listening
// socket, runs one goroutine per connection and coordinates shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// ErrServerClosed is returned by Serve and ServeWebSocket after Shutdown.
var ErrServerClosed = errors.New("server: closed")

// Server accepts chat connections over TCP and, optionally, WebSocket.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	registry *Registry
	hub      *Hub
	limiter  *rateLimiter
	origins  originPolicy
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
	conns    map[*Session]struct{}
	closing  bool

	wg sync.WaitGroup
}

// NewServer creates a server from cfg. A nil cfg selects the defaults.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	c := sanitizeConfig(*cfg)
	logger := c.logger()
	registry := NewRegistry(c.ServerName)

	s := &Server{
		cfg:      c,
		logger:   logger,
		registry: registry,
		hub:      NewHub(registry, c.ServerName, logger),
		limiter:  newRateLimiter(c.AcceptRate.Burst, c.AcceptRate.RefillInterval),
		origins:  newOriginPolicy(c.AllowedOrigins, logger),
		conns:    make(map[*Session]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

// Registry exposes the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Hub exposes the broadcast hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Listen binds the configured TCP address.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.cfg.Port, err)
	}
	return ln, nil
}

// ListenAndServe binds every configured transport and serves until ctx is
// cancelled, then shuts down. A bind failure is returned before anything is
// served.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}

	var wsLn net.Listener
	if s.cfg.WebSocketAddr != "" {
		wsLn, err = net.Listen("tcp", s.cfg.WebSocketAddr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("listen on %s: %w", s.cfg.WebSocketAddr, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return ignoreClosed(s.Serve(ln))
	})
	if wsLn != nil {
		g.Go(func() error {
			defer cancel()
			return ignoreClosed(s.ServeWebSocket(wsLn))
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancelShutdown()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func ignoreClosed(err error) error {
	if errors.Is(err, ErrServerClosed) {
		return nil
	}
	return err
}

// Serve accepts connections on ln until Shutdown is called. It returns nil
// after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Server started", "addr", ln.Addr().String(), "name", s.cfg.ServerName)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Warn("Accept failed", "error", err)
			time.Sleep(5 * time.Millisecond)
			continue
		}

		if !s.limiter.allow() {
			s.logger.Warn("Accept rate exceeded; dropping connection", "addr", conn.RemoteAddr().String())
			_ = conn.Close()
			continue
		}

		s.logger.Info("Connection accepted", "addr", conn.RemoteAddr().String())
		go s.ServeConn(conn, conn.RemoteAddr().String())
	}
}

// ServeWebSocket serves the HTTP routes, including the WebSocket endpoint,
// on ln.
func (s *Server) ServeWebSocket(ln net.Listener) error {
	httpSrv := CreateServer(ln.Addr().String(), SetupRoutes(s))

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.httpSrv = httpSrv
	s.mu.Unlock()

	s.logger.Info("WebSocket transport started", "addr", ln.Addr().String())
	if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeConn runs the whole life of one connection: authorization followed
// by the session read loop. It returns once the connection is finished.
func (s *Server) ServeConn(rwc io.ReadWriteCloser, addr string) {
	sess := newSession(rwc, addr, s.cfg.ReadBufferSize, s.cfg.WriteTimeout)
	if !s.track(sess) {
		_ = sess.close()
		close(sess.done)
		return
	}
	defer s.untrack(sess)

	if !s.authorize(sess) {
		return
	}
	s.serveSession(sess)
}

func (s *Server) track(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[sess] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(sess *Session) {
	s.mu.Lock()
	delete(s.conns, sess)
	s.mu.Unlock()
	close(sess.done)
	s.wg.Done()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Sessions returns the number of authenticated sessions.
func (s *Server) Sessions() int {
	return s.registry.Len()
}

// Shutdown stops accepting connections, tears down every session with
// CLOSE_SERVER and waits for all connection goroutines to finish or for
// ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	ln := s.listener
	httpSrv := s.httpSrv
	s.mu.Unlock()

	s.logger.Info("Server shutdown command received")

	if ln != nil {
		if err := ln.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn("Error closing listener", "error", err)
		}
	}
	if httpSrv != nil {
		if err := httpSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP server shutdown error", "error", err)
		}
	}

	s.hub.ShutdownSessions()

	// Connections still authorizing, or that registered after the sweep
	// above, are closed so their blocking reads return.
	s.mu.Lock()
	remaining := make([]*Session, 0, len(s.conns))
	for sess := range s.conns {
		remaining = append(remaining, sess)
	}
	s.mu.Unlock()
	for _, sess := range remaining {
		_ = sess.close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Server shutdown completed")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Server shutdown timeout reached, some connections may still be open")
		return ctx.Err()
	}
}
