// Package server exposes HTTP handlers, including the WebSocket upgrade and
// the health check.
package server

import (
	"fmt"
	"net/http"

	"github.com/Tyrowin/tcpchat/internal/wsstream"
)

// WebSocketHandler upgrades the request and serves the chat protocol over
// binary WebSocket messages. The handler returns when the session ends.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	s.logger.Info("Connection accepted", "addr", r.RemoteAddr, "transport", "websocket")
	s.ServeConn(wsstream.New(conn), r.RemoteAddr)
}

// HealthHandler provides a simple health check endpoint that returns server status
// and the number of authenticated sessions.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat server %s is running with %d sessions", s.cfg.ServerName, s.Sessions())
}
