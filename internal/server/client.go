// Package server runs the read loop of authenticated sessions, validating
// every received frame before acting on it.
package server

import (
	"fmt"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

// serveSession reads frames from an authenticated session until it is torn
// down.
func (s *Server) serveSession(sess *Session) {
	for {
		f, err := sess.readFrame(0)
		if err != nil {
			s.handleReadError(sess, err)
			return
		}
		s.logReceived(sess, f)

		if err := s.validateFrame(sess, f); err != nil {
			reason, _ := protocol.ReasonOf(err)
			s.hub.Teardown(sess, reason, true)
			return
		}

		if !s.dispatchFrame(sess, f) {
			return
		}
	}
}

// handleReadError tears the session down after a failed read. The read side
// is gone, so no reply is attempted.
func (s *Server) handleReadError(sess *Session, err error) {
	if !sess.torn.Load() {
		s.logger.Debug("Read from session failed", "session", sess.id, "user", sess.username, "error", err)
	}
	s.hub.Teardown(sess, protocol.ReasonGetMsg, false)
}

// validateFrame checks a frame from an authenticated session, in order:
// matching username, fresh timestamp, non-empty data, no repeated AUTH.
func (s *Server) validateFrame(sess *Session, f *protocol.Frame) error {
	username, ok := s.registry.LookupUsername(sess)
	if !ok || f.Username != username {
		return protocol.Violation(protocol.ReasonUsername)
	}
	if !s.withinTimeWindow(f.Timestamp) {
		return protocol.Violation(protocol.ReasonTime)
	}
	if (f.Command == protocol.SendMsg || f.Command == protocol.SendFile) && len(f.Payload) == 0 {
		return protocol.Violation(protocol.ReasonDataEmpty)
	}
	if f.Command == protocol.Auth {
		return protocol.Violation(protocol.ReasonRepeatAuth)
	}
	return nil
}

// dispatchFrame acts on a valid frame and reports whether the session is
// still alive.
func (s *Server) dispatchFrame(sess *Session, f *protocol.Frame) bool {
	switch f.Command {
	case protocol.SendMsg:
		s.hub.Broadcast(f, sess)
		return true

	case protocol.SendFile:
		if !protocol.ValidFilePayload(f.Payload) {
			s.hub.Teardown(sess, protocol.ReasonFileData, true)
			return false
		}
		s.hub.Notice(fmt.Sprintf("%s sent a file.", f.Username), f.Time(), nil)
		s.hub.Broadcast(f, sess)
		return true

	case protocol.Close:
		s.hub.Teardown(sess, protocol.ReasonCloseFromClient, false)
		return false

	default:
		s.hub.Teardown(sess, protocol.ReasonRepeatAuth, true)
		return false
	}
}

// logReceived traces an incoming frame. File contents are never logged.
func (s *Server) logReceived(sess *Session, f *protocol.Frame) {
	text := f.Text()
	if f.Command == protocol.SendFile {
		text = "*Sending the file.*"
	}
	s.logger.Debug("Frame received",
		"session", sess.id,
		"addr", sess.addr,
		"user", f.Username,
		"command", f.Command.String(),
		"bytes", len(f.Payload),
		"text", text)
}
