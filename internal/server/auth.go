package server

import (
	"fmt"
	"time"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

// authorize runs the admission check on a freshly accepted connection. The
// first frame must be an AUTH with a fresh timestamp and a free username.
// Every rejection sends one reply before the connection is closed.
func (s *Server) authorize(sess *Session) bool {
	f, err := sess.readFrame(s.cfg.AuthTimeout)
	if err != nil {
		s.logger.Info("Connection dropped before authorization", "session", sess.id, "addr", sess.addr, "error", err)
		_ = sess.close()
		return false
	}
	s.logReceived(sess, f)

	switch {
	case s.isClosing():
		return s.reject(sess, protocol.Close, protocol.ReasonCloseServer)
	case f.Command != protocol.Auth:
		return s.reject(sess, protocol.Close, protocol.ReasonAuthRequired)
	case !s.withinTimeWindow(f.Timestamp):
		return s.reject(sess, protocol.Auth, protocol.ReasonTime)
	}
	return s.admit(sess, f.Username)
}

// admit registers sess under username, confirms with AUTH OK and announces
// the arrival.
func (s *Server) admit(sess *Session, username string) bool {
	// Hold the write lock until OK is out so no broadcast can overtake it.
	sess.wmu.Lock()
	if !s.registry.TryRegister(sess, username) {
		sess.wmu.Unlock()
		return s.reject(sess, protocol.Auth, protocol.ReasonAuthUsernameInvalid)
	}
	err := sess.sendLocked(s.hub.replyFrame(protocol.Auth, protocol.ReasonOK))
	sess.wmu.Unlock()

	if err != nil {
		s.logger.Info("Authorization reply not delivered", "session", sess.id, "user", username, "error", err)
		s.registry.Unregister(sess)
		_ = sess.close()
		return false
	}

	// Shutdown may have swept the registry before this session entered it.
	if s.isClosing() {
		s.hub.Teardown(sess, protocol.ReasonCloseServer, true)
		return false
	}

	s.logger.Info("Client authorized", "session", sess.id, "addr", sess.addr, "user", username)
	if !sess.claimJoin() {
		return false
	}
	s.hub.Notice(fmt.Sprintf("%s joined the chat!", username), time.Now(), sess)
	return true
}

// reject replies with reason and closes the connection. Reply failures are
// ignored.
func (s *Server) reject(sess *Session, cmd protocol.Command, reason protocol.Reason) bool {
	if err := s.hub.Reply(sess, cmd, reason); err != nil {
		s.logger.Debug("Rejection reply not delivered", "session", sess.id, "error", err)
	}
	s.logger.Info("Client rejected", "session", sess.id, "addr", sess.addr, "reason", string(reason))
	_ = sess.close()
	return false
}

// withinTimeWindow reports whether ts is no further than the configured
// window from the server clock, in either direction.
func (s *Server) withinTimeWindow(ts uint32) bool {
	diff := time.Now().Unix() - int64(ts)
	if diff < 0 {
		diff = -diff
	}
	return diff <= int64(s.cfg.TimeWindow/time.Second)
}
