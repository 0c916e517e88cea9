// Package server coordinates message broadcast and session teardown for the
// chat server via the Hub type.
package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

// Hub fans frames out to registered sessions and tears sessions down. It
// holds no lock of its own; the registry is the only shared state, and
// broadcasts iterate a snapshot of it.
type Hub struct {
	registry   *Registry
	serverName string
	logger     *slog.Logger
	now        func() time.Time
}

// NewHub creates a Hub over registry. Server-authored frames carry
// serverName as their username.
func NewHub(registry *Registry, serverName string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry:   registry,
		serverName: serverName,
		logger:     logger,
		now:        time.Now,
	}
}

// Broadcast writes f to every registered session except the given one and
// returns the number of successful deliveries. A session whose write fails
// is torn down after the remaining targets have been served.
func (h *Hub) Broadcast(f *protocol.Frame, except *Session) int {
	buf, err := f.MarshalBinary()
	if err != nil {
		h.logger.Error("Dropping unencodable frame", "command", f.Command, "error", err)
		return 0
	}

	targets := h.registry.BroadcastTargets(except)
	h.logger.Debug("Broadcasting frame", "command", f.Command, "from", f.Username, "targets", len(targets))

	failed := h.broadcastToSessions(targets, buf)
	h.removeFailedSessions(failed)
	return len(targets) - len(failed)
}

// broadcastToSessions writes buf to each target and returns the ones that
// could not be written to.
func (h *Hub) broadcastToSessions(targets []*Session, buf []byte) []*Session {
	var failed []*Session
	for _, sess := range targets {
		if sess.torn.Load() {
			continue
		}
		if err := sess.write(buf); err != nil {
			h.logger.Debug("Write to session failed", "session", sess.id, "user", sess.username, "error", err)
			failed = append(failed, sess)
		}
	}
	return failed
}

// removeFailedSessions tears down sessions that failed to receive a frame.
// No reply is attempted since the connection is already broken.
func (h *Hub) removeFailedSessions(failed []*Session) {
	for _, sess := range failed {
		h.Teardown(sess, protocol.ReasonSendMsg, false)
	}
}

// Notice broadcasts a server-authored text message.
func (h *Hub) Notice(text string, at time.Time, except *Session) int {
	return h.Broadcast(protocol.NewFrame(protocol.SendMsg, h.serverName, at, []byte(text)), except)
}

// Reply sends a server-authored frame carrying reason's text to one session.
func (h *Hub) Reply(sess *Session, cmd protocol.Command, reason protocol.Reason) error {
	return sess.send(h.replyFrame(cmd, reason))
}

func (h *Hub) replyFrame(cmd protocol.Command, reason protocol.Reason) *protocol.Frame {
	return protocol.NewFrame(cmd, h.serverName, h.now(), []byte(reason.Text()))
}

// Teardown removes sess from the chat: it optionally tells the client why,
// announces the departure to everyone else if the arrival was announced,
// unregisters the session and closes its connection. Only the first call for
// a session has any effect.
func (h *Hub) Teardown(sess *Session, reason protocol.Reason, reply bool) {
	if !sess.markTorn() {
		return
	}

	username, registered := h.registry.LookupUsername(sess)
	if reply {
		if err := h.Reply(sess, protocol.Close, reason); err != nil {
			h.logger.Debug("Close reply not delivered", "session", sess.id, "error", err)
		}
	}

	h.logger.Info("Client removed from chat",
		"session", sess.id,
		"addr", sess.addr,
		"user", username,
		"reason", string(reason),
		"detail", reason.Text())

	if registered {
		if sess.claimLeave() {
			h.Notice(fmt.Sprintf("%s left the chat!", username), h.now(), sess)
		}
		h.registry.Unregister(sess)
	}

	if err := sess.close(); err != nil && !isExpectedCloseError(err) {
		h.logger.Warn("Error closing client connection", "session", sess.id, "error", err)
	}
}

// ShutdownSessions tears every registered session down with CLOSE_SERVER.
func (h *Hub) ShutdownSessions() int {
	h.logger.Info("Disconnecting clients")

	sessions := h.registry.BroadcastTargets(nil)
	for _, sess := range sessions {
		h.Teardown(sess, protocol.ReasonCloseServer, true)
	}

	h.logger.Info("Closed client sessions", "count", len(sessions))
	return len(sessions)
}
