// Package server manages individual chat sessions: the connection handle,
// serialized frame writes, and lifecycle control for each connection.
package server

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

// Join announcement states. A session leaves joinPending exactly once.
const (
	joinPending int32 = iota
	joinAnnounced
	joinAbandoned
)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Session represents one accepted connection. It becomes an authenticated
// chat session once the registry accepts its username.
type Session struct {
	id           string
	addr         string
	rwc          io.ReadWriteCloser
	conn         *protocol.Conn
	writeTimeout time.Duration

	// username is set by the registry under its lock.
	username string

	// wmu orders whole frames written to this session.
	wmu       sync.Mutex
	torn      atomic.Bool
	joinState atomic.Int32
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// newSession wraps rwc. readBufferSize bounds a single payload read.
func newSession(rwc io.ReadWriteCloser, addr string, readBufferSize int, writeTimeout time.Duration) *Session {
	return &Session{
		id:           uuid.NewString(),
		addr:         addr,
		rwc:          rwc,
		conn:         protocol.NewConn(rwc, readBufferSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// ID returns the identifier used to correlate log lines for this connection.
func (s *Session) ID() string {
	return s.id
}

// Addr returns the remote address the connection was accepted from.
func (s *Session) Addr() string {
	return s.addr
}

// Done is closed when the goroutine handling this session has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// send writes one frame to the session.
func (s *Session) send(f *protocol.Frame) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.sendLocked(f)
}

// sendLocked writes f while the caller holds wmu.
func (s *Session) sendLocked(f *protocol.Frame) error {
	buf, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	return s.writeLocked(buf)
}

// write sends an already encoded frame.
func (s *Session) write(buf []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.writeLocked(buf)
}

func (s *Session) writeLocked(buf []byte) error {
	if wd, ok := s.rwc.(writeDeadliner); ok && s.writeTimeout > 0 {
		_ = wd.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteEncoded(buf)
}

// readFrame blocks until the next frame arrives. A positive timeout bounds
// the wait.
func (s *Session) readFrame(timeout time.Duration) (*protocol.Frame, error) {
	rd, ok := s.rwc.(readDeadliner)
	if ok && timeout > 0 {
		_ = rd.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = rd.SetReadDeadline(time.Time{}) }()
	}
	return s.conn.ReadFrame()
}

// close closes the underlying connection once.
func (s *Session) close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.rwc.Close()
	})
	return s.closeErr
}

// markTorn reports whether the caller is the first to tear the session down.
func (s *Session) markTorn() bool {
	return s.torn.CompareAndSwap(false, true)
}

// claimJoin reports whether the join of this session may be announced. It
// fails once teardown has started.
func (s *Session) claimJoin() bool {
	return s.joinState.CompareAndSwap(joinPending, joinAnnounced)
}

// claimLeave reports whether a leave notice is owed, which is only the case
// when the join was announced.
func (s *Session) claimLeave() bool {
	return !s.joinState.CompareAndSwap(joinPending, joinAbandoned) &&
		s.joinState.Load() == joinAnnounced
}
