// Package wsstream adapts a WebSocket connection to a plain byte stream so the
// frame protocol can run unchanged over binary WebSocket messages.
package wsstream

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrTextMessage is returned when the peer sends a text message; the chat
// protocol is carried in binary messages only.
var ErrTextMessage = errors.New("wsstream: unexpected text message")

// Stream is an io.ReadWriteCloser over a *websocket.Conn. Each Write becomes
// one binary message; reads concatenate incoming messages.
type Stream struct {
	conn   *websocket.Conn
	reader io.Reader

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// New wraps conn.
func New(conn *websocket.Conn) *Stream {
	return &Stream{conn: conn}
}

// Read reads from the current message, advancing to the next message when
// the current one is exhausted.
func (s *Stream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			kind, r, err := s.conn.NextReader()
			if err != nil {
				return 0, translate(err)
			}
			if kind != websocket.BinaryMessage {
				return 0, ErrTextMessage
			}
			s.reader = r
		}

		n, err := s.reader.Read(p)
		if errors.Is(err, io.EOF) {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as a single binary message.
func (s *Stream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a best-effort close message and closes the underlying
// connection. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.wmu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.wmu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// SetReadDeadline forwards to the WebSocket connection.
func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// SetWriteDeadline forwards to the WebSocket connection.
func (s *Stream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

// RemoteAddr returns the peer address.
func (s *Stream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func translate(err error) error {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		return io.EOF
	}
	return err
}
