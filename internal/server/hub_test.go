package server

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

// memConn records writes. It can be switched to fail every write.
type memConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	fail   bool
	closed bool
}

func (c *memConn) Read([]byte) (int, error) { return 0, io.EOF }

func (c *memConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return 0, errors.New("connection reset by peer")
	}
	return c.buf.Write(p)
}

func (c *memConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *memConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *memConn) frames(t *testing.T) []*protocol.Frame {
	t.Helper()
	c.mu.Lock()
	r := bytes.NewReader(c.buf.Bytes())
	c.mu.Unlock()

	var out []*protocol.Frame
	for r.Len() > 0 {
		f, err := protocol.ReadFrame(r, 0)
		require.NoError(t, err)
		out = append(out, f)
	}
	return out
}

func newTestHub() (*Hub, *Registry) {
	registry := NewRegistry(DefaultServerName)
	return NewHub(registry, DefaultServerName, slog.New(slog.DiscardHandler)), registry
}

func addSession(t *testing.T, registry *Registry, name string) (*Session, *memConn) {
	t.Helper()
	conn := &memConn{}
	sess := newSession(conn, name+"-addr", 0, 0)
	require.True(t, registry.TryRegister(sess, name))
	require.True(t, sess.claimJoin())
	return sess, conn
}

func TestBroadcastSurvivesFailingTarget(t *testing.T) {
	hub, registry := newTestHub()
	sender, senderConn := addSession(t, registry, "sender")
	_, aConn := addSession(t, registry, "a")
	broken, brokenConn := addSession(t, registry, "broken")
	_, bConn := addSession(t, registry, "b")
	brokenConn.fail = true

	delivered := hub.Broadcast(protocol.NewFrame(protocol.SendMsg, "sender", time.Now(), []byte("hi")), sender)
	assert.Equal(t, 2, delivered)

	for _, conn := range []*memConn{aConn, bConn} {
		frames := conn.frames(t)
		require.Len(t, frames, 2)
		assert.Equal(t, "hi", frames[0].Text())
		assert.Equal(t, "sender", frames[0].Username)
		assert.Equal(t, "broken left the chat!", frames[1].Text())
		assert.Equal(t, DefaultServerName, frames[1].Username)
	}

	// sender only hears about the departure
	senderFrames := senderConn.frames(t)
	require.Len(t, senderFrames, 1)
	assert.Equal(t, "broken left the chat!", senderFrames[0].Text())

	assert.True(t, brokenConn.isClosed())
	_, ok := registry.LookupUsername(broken)
	assert.False(t, ok)
	assert.Equal(t, 3, registry.Len())
}

func TestTeardownRunsOnce(t *testing.T) {
	hub, registry := newTestHub()
	victim, victimConn := addSession(t, registry, "victim")
	_, peerConn := addSession(t, registry, "peer")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Teardown(victim, protocol.ReasonTime, true)
		}()
	}
	wg.Wait()

	victimFrames := victimConn.frames(t)
	require.Len(t, victimFrames, 1)
	assert.Equal(t, protocol.Close, victimFrames[0].Command)
	assert.Equal(t, protocol.ReasonTime.Text(), victimFrames[0].Text())

	peerFrames := peerConn.frames(t)
	require.Len(t, peerFrames, 1)
	assert.Equal(t, "victim left the chat!", peerFrames[0].Text())

	assert.True(t, victimConn.isClosed())
	assert.Equal(t, 1, registry.Len())
}

func TestTeardownWithoutReply(t *testing.T) {
	hub, registry := newTestHub()
	sess, conn := addSession(t, registry, "quiet")

	hub.Teardown(sess, protocol.ReasonCloseFromClient, false)

	assert.Empty(t, conn.frames(t))
	assert.True(t, conn.isClosed())
	assert.Equal(t, 0, registry.Len())
}

func TestNoticeReachesEveryone(t *testing.T) {
	hub, registry := newTestHub()
	_, aConn := addSession(t, registry, "a")
	_, bConn := addSession(t, registry, "b")

	at := time.Unix(1_700_000_000, 0)
	assert.Equal(t, 2, hub.Notice("maintenance soon", at, nil))

	for _, conn := range []*memConn{aConn, bConn} {
		frames := conn.frames(t)
		require.Len(t, frames, 1)
		assert.Equal(t, protocol.SendMsg, frames[0].Command)
		assert.Equal(t, uint32(at.Unix()), frames[0].Timestamp)
	}
}

func TestShutdownSessions(t *testing.T) {
	hub, registry := newTestHub()
	var conns []*memConn
	for _, name := range []string{"a", "b", "c"} {
		_, conn := addSession(t, registry, name)
		conns = append(conns, conn)
	}

	assert.Equal(t, 3, hub.ShutdownSessions())
	assert.Equal(t, 0, registry.Len())

	for _, conn := range conns {
		frames := conn.frames(t)
		require.NotEmpty(t, frames)
		last := frames[len(frames)-1]
		assert.Equal(t, protocol.Close, last.Command)
		assert.Equal(t, protocol.ReasonCloseServer.Text(), last.Text())
		assert.True(t, conn.isClosed())
	}
}

func TestTeardownBeforeJoinAnnouncesNothing(t *testing.T) {
	hub, registry := newTestHub()
	_, peerConn := addSession(t, registry, "peer")

	conn := &memConn{}
	newcomer := newSession(conn, "newcomer-addr", 0, 0)
	require.True(t, registry.TryRegister(newcomer, "newcomer"))

	hub.Teardown(newcomer, protocol.ReasonSendMsg, false)

	assert.Empty(t, peerConn.frames(t))
	assert.False(t, newcomer.claimJoin(), "a torn session must not be announced")
	assert.True(t, conn.isClosed())
	assert.Equal(t, 1, registry.Len())
}
