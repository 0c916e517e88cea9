package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/tcpchat/internal/client"
	"github.com/Tyrowin/tcpchat/internal/protocol"
)

const testTimeout = 5 * time.Second

// startTestServer serves on an ephemeral loopback port and shuts down when
// the test ends.
func startTestServer(t *testing.T, mutate func(*Config)) (*Server, string) {
	t.Helper()

	cfg := NewConfig()
	cfg.Port = "127.0.0.1:0"
	cfg.Log = false
	if mutate != nil {
		mutate(cfg)
	}

	s := NewServer(cfg)
	ln, err := s.Listen()
	require.NoError(t, err)

	go func() { _ = s.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, ln.Addr().String()
}

// connectClient logs a client in and closes it when the test ends.
func connectClient(t *testing.T, addr, name string) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	c, err := client.Dial(ctx, addr, name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// connectAll logs clients in one after another and drains the join notices
// each of them receives for the clients that joined later.
func connectAll(t *testing.T, addr string, names ...string) []*client.Client {
	t.Helper()

	clients := make([]*client.Client, len(names))
	for i, name := range names {
		clients[i] = connectClient(t, addr, name)
	}

	for i, c := range clients {
		var want, got []string
		for _, later := range names[i+1:] {
			want = append(want, later+" joined the chat!")
			msg := receive(t, c)
			require.Equal(t, protocol.SendMsg, msg.Command)
			got = append(got, msg.Text)
		}
		require.ElementsMatch(t, want, got, "join notices for %s", names[i])
	}
	return clients
}

func receive(t *testing.T, c *client.Client) *client.Message {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(testTimeout)))
	msg, err := c.Receive()
	require.NoError(t, err)
	return msg
}

// receiveClose skips notices until the server's CLOSE frame arrives.
func receiveClose(t *testing.T, c *client.Client) *client.Message {
	t.Helper()
	for {
		msg := receive(t, c)
		if msg.Command == protocol.Close {
			return msg
		}
	}
}

func expectNotice(t *testing.T, c *client.Client, text string) {
	t.Helper()
	msg := receive(t, c)
	require.Equal(t, protocol.SendMsg, msg.Command)
	require.Equal(t, DefaultServerName, msg.Username)
	require.Equal(t, text, msg.Text)
}

func expectConnClosed(t *testing.T, c *client.Client) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(testTimeout)))
	_, err := c.Receive()
	require.ErrorIs(t, err, protocol.ErrConnectionClosed)
	var ne net.Error
	if ok := errors.As(err, &ne); ok {
		require.False(t, ne.Timeout(), "connection was not closed by the server")
	}
}

func expectSilence(t *testing.T, c *client.Client) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	msg, err := c.Receive()
	require.Error(t, err, "unexpected frame %+v", msg)
	var ne net.Error
	require.True(t, errors.As(err, &ne) && ne.Timeout(), "expected a read timeout, got %v", err)
}

// dialRaw opens an unauthenticated connection.
func dialRaw(t *testing.T, addr string) (net.Conn, *protocol.Conn) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, testTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(testTimeout)))
	return conn, protocol.NewConn(conn, 0)
}
