// Package client speaks the chat protocol from the client side: it logs in,
// sends messages and files, and decodes frames received from the server into
// Message values a display layer can render.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/tcpchat/internal/protocol"
	"github.com/Tyrowin/tcpchat/internal/wsstream"
)

// ErrInvalidUsername is returned when a username is empty or longer than the
// fixed username field.
var ErrInvalidUsername = errors.New("client: username must be 1 to 10 bytes")

// RejectedError is returned by Login when the server refuses the session.
type RejectedError struct {
	Reason protocol.Reason
	Text   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("client: login rejected (%s): %s", e.Reason, e.Text)
}

// Message is a decoded frame received from the server.
type Message struct {
	Command  protocol.Command
	Username string
	Time     time.Time
	// Text is the payload as UTF-8; it is empty for file transfers.
	Text string
	Data []byte
}

// File splits a SEND_FILE message into filename and content.
func (m *Message) File() (string, []byte, error) {
	if m.Command != protocol.SendFile {
		return "", nil, fmt.Errorf("%w: %s is not a file transfer", protocol.ErrInvalidArgument, m.Command)
	}
	return protocol.SplitFilePayload(m.Data)
}

// Reason maps the text of a server CLOSE frame to its reason code.
func (m *Message) Reason() protocol.Reason {
	return protocol.ReasonFromText(m.Text)
}

// Client is one connection to a chat server.
type Client struct {
	rwc        io.ReadWriteCloser
	conn       *protocol.Conn
	username   string
	serverName string
	now        func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// New wraps an established connection. Call Login before sending.
func New(rwc io.ReadWriteCloser, chunkSize int) *Client {
	return &Client{
		rwc:  rwc,
		conn: protocol.NewConn(rwc, chunkSize),
		now:  time.Now,
	}
}

// Dial connects to a TCP chat server at addr and logs in as username.
func Dial(ctx context.Context, addr, username string) (*Client, error) {
	name, err := ValidateUsername(username)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return login(ctx, New(conn, 0), name)
}

// DialWebSocket connects to the WebSocket endpoint at url and logs in as
// username. header is sent with the handshake, e.g. to carry an Origin.
func DialWebSocket(ctx context.Context, url, username string, header http.Header) (*Client, error) {
	name, err := ValidateUsername(username)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	return login(ctx, New(wsstream.New(conn), 0), name)
}

func login(ctx context.Context, c *Client, username string) (*Client, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.SetReadDeadline(deadline)
		defer func() { _ = c.SetReadDeadline(time.Time{}) }()
	}
	if err := c.Login(username); err != nil {
		_ = c.rwc.Close()
		return nil, err
	}
	return c, nil
}

// ValidateUsername trims name and checks its byte length.
func ValidateUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > protocol.UsernameSize {
		return "", ErrInvalidUsername
	}
	return name, nil
}

// Login sends AUTH and waits for the server's verdict.
func (c *Client) Login(username string) error {
	if err := c.Send(protocol.NewFrame(protocol.Auth, username, c.now(), nil)); err != nil {
		return err
	}

	reply, err := c.conn.ReadFrame()
	if err != nil {
		return err
	}
	if reply.Command != protocol.Auth || reply.Text() != protocol.ReasonOK.Text() {
		return &RejectedError{Reason: protocol.ReasonFromText(reply.Text()), Text: reply.Text()}
	}

	c.username = username
	c.serverName = reply.Username
	return nil
}

// Username returns the name the client logged in with.
func (c *Client) Username() string {
	return c.username
}

// ServerName returns the name the server signs its own frames with.
func (c *Client) ServerName() string {
	return c.serverName
}

// Send writes a raw frame.
func (c *Client) Send(f *protocol.Frame) error {
	return c.conn.WriteFrame(f)
}

// SendMessage broadcasts text to the other participants.
func (c *Client) SendMessage(text string) error {
	return c.Send(protocol.NewFrame(protocol.SendMsg, c.username, c.now(), []byte(text)))
}

// SendFile sends content under the given filename.
func (c *Client) SendFile(name string, content []byte) error {
	payload, err := protocol.BuildFilePayload(name, content)
	if err != nil {
		return err
	}
	return c.Send(protocol.NewFrame(protocol.SendFile, c.username, c.now(), payload))
}

// Receive blocks until the next frame from the server arrives.
func (c *Client) Receive() (*Message, error) {
	f, err := c.conn.ReadFrame()
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Command:  f.Command,
		Username: f.Username,
		Time:     f.Time(),
		Data:     f.Payload,
	}
	if f.Command != protocol.SendFile {
		msg.Text = f.Text()
	}
	return msg, nil
}

// SetReadDeadline bounds the next reads when the transport supports it.
func (c *Client) SetReadDeadline(t time.Time) error {
	if rd, ok := c.rwc.(interface{ SetReadDeadline(time.Time) error }); ok {
		return rd.SetReadDeadline(t)
	}
	return nil
}

// Close tells the server the client is leaving and closes the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.username != "" {
			_ = c.Send(protocol.NewFrame(protocol.Close, c.username, c.now(), nil))
		}
		c.closeErr = c.rwc.Close()
	})
	return c.closeErr
}
