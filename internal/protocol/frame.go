// Package protocol implements the length-prefixed binary chat frame: an
// 18-byte header followed by a raw payload.
//
// Wire layout (big-endian):
//
//	offset 0      command        u8   (0=SEND_MSG, 1=SEND_FILE, 2=AUTH, 3=CLOSE)
//	offset 1..3   payloadLength  u24
//	offset 4..13  username       10 bytes, left-padded with 0x00
//	offset 14..17 timestamp      u32  (unix seconds)
//	offset 18..   payload        payloadLength bytes
package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// Command identifies the kind of a frame.
type Command byte

// Commands defined by the protocol.
const (
	SendMsg  Command = 0
	SendFile Command = 1
	Auth     Command = 2
	Close    Command = 3
)

// Sizes of the fixed header fields.
const (
	HeaderSize     = 18
	UsernameSize   = 10
	TimestampSize  = 4
	MaxPayloadSize = 1<<24 - 1
)

// String returns the wire name of the command.
func (c Command) String() string {
	switch c {
	case SendMsg:
		return "SEND_MSG"
	case SendFile:
		return "SEND_FILE"
	case Auth:
		return "AUTH"
	case Close:
		return "CLOSE"
	default:
		return fmt.Sprintf("Command(%d)", byte(c))
	}
}

// Valid reports whether c is one of the four defined commands.
func (c Command) Valid() bool {
	return c <= Close
}

// Header is the decoded form of the fixed 18-byte frame prefix.
type Header struct {
	Command       Command
	PayloadLength int
	Username      string
	Timestamp     uint32
}

// Frame is one complete protocol message.
type Frame struct {
	Command   Command
	Username  string
	Timestamp uint32
	Payload   []byte
}

// NewFrame builds a frame stamped with the given time.
func NewFrame(cmd Command, username string, at time.Time, payload []byte) *Frame {
	return &Frame{
		Command:   cmd,
		Username:  username,
		Timestamp: uint32(at.Unix()),
		Payload:   payload,
	}
}

// Time returns the frame timestamp as a time.Time.
func (f *Frame) Time() time.Time {
	return time.Unix(int64(f.Timestamp), 0)
}

// Text returns the payload interpreted as UTF-8 text.
func (f *Frame) Text() string {
	return string(f.Payload)
}

// MarshalBinary encodes the frame into its wire representation.
func (f *Frame) MarshalBinary() ([]byte, error) {
	username, err := PackUsername(f.Username)
	if err != nil {
		return nil, err
	}
	return Encode(f.Command, username, PackTimestamp(f.Timestamp), f.Payload)
}

// Encode produces the exact 18-byte header followed by payload. The username
// and timestamp must already be in their fixed-width wire form.
func Encode(cmd Command, username, timestamp, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrInvalidArgument, len(payload), MaxPayloadSize)
	}
	if len(username) != UsernameSize {
		return nil, fmt.Errorf("%w: username field must be %d bytes, got %d", ErrInvalidArgument, UsernameSize, len(username))
	}
	if len(timestamp) != TimestampSize {
		return nil, fmt.Errorf("%w: timestamp field must be %d bytes, got %d", ErrInvalidArgument, TimestampSize, len(timestamp))
	}
	if !cmd.Valid() {
		return nil, fmt.Errorf("%w: unknown command %d", ErrInvalidArgument, byte(cmd))
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(cmd)
	putUint24(buf[1:4], uint32(len(payload)))
	copy(buf[4:14], username)
	copy(buf[14:18], timestamp)
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// DecodeHeader parses a fixed 18-byte header. Unknown command bytes decode
// as Close.
func DecodeHeader(b [HeaderSize]byte) Header {
	cmd := Command(b[0])
	if !cmd.Valid() {
		cmd = Close
	}
	return Header{
		Command:       cmd,
		PayloadLength: int(uint24(b[1:4])),
		Username:      UnpackUsername(b[4:14]),
		Timestamp:     binary.BigEndian.Uint32(b[14:18]),
	}
}

// PackUsername left-pads the UTF-8 bytes of name with zeros to the fixed
// username width. The byte length is checked, not the rune count.
func PackUsername(name string) ([]byte, error) {
	if len(name) > UsernameSize {
		return nil, fmt.Errorf("%w: username %q is %d bytes, max %d", ErrInvalidArgument, name, len(name), UsernameSize)
	}
	out := make([]byte, UsernameSize)
	copy(out[UsernameSize-len(name):], name)
	return out, nil
}

// UnpackUsername strips the leading zero padding.
func UnpackUsername(b []byte) string {
	return strings.TrimLeft(string(b), "\x00")
}

// PackTimestamp encodes unix seconds as a big-endian u32.
func PackTimestamp(ts uint32) []byte {
	out := make([]byte, TimestampSize)
	binary.BigEndian.PutUint32(out, ts)
	return out
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
