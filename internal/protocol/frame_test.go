package protocol

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHeaderLayout(t *testing.T) {
	username, err := PackUsername("bob")
	require.NoError(t, err)

	buf, err := Encode(SendFile, username, PackTimestamp(0x01020304), []byte("hello"))
	require.NoError(t, err)

	want := []byte{
		0x01,
		0x00, 0x00, 0x05,
		0, 0, 0, 0, 0, 0, 0, 'b', 'o', 'b',
		0x01, 0x02, 0x03, 0x04,
		'h', 'e', 'l', 'l', 'o',
	}
	assert.Equal(t, want, buf)
}

func TestEncodeRejectsInvalidArguments(t *testing.T) {
	username, err := PackUsername("alice")
	require.NoError(t, err)
	ts := PackTimestamp(1)

	tests := []struct {
		name     string
		cmd      Command
		username []byte
		ts       []byte
		payload  []byte
	}{
		{"payload too large", SendMsg, username, ts, make([]byte, MaxPayloadSize+1)},
		{"short username", SendMsg, username[:9], ts, nil},
		{"long username", SendMsg, append(username, 'x'), ts, nil},
		{"short timestamp", SendMsg, username, ts[:3], nil},
		{"unknown command", Command(4), username, ts, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.cmd, tt.username, tt.ts, tt.payload)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestEncodeAcceptsMaxPayload(t *testing.T) {
	f := &Frame{Command: SendMsg, Username: "a", Payload: make([]byte, MaxPayloadSize)}
	buf, err := f.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, buf, HeaderSize+MaxPayloadSize)
	assert.Equal(t, []byte{0xff, 0xff, 0xff}, buf[1:4])
}

func TestDecodeHeaderRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	for _, cmd := range []Command{SendMsg, SendFile, Auth, Close} {
		for _, name := range []string{"a", "alice", "0123456789", "зоя"} {
			f := NewFrame(cmd, name, now, []byte("payload"))
			buf, err := f.MarshalBinary()
			require.NoError(t, err)

			var hdr [HeaderSize]byte
			copy(hdr[:], buf)
			h := DecodeHeader(hdr)

			assert.Equal(t, cmd, h.Command)
			assert.Equal(t, name, h.Username)
			assert.Equal(t, uint32(now.Unix()), h.Timestamp)
			assert.Equal(t, len("payload"), h.PayloadLength)
			assert.Equal(t, []byte("payload"), buf[HeaderSize:])
		}
	}
}

func TestDecodeHeaderUnknownCommandIsClose(t *testing.T) {
	var hdr [HeaderSize]byte
	hdr[0] = 0x7f
	assert.Equal(t, Close, DecodeHeader(hdr).Command)
}

func TestPackUsernameChecksByteLength(t *testing.T) {
	// five two-byte runes fit, six do not
	_, err := PackUsername("ёёёёё")
	assert.NoError(t, err)

	_, err = PackUsername("ёёёёёё")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUnpackUsernameStripsOnlyLeadingZeros(t *testing.T) {
	raw := []byte{0, 0, 0, 0, 0, 0, 'a', 0, 'b', 'c'}
	assert.Equal(t, "a\x00bc", UnpackUsername(raw))

	packed, err := PackUsername("a\x00bc")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(raw, packed))
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "SEND_MSG", SendMsg.String())
	assert.Equal(t, "CLOSE", Close.String())
	assert.Equal(t, "Command(9)", Command(9).String())
}
