package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultChunkSize bounds a single payload read.
const DefaultChunkSize = 128 * 1024

// Conn drives the frame codec over a byte stream. Reads must come from a
// single goroutine; writes are serialized so frames never interleave.
type Conn struct {
	rw        io.ReadWriter
	chunkSize int
	wmu       sync.Mutex
}

// NewConn wraps rw. A non-positive chunkSize selects DefaultChunkSize.
func NewConn(rw io.ReadWriter, chunkSize int) *Conn {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Conn{rw: rw, chunkSize: chunkSize}
}

// ReadFrame blocks until a whole frame has arrived.
func (c *Conn) ReadFrame() (*Frame, error) {
	return ReadFrame(c.rw, c.chunkSize)
}

// WriteFrame encodes f and writes it with a single Write call.
func (c *Conn) WriteFrame(f *Frame) error {
	buf, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return writeAll(c.rw, buf)
}

// WriteEncoded writes an already encoded frame, letting one encoding be
// shared by many connections.
func (c *Conn) WriteEncoded(buf []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return writeAll(c.rw, buf)
}

// ReadFrame reads one frame from r. The payload is accumulated in reads of at
// most chunkSize bytes until the declared length has been received.
func ReadFrame(r io.Reader, chunkSize int) (*Frame, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, closed("read header", err)
	}
	h := DecodeHeader(hdr)

	// The buffer grows with the bytes received, never with the declared length.
	payload := make([]byte, 0, min(h.PayloadLength, chunkSize))
	for len(payload) < h.PayloadLength {
		n := min(h.PayloadLength-len(payload), chunkSize)
		off := len(payload)
		payload = append(payload, make([]byte, n)...)
		read, err := io.ReadFull(r, payload[off:])
		payload = payload[:off+read]
		if err != nil {
			return nil, closed(fmt.Sprintf("read payload (%d of %d bytes)", len(payload), h.PayloadLength), err)
		}
	}

	return &Frame{
		Command:   h.Command,
		Username:  h.Username,
		Timestamp: h.Timestamp,
		Payload:   payload,
	}, nil
}

// WriteFrame encodes f and writes it to w in one call.
func WriteFrame(w io.Writer, f *Frame) error {
	buf, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	return writeAll(w, buf)
}

func writeAll(w io.Writer, buf []byte) error {
	n, err := w.Write(buf)
	if err == nil && n < len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return closed("write frame", err)
	}
	return nil
}

func closed(op string, err error) error {
	if errors.Is(err, ErrConnectionClosed) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrConnectionClosed, op, err)
}
