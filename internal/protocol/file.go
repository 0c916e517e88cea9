package protocol

import "fmt"

// MarkerIndex returns the index of the first 0x00 0x00 pair that sits at an
// interior position of a SEND_FILE payload, or -1 if there is none. The pair
// may neither start the payload nor end it.
//
// The scheme is ambiguous when a filename or content carries 0x00 0x00 near
// the boundary; the first interior pair wins.
func MarkerIndex(payload []byte) int {
	last := len(payload) - 1
	for i := 1; i+1 < last; i++ {
		if payload[i] == 0 && payload[i+1] == 0 {
			return i
		}
	}
	return -1
}

// ValidFilePayload reports whether payload is a well-formed file transfer.
func ValidFilePayload(payload []byte) bool {
	return len(payload) <= MaxPayloadSize && MarkerIndex(payload) >= 0
}

// SplitFilePayload separates a SEND_FILE payload into filename and content.
func SplitFilePayload(payload []byte) (string, []byte, error) {
	i := MarkerIndex(payload)
	if i < 0 {
		return "", nil, Violation(ReasonFileData)
	}
	return string(payload[:i]), payload[i+2:], nil
}

// BuildFilePayload joins filename and content with the two-byte marker.
func BuildFilePayload(name string, content []byte) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty filename", ErrInvalidArgument)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty file content", ErrInvalidArgument)
	}
	size := len(name) + 2 + len(content)
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("%w: file payload of %d bytes exceeds %d", ErrInvalidArgument, size, MaxPayloadSize)
	}
	out := make([]byte, 0, size)
	out = append(out, name...)
	out = append(out, 0, 0)
	out = append(out, content...)
	return out, nil
}
