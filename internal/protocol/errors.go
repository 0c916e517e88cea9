package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is returned when the peer reset or the stream ended
	// before a complete frame could be read or written.
	ErrConnectionClosed = errors.New("protocol: connection closed")

	// ErrInvalidArgument is returned for a malformed frame construction request.
	ErrInvalidArgument = errors.New("protocol: invalid argument")
)

// ProtocolError is a rule violation by a peer. It always terminates the
// offending session.
type ProtocolError struct {
	Reason Reason
}

// Violation returns a *ProtocolError for reason.
func Violation(reason Reason) *ProtocolError {
	return &ProtocolError{Reason: reason}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation %s: %s", string(e.Reason), e.Reason.Text())
}

// ReasonOf extracts the reason carried by a *ProtocolError in err's chain.
func ReasonOf(err error) (Reason, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Reason, true
	}
	return "", false
}
