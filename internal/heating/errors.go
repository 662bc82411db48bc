package heating

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrConnection matches every *ConnectionError via errors.Is.
var ErrConnection = errors.New("gpio daemon unavailable")

// ConnectionError reports that no session with the daemon could be established.
// Callers skip pin I/O for the current cycle.
type ConnectionError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("gpio daemon %s unavailable: %v", net.JoinHostPort(e.Host, strconv.Itoa(e.Port)), e.Err)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Err}
}

// PinIOError describes a failed read or write. It is only ever logged.
type PinIOError struct {
	Op    string
	Pin   int
	Value bool
	Err   error
}

func (e *PinIOError) Error() string {
	if e.Op == "read" {
		return fmt.Sprintf("cannot read value of pin #%d: %v", e.Pin, e.Err)
	}
	return fmt.Sprintf("cannot output to pin #%d (value would be %d): %v", e.Pin, boolInt(e.Value), e.Err)
}

func (e *PinIOError) Unwrap() error {
	return e.Err
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
