// Package gpio provides pin access to a single-board computer through an Endpoint.
// The pigpio subpackage talks to a remote pigpiod daemon over TCP.
// ChipEndpoint drives a local Linux GPIO character device.
// FakeEndpoint allows testing without hardware.
package gpio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Level is the logic level of a pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// Int returns 1 for High and 0 for Low.
func (l Level) Int() int {
	if l {
		return 1
	}
	return 0
}

func (l Level) String() string {
	if l {
		return "1"
	}
	return "0"
}

// Mode is the direction of a pin.
type Mode int

const (
	Input  Mode = 0
	Output Mode = 1
)

// Pull is the internal bias resistor setting of a pin.
type Pull int

const (
	PullOff  Pull = 0
	PullDown Pull = 1
	PullUp   Pull = 2
)

// MaxPin is the highest BCM pin number addressable on a Raspberry Pi.
const MaxPin = 53

// ErrNotConnected is returned by endpoint operations after the session was lost.
var ErrNotConnected = errors.New("gpio: endpoint not connected")

// Endpoint is one session with a pin-control backend.
// Implementations must be safe for concurrent use.
type Endpoint interface {
	// Host and Port identify the target the endpoint was connected to.
	Host() string
	Port() int

	// IsConnected reports whether the session is still usable.
	IsConnected() bool

	Read(ctx context.Context, pin int) (Level, error)
	Write(ctx context.Context, pin int, level Level) error
	SetMode(ctx context.Context, pin int, mode Mode) error
	SetPull(ctx context.Context, pin int, pull Pull) error

	// Close ends the session. It is idempotent.
	Close() error
}

// Dialer opens a new Endpoint to host:port.
type Dialer func(ctx context.Context, host string, port int) (Endpoint, error)

// Describe renders an endpoint for log lines.
func Describe(ep Endpoint) string {
	if ep == nil {
		return "<none>"
	}
	state := "DISCONNECTED"
	if ep.IsConnected() {
		state = "CONNECTED"
	}
	return fmt.Sprintf("pins @ %s:%d (%s)", ep.Host(), ep.Port(), state)
}

func checkPin(pin int) error {
	if pin < 0 || pin > MaxPin {
		return fmt.Errorf("gpio: pin %d out of range 0..%d", pin, MaxPin)
	}
	return nil
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
