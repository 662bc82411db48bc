//go:build !linux

package gpio

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("gpio: character device not supported on this platform (requires Linux)")

// ChipEndpoint is not available on non-Linux platforms.
type ChipEndpoint struct{}

// ChipDialer returns a Dialer that always fails on non-Linux platforms.
func ChipDialer(string) Dialer {
	return func(context.Context, string, int) (Endpoint, error) {
		return nil, errUnsupported
	}
}

// NewChipEndpoint returns an error on non-Linux platforms.
func NewChipEndpoint(string, string, int) (*ChipEndpoint, error) {
	return nil, errUnsupported
}

func (c *ChipEndpoint) Host() string      { return "" }
func (c *ChipEndpoint) Port() int         { return 0 }
func (c *ChipEndpoint) IsConnected() bool { return false }

func (c *ChipEndpoint) Read(context.Context, int) (Level, error) {
	return Low, errUnsupported
}

func (c *ChipEndpoint) Write(context.Context, int, Level) error {
	return errUnsupported
}

func (c *ChipEndpoint) SetMode(context.Context, int, Mode) error {
	return errUnsupported
}

func (c *ChipEndpoint) SetPull(context.Context, int, Pull) error {
	return errUnsupported
}

func (c *ChipEndpoint) Close() error {
	return nil
}
