//go:build linux

package gpio

import (
	"context"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "raspitherm"

// ChipEndpoint drives pins on a local GPIO character device.
// Lines are requested lazily on first use and kept until Close.
type ChipEndpoint struct {
	host string
	port int

	mu     sync.Mutex
	chip   *gpiocdev.Chip
	lines  map[int]*gpiocdev.Line
	closed bool
}

// ChipDialer returns a Dialer that opens the named chip (e.g. "gpiochip0").
// host and port are only recorded so the endpoint can be compared with the
// configured target.
func ChipDialer(chipName string) Dialer {
	return func(_ context.Context, host string, port int) (Endpoint, error) {
		return NewChipEndpoint(chipName, host, port)
	}
}

// NewChipEndpoint opens a GPIO chip for actual Raspberry Pi hardware.
func NewChipEndpoint(chipName, host string, port int) (*ChipEndpoint, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	return &ChipEndpoint{
		host:  host,
		port:  port,
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
	}, nil
}

func (c *ChipEndpoint) Host() string { return c.host }

func (c *ChipEndpoint) Port() int { return c.port }

// IsConnected reports whether the chip is still open.
func (c *ChipEndpoint) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.chip != nil
}

// line returns the requested line for pin, requesting it with opts if needed.
// Caller must hold c.mu.
func (c *ChipEndpoint) line(pin int, opts ...gpiocdev.LineReqOption) (*gpiocdev.Line, error) {
	if c.closed || c.chip == nil {
		return nil, ErrNotConnected
	}
	if err := checkPin(pin); err != nil {
		return nil, err
	}
	if l, ok := c.lines[pin]; ok {
		return l, nil
	}
	l, err := c.chip.RequestLine(pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request pin %d: %w", pin, err)
	}
	c.lines[pin] = l
	return l, nil
}

// Read returns the raw level of pin.
func (c *ChipEndpoint) Read(_ context.Context, pin int) (Level, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, err := c.line(pin, gpiocdev.AsInput)
	if err != nil {
		return Low, err
	}
	v, err := l.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v != 0, nil
}

// Write drives pin to level.
func (c *ChipEndpoint) Write(_ context.Context, pin int, level Level) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, err := c.line(pin, gpiocdev.AsOutput(level.Int()))
	if err != nil {
		return err
	}
	if err := l.SetValue(level.Int()); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// SetMode switches pin direction. Outputs start low.
func (c *ChipEndpoint) SetMode(_ context.Context, pin int, mode Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode == Output {
		l, err := c.line(pin, gpiocdev.AsOutput(0))
		if err != nil {
			return err
		}
		return l.Reconfigure(gpiocdev.AsOutput(0))
	}
	l, err := c.line(pin, gpiocdev.AsInput)
	if err != nil {
		return err
	}
	return l.Reconfigure(gpiocdev.AsInput)
}

// SetPull sets the internal bias of pin.
func (c *ChipEndpoint) SetPull(_ context.Context, pin int, pull Pull) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, err := c.line(pin, gpiocdev.AsInput)
	if err != nil {
		return err
	}
	switch pull {
	case PullUp:
		return l.Reconfigure(gpiocdev.WithPullUp)
	case PullDown:
		return l.Reconfigure(gpiocdev.WithPullDown)
	default:
		return l.Reconfigure(gpiocdev.WithBiasDisabled)
	}
}

// Close releases all lines and the chip.
// Lines are returned to input with pull-down (Raspberry Pi boot defaults)
// before release so relays are not left driven.
func (c *ChipEndpoint) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for pin, l := range c.lines {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	c.lines = nil
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
