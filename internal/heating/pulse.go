package heating

import (
	"context"
	"time"

	"github.com/sweeney/raspitherm/internal/gpio"
)

// Pulse triggers a bistable relay: pin high, wait, pin low.
// It blocks the caller for the full width and cannot be cancelled once
// started; a truncated pulse may leave the relay between positions.
type Pulse struct {
	pins  *Pins
	sleep func(time.Duration)
}

// NewPulse creates a Pulse. A nil sleep uses time.Sleep.
func NewPulse(pins *Pins, sleep func(time.Duration)) *Pulse {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Pulse{pins: pins, sleep: sleep}
}

// Fire pulses pin for width and returns the requested width.
// Both writes are always attempted, so the pin always ends low.
func (p *Pulse) Fire(ctx context.Context, ep gpio.Endpoint, pin int, width time.Duration) time.Duration {
	p.fire(ctx, ep, pin, width)
	return width
}

// fire is Fire reporting whether the rising edge reached the endpoint.
func (p *Pulse) fire(ctx context.Context, ep gpio.Endpoint, pin int, width time.Duration) bool {
	ctx = context.WithoutCancel(ctx)

	raised := p.pins.write(ctx, ep, pin, true)
	p.sleep(width)
	p.pins.write(ctx, ep, pin, false)

	return raised
}
