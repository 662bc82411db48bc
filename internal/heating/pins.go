package heating

import (
	"context"

	"go.uber.org/zap"

	"github.com/sweeney/raspitherm/internal/gpio"
)

// Pins performs fail-safe reads and writes. Failures are logged with the pin
// and attempted value and replaced by a safe default; nothing is returned.
type Pins struct {
	log *zap.SugaredLogger
}

// NewPins creates Pins logging to log.
func NewPins(log *zap.SugaredLogger) *Pins {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pins{log: log}
}

// Write sets pin to value and returns value whatever happened.
// A nil or disconnected endpoint skips the write.
func (p *Pins) Write(ctx context.Context, ep gpio.Endpoint, pin int, value bool) bool {
	p.write(ctx, ep, pin, value)
	return value
}

// write is Write reporting whether the endpoint accepted the level.
func (p *Pins) write(ctx context.Context, ep gpio.Endpoint, pin int, value bool) bool {
	if ep == nil || !ep.IsConnected() {
		p.log.Errorw("interface not connected, cannot output to pin", "pin", pin, "value", boolInt(value))
		return false
	}
	if err := ep.Write(ctx, pin, gpio.Level(value)); err != nil {
		ioErr := &PinIOError{Op: "write", Pin: pin, Value: value, Err: err}
		p.log.Errorw("pin write failed", "pin", pin, "value", boolInt(value), "error", ioErr)
		return false
	}
	return true
}

// Read returns the level of pin, or false when it cannot be read.
func (p *Pins) Read(ctx context.Context, ep gpio.Endpoint, pin int) bool {
	if ep == nil || !ep.IsConnected() {
		p.log.Errorw("interface not connected, cannot read pin", "pin", pin)
		return false
	}
	v, err := ep.Read(ctx, pin)
	if err != nil {
		ioErr := &PinIOError{Op: "read", Pin: pin, Err: err}
		p.log.Errorw("pin read failed", "pin", pin, "error", ioErr)
		return false
	}
	return bool(v)
}
