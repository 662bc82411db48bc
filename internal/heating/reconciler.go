package heating

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/raspitherm/internal/gpio"
)

// Outcome is the result of one reconcile.
type Outcome struct {
	Before bool
	After  bool
	// Pulsed reports that the rising edge of a pulse reached the endpoint.
	Pulsed bool
}

// Reconciler pulses a channel only when its status input disagrees with the
// intended state. The relays are bistable, so a redundant pulse would flip
// them to the wrong position.
type Reconciler struct {
	pins   *Pins
	pulse  *Pulse
	width  time.Duration
	settle time.Duration
	sleep  func(time.Duration)
	log    *zap.SugaredLogger
}

// NewReconciler creates a Reconciler issuing pulses of width and waiting
// settle before re-reading the status input. A nil sleep uses time.Sleep.
func NewReconciler(pins *Pins, pulse *Pulse, width, settle time.Duration, sleep func(time.Duration), log *zap.SugaredLogger) *Reconciler {
	if sleep == nil {
		sleep = time.Sleep
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reconciler{
		pins:   pins,
		pulse:  pulse,
		width:  width,
		settle: settle,
		sleep:  sleep,
		log:    log,
	}
}

// Reconcile reads a's status pin and pulses a's toggle pin iff the reading
// differs from intended. After a pulse the status is re-read, because the
// relay may not have moved. No step is cancellable: a cancelled read would
// look like "off" and trigger a pulse on a relay that is already on.
func (r *Reconciler) Reconcile(ctx context.Context, ep gpio.Endpoint, a Assignment, intended bool) Outcome {
	ctx = context.WithoutCancel(ctx)

	observed := r.pins.Read(ctx, ep, a.Status)
	if observed == intended {
		return Outcome{Before: observed, After: observed}
	}

	r.log.Debugw("status differs from intent, pulsing",
		"status_pin", a.Status, "toggle_pin", a.Toggle, "observed", observed, "intended", intended, "duration", r.width)
	pulsed := r.pulse.fire(ctx, ep, a.Toggle, r.width)
	if !pulsed {
		r.log.Warnw("pulse not delivered", "toggle_pin", a.Toggle)
	} else if r.settle > 0 {
		r.sleep(r.settle)
	}

	after := r.pins.Read(ctx, ep, a.Status)
	if after != intended {
		r.log.Warnw("relay did not reach intended state",
			"status_pin", a.Status, "toggle_pin", a.Toggle, "intended", intended, "observed", after)
	}
	return Outcome{Before: observed, After: after, Pulsed: pulsed}
}
