package heating

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sweeney/raspitherm/internal/gpio"
)

// Options configures a Controller.
type Options struct {
	// Host and Port locate the pin daemon.
	Host string
	Port int

	Pinout Pinout

	// PulseWidth is how long a toggle pin is held high.
	PulseWidth time.Duration
	// RelayDelay is how long to wait after a pulse before re-reading status.
	RelayDelay time.Duration
	// ConnectTimeout bounds each connect attempt.
	ConnectTimeout time.Duration

	Dialer gpio.Dialer
	Logger *zap.SugaredLogger

	// Sleep replaces time.Sleep for pulses and settling. Used by tests.
	Sleep func(time.Duration)
	// Now replaces time.Now for event timestamps. Used by tests.
	Now func() time.Time
}

// Change is emitted after every SetChannel that reached the daemon.
type Change struct {
	Channel  Channel
	Desired  Desired
	Intended bool
	Before   bool
	After    bool
	Pulsed   bool
	At       time.Time
	// Status holds both channels as known right after the change; the other
	// channel's value is a fresh read.
	Status Status
}

// Health describes the daemon session for display.
type Health struct {
	Connected   bool
	Endpoint    string
	LastError   string
	LastErrorAt time.Time
	Pulses      map[Channel]int
}

// Controller is the entry point used by the HTTP layer.
// Actuations on the same channel are serialized; a status read waits for an
// in-flight pulse on that channel.
type Controller struct {
	host   string
	port   int
	pinout Pinout

	resolver   *Resolver
	pins       *Pins
	reconciler *Reconciler
	log        *zap.SugaredLogger
	now        func() time.Time

	locks map[Channel]*semaphore.Weighted

	mu        sync.Mutex
	listeners []func(Change)
	lastErr   error
	lastErrAt time.Time
	pulses    map[Channel]int
}

// New creates a Controller. No connection is made until the first operation.
func New(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	pins := NewPins(log.Named("pins"))
	pulse := NewPulse(pins, opts.Sleep)

	c := &Controller{
		host:       opts.Host,
		port:       opts.Port,
		pinout:     opts.Pinout,
		resolver:   NewResolver(opts.Dialer, opts.ConnectTimeout, log.Named("resolver")),
		pins:       pins,
		reconciler: NewReconciler(pins, pulse, opts.PulseWidth, opts.RelayDelay, opts.Sleep, log.Named("reconciler")),
		log:        log,
		now:        now,
		locks: map[Channel]*semaphore.Weighted{
			CH: semaphore.NewWeighted(1),
			HW: semaphore.NewWeighted(1),
		},
		pulses: make(map[Channel]int),
	}
	c.resolver.OnConnect(c.configurePins)
	return c
}

// OnChange registers fn to receive every Change. fn runs on the caller's
// goroutine after the channel lock is released.
func (c *Controller) OnChange(fn func(Change)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Status reads both status inputs. When the daemon cannot be reached it
// returns all-off together with the *ConnectionError.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	var st Status

	ep, err := c.endpoint(ctx)
	if err != nil {
		return st, err
	}

	for _, ch := range Channels {
		v, err := c.readChannel(ctx, ep, ch)
		if err != nil {
			return st, err
		}
		st.set(ch, v)
	}
	return st, nil
}

// SetChannel drives ch towards d and returns the observed state afterwards.
// When the daemon cannot be reached it returns false and the *ConnectionError.
func (c *Controller) SetChannel(ctx context.Context, ch Channel, d Desired) (bool, error) {
	a, err := c.pinout.For(ch)
	if err != nil {
		return false, err
	}

	lock := c.locks[ch]
	if err := lock.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("wait for %s: %w", ch, err)
	}

	ep, err := c.endpoint(ctx)
	if err != nil {
		lock.Release(1)
		return false, err
	}
	// Past this point nothing is cancelled, so give up before observing.
	if err := ctx.Err(); err != nil {
		lock.Release(1)
		return false, fmt.Errorf("set %s: %w", ch, err)
	}

	intended := d.Intended(false)
	if d == Toggle {
		intended = d.Intended(c.pins.Read(context.WithoutCancel(ctx), ep, a.Status))
	}
	out := c.reconciler.Reconcile(ctx, ep, a, intended)
	lock.Release(1)

	c.log.Infow("channel set", "channel", ch, "desired", d, "intended", intended,
		"before", out.Before, "after", out.After, "pulsed", out.Pulsed)

	change := Change{
		Channel:  ch,
		Desired:  d,
		Intended: intended,
		Before:   out.Before,
		After:    out.After,
		Pulsed:   out.Pulsed,
		At:       c.now(),
	}
	if out.Pulsed {
		c.mu.Lock()
		c.pulses[ch]++
		c.mu.Unlock()
	}
	c.notify(context.WithoutCancel(ctx), ep, change)

	return out.After, nil
}

// Teardown waits for in-flight actuations and releases the daemon session.
// It is idempotent; a later operation reconnects.
func (c *Controller) Teardown() {
	ctx := context.Background()
	for _, ch := range Channels {
		// Acquire with a background context cannot fail.
		_ = c.locks[ch].Acquire(ctx, 1)
	}
	c.resolver.Close()
	for _, ch := range Channels {
		c.locks[ch].Release(1)
	}
	c.log.Info("controller torn down")
}

// Health reports the daemon session state without any I/O.
func (c *Controller) Health() Health {
	ep := c.resolver.Current()

	c.mu.Lock()
	defer c.mu.Unlock()

	h := Health{
		Connected: ep != nil && ep.IsConnected(),
		Endpoint:  gpio.Describe(ep),
		Pulses:    make(map[Channel]int, len(c.pulses)),
	}
	if c.lastErr != nil {
		h.LastError = c.lastErr.Error()
		h.LastErrorAt = c.lastErrAt
	}
	for ch, n := range c.pulses {
		h.Pulses[ch] = n
	}
	return h
}

// Pinout returns the immutable pin assignment.
func (c *Controller) Pinout() Pinout {
	return c.pinout
}

func (c *Controller) endpoint(ctx context.Context) (gpio.Endpoint, error) {
	ep, err := c.resolver.Resolve(ctx, c.host, c.port)

	c.mu.Lock()
	if err != nil {
		c.lastErr = err
		c.lastErrAt = c.now()
	}
	c.mu.Unlock()

	return ep, err
}

func (c *Controller) readChannel(ctx context.Context, ep gpio.Endpoint, ch Channel) (bool, error) {
	a, err := c.pinout.For(ch)
	if err != nil {
		return false, err
	}
	lock := c.locks[ch]
	if err := lock.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("wait for %s: %w", ch, err)
	}
	defer lock.Release(1)

	return c.pins.Read(ctx, ep, a.Status), nil
}

func (c *Controller) notify(ctx context.Context, ep gpio.Endpoint, change Change) {
	c.mu.Lock()
	listeners := append([]func(Change){}, c.listeners...)
	c.mu.Unlock()

	if len(listeners) == 0 {
		return
	}

	change.Status.set(change.Channel, change.After)
	for _, other := range Channels {
		if other == change.Channel {
			continue
		}
		v, err := c.readChannel(ctx, ep, other)
		if err != nil {
			break
		}
		change.Status.set(other, v)
	}

	for _, fn := range listeners {
		fn(change)
	}
}

// configurePins sets directions and disables internal pulls (the board has
// hardware pull-downs). Failures are logged; the endpoint stays usable.
func (c *Controller) configurePins(ctx context.Context, ep gpio.Endpoint) {
	type setting struct {
		pin  int
		mode gpio.Mode
	}
	settings := []setting{
		{c.pinout.HW.Toggle, gpio.Output},
		{c.pinout.CH.Toggle, gpio.Output},
		{c.pinout.HW.Status, gpio.Input},
		{c.pinout.CH.Status, gpio.Input},
	}
	for _, s := range settings {
		if err := ep.SetMode(ctx, s.pin, s.mode); err != nil {
			c.log.Errorw("cannot configure pin mode", "pin", s.pin, "mode", s.mode, "error", err)
			continue
		}
		if err := ep.SetPull(ctx, s.pin, gpio.PullOff); err != nil {
			c.log.Errorw("cannot configure pin pull", "pin", s.pin, "error", err)
		}
	}
}
