package gpio

import (
	"context"
	"sync"
)

// FakeEndpoint is a test double holding pin levels in memory.
// A pin wired with Relay behaves like a bistable relay: every high-to-low
// edge on the toggle pin inverts the status pin.
type FakeEndpoint struct {
	mu sync.Mutex

	host string
	port int

	// levels holds the current level of every touched pin.
	levels map[int]Level
	// relays maps toggle pin -> status pin.
	relays map[int]int
	modes  map[int]Mode
	pulls  map[int]Pull

	// Writes records every write attempt in order, including failed ones.
	Writes []PinWrite

	// Reads counts read attempts per pin.
	Reads map[int]int

	// Connected controls the return value of IsConnected.
	Connected bool

	// ReadError, if set, is returned by Read.
	ReadError error
	// WriteError, if set, is returned by Write.
	WriteError error
	// ModeError, if set, is returned by SetMode and SetPull.
	ModeError error
	// CloseError, if set, is returned by Close.
	CloseError error

	// BeforeRead, if set, runs before each Read without the lock held.
	BeforeRead func(pin int)

	// HonorContext makes Read and Write fail with ctx.Err() once ctx is done,
	// without touching the pin, the way the pigpiod client does.
	HonorContext bool

	// Closed counts calls to Close.
	Closed int
}

// PinWrite is one recorded write.
type PinWrite struct {
	Pin   int
	Level Level
}

// NewFakeEndpoint creates a connected FakeEndpoint for host:port.
func NewFakeEndpoint(host string, port int) *FakeEndpoint {
	return &FakeEndpoint{
		host:      host,
		port:      port,
		levels:    make(map[int]Level),
		relays:    make(map[int]int),
		modes:     make(map[int]Mode),
		pulls:     make(map[int]Pull),
		Reads:     make(map[int]int),
		Connected: true,
	}
}

// Set forces a pin level.
func (f *FakeEndpoint) Set(pin int, level Level) {
	f.mu.Lock()
	f.levels[pin] = level
	f.mu.Unlock()
}

// Level returns the current level of a pin.
func (f *FakeEndpoint) Level(pin int) Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin]
}

// Relay wires toggle to status as a bistable relay.
func (f *FakeEndpoint) Relay(toggle, status int) {
	f.mu.Lock()
	f.relays[toggle] = status
	f.mu.Unlock()
}

// Mode returns the last mode set on a pin.
func (f *FakeEndpoint) Mode(pin int) (Mode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.modes[pin]
	return m, ok
}

// Pull returns the last pull set on a pin.
func (f *FakeEndpoint) Pull(pin int) (Pull, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pulls[pin]
	return p, ok
}

// WritesTo returns the recorded writes for one pin.
func (f *FakeEndpoint) WritesTo(pin int) []Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Level
	for _, w := range f.Writes {
		if w.Pin == pin {
			out = append(out, w.Level)
		}
	}
	return out
}

// Host returns the host the endpoint was created for.
func (f *FakeEndpoint) Host() string { return f.host }

// Port returns the port the endpoint was created for.
func (f *FakeEndpoint) Port() int { return f.port }

// IsConnected reports the scripted connection state.
func (f *FakeEndpoint) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SetConnected changes the scripted connection state.
func (f *FakeEndpoint) SetConnected(connected bool) {
	f.mu.Lock()
	f.Connected = connected
	f.mu.Unlock()
}

// Read returns the stored level of pin.
func (f *FakeEndpoint) Read(ctx context.Context, pin int) (Level, error) {
	if f.BeforeRead != nil {
		f.BeforeRead(pin)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.Reads[pin]++
	if f.HonorContext && ctx.Err() != nil {
		return Low, ctx.Err()
	}
	if !f.Connected {
		return Low, ErrNotConnected
	}
	if f.ReadError != nil {
		return Low, f.ReadError
	}
	return f.levels[pin], nil
}

// Write stores level on pin and drives any relay wired to it.
func (f *FakeEndpoint) Write(ctx context.Context, pin int, level Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Writes = append(f.Writes, PinWrite{Pin: pin, Level: level})
	if f.HonorContext && ctx.Err() != nil {
		return ctx.Err()
	}
	if !f.Connected {
		return ErrNotConnected
	}
	if f.WriteError != nil {
		return f.WriteError
	}

	prev := f.levels[pin]
	f.levels[pin] = level
	if status, ok := f.relays[pin]; ok && prev == High && level == Low {
		f.levels[status] = !f.levels[status]
	}
	return nil
}

// SetMode records the mode of pin.
func (f *FakeEndpoint) SetMode(_ context.Context, pin int, mode Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ModeError != nil {
		return f.ModeError
	}
	f.modes[pin] = mode
	return nil
}

// SetPull records the pull of pin.
func (f *FakeEndpoint) SetPull(_ context.Context, pin int, pull Pull) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ModeError != nil {
		return f.ModeError
	}
	f.pulls[pin] = pull
	return nil
}

// Close marks the endpoint closed and disconnected.
func (f *FakeEndpoint) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed++
	f.Connected = false
	return f.CloseError
}

// FakeDialer hands out FakeEndpoints and records every dial.
type FakeDialer struct {
	mu sync.Mutex

	// Dials records every host:port requested, in order.
	Dials []string
	// Endpoints holds every endpoint handed out, in order.
	Endpoints []*FakeEndpoint
	// Err, if set, is returned instead of an endpoint.
	Err error
	// Setup, if set, prepares each new endpoint before it is returned.
	Setup func(*FakeEndpoint)
}

// Dial implements Dialer.
func (d *FakeDialer) Dial(_ context.Context, host string, port int) (Endpoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Dials = append(d.Dials, hostPort(host, port))
	if d.Err != nil {
		return nil, d.Err
	}
	ep := NewFakeEndpoint(host, port)
	if d.Setup != nil {
		d.Setup(ep)
	}
	d.Endpoints = append(d.Endpoints, ep)
	return ep, nil
}

// DialCount returns the number of dials so far.
func (d *FakeDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Dials)
}

// Last returns the most recently created endpoint, or nil.
func (d *FakeDialer) Last() *FakeEndpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Endpoints) == 0 {
		return nil
	}
	return d.Endpoints[len(d.Endpoints)-1]
}
