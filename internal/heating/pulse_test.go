package heating

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sweeney/raspitherm/internal/gpio"
)

type sleepRecorder struct {
	slept []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.slept = append(s.slept, d)
}

func TestPulseWritesHighThenLow(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	p := NewPulse(NewPins(nil), rec.sleep)
	ep := gpio.NewFakeEndpoint("hostA", 8888)

	got := p.Fire(context.Background(), ep, 5, 200*time.Millisecond)

	assert.Equal(t, 200*time.Millisecond, got)
	assert.Equal(t, []gpio.Level{gpio.High, gpio.Low}, ep.WritesTo(5))
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, rec.slept)
	assert.Equal(t, gpio.Low, ep.Level(5))
}

func TestPulseEndsLowWhenWritesFail(t *testing.T) {
	t.Parallel()

	p := NewPulse(NewPins(nil), (&sleepRecorder{}).sleep)
	ep := gpio.NewFakeEndpoint("hostA", 8888)
	ep.WriteError = errors.New("bad level")

	p.Fire(context.Background(), ep, 5, time.Millisecond)

	assert.Equal(t, []gpio.Level{gpio.High, gpio.Low}, ep.WritesTo(5))
}

func TestPulseIgnoresCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	rec := &sleepRecorder{}
	p := NewPulse(NewPins(nil), func(d time.Duration) {
		cancel()
		rec.sleep(d)
	})
	ep := gpio.NewFakeEndpoint("hostA", 8888)
	ep.Relay(5, 22)

	p.Fire(ctx, ep, 5, time.Millisecond)

	assert.Equal(t, []gpio.Level{gpio.High, gpio.Low}, ep.WritesTo(5))
	assert.Equal(t, gpio.High, ep.Level(22), "relay must have flipped")
}

func TestPulseReportsDelivery(t *testing.T) {
	t.Parallel()

	p := NewPulse(NewPins(nil), (&sleepRecorder{}).sleep)

	ep := gpio.NewFakeEndpoint("hostA", 8888)
	assert.True(t, p.fire(context.Background(), ep, 5, time.Millisecond))

	ep = gpio.NewFakeEndpoint("hostA", 8888)
	ep.WriteError = errors.New("bad level")
	assert.False(t, p.fire(context.Background(), ep, 5, time.Millisecond))

	ep = gpio.NewFakeEndpoint("hostA", 8888)
	ep.SetConnected(false)
	assert.False(t, p.fire(context.Background(), ep, 5, time.Millisecond))
	assert.Empty(t, ep.Writes)
}
