// Package status provides a thread-safe tracker of daemon-level facts for the
// raspitherm listener. It is read by HTTP handlers and MQTT lifecycle events.
// Channel values are not held here; they are always read from the relays.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/raspitherm/internal/logic"
)

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Pins is the configured pin assignment, for display.
type Pins struct {
	HWToggle int
	CHToggle int
	HWStatus int
	CHStatus int
}

// Config contains listener configuration for display.
type Config struct {
	PiHost       string
	PigPort      int
	Driver       string
	Pins         Pins
	PulseMs      int64
	RelayDelayMs int64
	HeartbeatMs  int64
	Broker       string
	HTTPAddr     string
}

// Daemon describes the pin daemon session.
type Daemon struct {
	Connected   bool
	Endpoint    string
	LastError   string
	LastErrorAt time.Time
	PulsesCH    int
	PulsesHW    int
}

// Snapshot is a point-in-time view of listener state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Daemon        Daemon
	Counts        logic.EventCounts
	LastEvent     *logic.Event
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the listener started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable listener state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time

	// Live sources consulted by Snapshot; they override the pushed values.
	daemon func() Daemon
	mqtt   func() bool
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// RecordEvents sets the event counts and the most recent change event.
func (t *Tracker) RecordEvents(counts logic.EventCounts, last *logic.Event) {
	t.mu.Lock()
	t.snap.Counts = counts
	if last != nil {
		e := *last
		t.snap.LastEvent = &e
	}
	t.mu.Unlock()
}

// SetDaemon sets the pin daemon session state.
func (t *Tracker) SetDaemon(d Daemon) {
	t.mu.Lock()
	t.snap.Daemon = d
	t.mu.Unlock()
}

// WatchDaemon makes Snapshot read the daemon state from fn.
// fn must not block.
func (t *Tracker) WatchDaemon(fn func() Daemon) {
	t.mu.Lock()
	t.daemon = fn
	t.mu.Unlock()
}

// WatchMQTT makes Snapshot read the MQTT connection state from fn.
func (t *Tracker) WatchMQTT(fn func() bool) {
	t.mu.Lock()
	t.mqtt = fn
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the listener state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	daemon, mqtt := t.daemon, t.mqtt
	t.mu.RUnlock()

	if daemon != nil {
		s.Daemon = daemon()
	}
	if mqtt != nil {
		s.MQTTConnected = mqtt()
	}
	s.Now = t.now()
	return s
}
