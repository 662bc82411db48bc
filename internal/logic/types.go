// Package logic contains pure business logic for heating event bookkeeping.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical state of a heating channel.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// StateOf maps an observed input to a State.
func StateOf(on bool) State {
	if on {
		return StateOn
	}
	return StateOff
}

// EventType represents a state transition event.
type EventType string

const (
	EventCHOn  EventType = "CH_ON"
	EventCHOff EventType = "CH_OFF"
	EventHWOn  EventType = "HW_ON"
	EventHWOff EventType = "HW_OFF"
)

// Channel names as used on the wire and in query strings.
const (
	ChannelCH = "ch"
	ChannelHW = "hw"
)

// Event represents a state transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	CHState   State
	HWState   State
}

// Transition is the result of one actuation request, as observed on the
// status inputs before and after.
type Transition struct {
	Time    time.Time
	Channel string // ChannelCH or ChannelHW
	Before  bool
	After   bool
	// CH and HW are both channels right after the actuation.
	CH bool
	HW bool
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	CHOn  int
	CHOff int
	HWOn  int
	HWOff int
}

// Total returns the number of events of every type.
func (c EventCounts) Total() int {
	return c.CHOn + c.CHOff + c.HWOn + c.HWOff
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
