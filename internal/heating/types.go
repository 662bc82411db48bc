// Package heating is the actuation layer for the boiler programmer: it owns the
// session with the pin daemon, reads the channel status inputs, and pulses the
// bistable relays that switch central heating (CH) and hot water (HW).
//
// Nothing here panics or returns pin I/O failures to the caller. Reads degrade
// to false, writes echo the requested value, and only a failure to reach the
// daemon at all is reported (as a *ConnectionError).
package heating

import (
	"fmt"
	"strings"
)

// Channel identifies one relay channel.
type Channel string

const (
	CH Channel = "ch" // Central heating
	HW Channel = "hw" // Hot water
)

// Channels lists every channel in reporting order.
var Channels = []Channel{CH, HW}

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case CH:
		return CH, nil
	case HW:
		return HW, nil
	default:
		return "", fmt.Errorf("unknown channel %q", s)
	}
}

// Desired is a caller's intent for a channel.
type Desired int

const (
	Off Desired = iota
	On
	Toggle
)

func (d Desired) String() string {
	switch d {
	case On:
		return "on"
	case Toggle:
		return "toggle"
	default:
		return "off"
	}
}

// ParseDesired maps a free-form token to a Desired.
// Only recognised on-tokens and "toggle" switch something on; anything else is Off.
func ParseDesired(token string) Desired {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "on", "1", "true", "high", "h", "yes", "y":
		return On
	case "toggle":
		return Toggle
	default:
		return Off
	}
}

// Intended resolves d against the observed state of the channel.
func (d Desired) Intended(observed bool) bool {
	switch d {
	case On:
		return true
	case Toggle:
		return !observed
	default:
		return false
	}
}

// Assignment is the pin pair wired to one channel.
type Assignment struct {
	// Toggle is the output pin pulsed to flip the relay.
	Toggle int
	// Status is the input pin reporting the sensed state of the circuit.
	Status int
}

// Pinout maps every channel to its pins. It is copied by value into the
// Controller and never changes afterwards.
type Pinout struct {
	CH Assignment
	HW Assignment
}

// For returns the assignment of ch.
func (p Pinout) For(ch Channel) (Assignment, error) {
	switch ch {
	case CH:
		return p.CH, nil
	case HW:
		return p.HW, nil
	default:
		return Assignment{}, fmt.Errorf("unknown channel %q", ch)
	}
}

// Status is one observation of both channels.
type Status struct {
	CH bool
	HW bool
}

// Get returns the observed value of ch.
func (s Status) Get(ch Channel) bool {
	if ch == HW {
		return s.HW
	}
	return s.CH
}

// set stores v for ch.
func (s *Status) set(ch Channel, v bool) {
	if ch == HW {
		s.HW = v
		return
	}
	s.CH = v
}
