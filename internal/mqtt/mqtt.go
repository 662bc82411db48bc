// Package mqtt publishes heating change events and lifecycle events to MQTT.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/raspitherm/internal/logic"
)

// Topic is the MQTT topic for channel change events.
const Topic = "energy/heating/raspitherm/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "energy/heating/raspitherm/system"

// Lifecycle event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventReconnected = "RECONNECTED"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a channel change event to the broker.
	// A failure is returned to the caller and must never affect actuation.
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // e.g. "SIGTERM" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the change event message.
type Payload struct {
	Heating HeatingPayload `json:"heating"`
}

// HeatingPayload contains the change event details.
type HeatingPayload struct {
	Timestamp string       `json:"timestamp"`
	Event     string       `json:"event"`
	CH        ChannelState `json:"ch"`
	HW        ChannelState `json:"hw"`
}

// ChannelState represents a single channel's state.
type ChannelState struct {
	State string `json:"state"`
}

// FormatPayload creates the JSON payload for a change event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Heating: HeatingPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			CH:        ChannelState{State: string(event.CHState)},
			HW:        ChannelState{State: string(event.HWState)},
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the message for simple lifecycle events (LWT, RECONNECTED)
// that don't carry a status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
