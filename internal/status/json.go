package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Daemon        DaemonJSON   `json:"daemon"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	LastEvent     *EventJSON   `json:"last_event,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// DaemonJSON reports the pin daemon session.
type DaemonJSON struct {
	Connected   bool       `json:"connected"`
	Endpoint    string     `json:"endpoint"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt string     `json:"last_error_at,omitempty"`
	Pulses      PulsesJSON `json:"pulses"`
}

// PulsesJSON counts relay pulses per channel.
type PulsesJSON struct {
	CH int `json:"ch"`
	HW int `json:"hw"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	CHOn  int `json:"ch_on"`
	CHOff int `json:"ch_off"`
	HWOn  int `json:"hw_on"`
	HWOff int `json:"hw_off"`
}

// EventJSON is the JSON representation of the last change event.
type EventJSON struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// PinsJSON is the JSON representation of the pin assignment.
type PinsJSON struct {
	HWToggle int `json:"hw_toggle_pin"`
	CHToggle int `json:"cw_toggle_pin"`
	HWStatus int `json:"hw_status_pin"`
	CHStatus int `json:"cw_status_pin"`
}

// ConfigJSON is the JSON representation of listener config.
type ConfigJSON struct {
	PiHost       string   `json:"pi_host"`
	PigPort      int      `json:"pig_port"`
	Driver       string   `json:"driver"`
	Pins         PinsJSON `json:"pins"`
	PulseMs      int64    `json:"pulse_duration_ms"`
	RelayDelayMs int64    `json:"relay_delay_ms"`
	HeartbeatMs  int64    `json:"heartbeat_ms"`
	Broker       string   `json:"broker"`
	HTTPAddr     string   `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Daemon: DaemonJSON{
			Connected: snap.Daemon.Connected,
			Endpoint:  snap.Daemon.Endpoint,
			LastError: snap.Daemon.LastError,
			Pulses:    PulsesJSON{CH: snap.Daemon.PulsesCH, HW: snap.Daemon.PulsesHW},
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			CHOn:  snap.Counts.CHOn,
			CHOff: snap.Counts.CHOff,
			HWOn:  snap.Counts.HWOn,
			HWOff: snap.Counts.HWOff,
		},
		Config: ConfigJSON{
			PiHost:  snap.Config.PiHost,
			PigPort: snap.Config.PigPort,
			Driver:  snap.Config.Driver,
			Pins: PinsJSON{
				HWToggle: snap.Config.Pins.HWToggle,
				CHToggle: snap.Config.Pins.CHToggle,
				HWStatus: snap.Config.Pins.HWStatus,
				CHStatus: snap.Config.Pins.CHStatus,
			},
			PulseMs:      snap.Config.PulseMs,
			RelayDelayMs: snap.Config.RelayDelayMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
		},
	}
	if !snap.Daemon.LastErrorAt.IsZero() {
		inner.Daemon.LastErrorAt = snap.Daemon.LastErrorAt.UTC().Format(time.RFC3339)
	}
	if snap.LastEvent != nil {
		inner.LastEvent = &EventJSON{
			Timestamp: snap.LastEvent.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(snap.LastEvent.Type),
		}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
