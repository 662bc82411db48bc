package logic

import "time"

// Ledger turns actuation transitions into events and keeps running counts.
// Not safe for concurrent use; caller must synchronize.
type Ledger struct {
	startTime     time.Time
	eventCounts   EventCounts
	lastEvent     *Event
	lastHeartbeat time.Time
}

// NewLedger creates a Ledger. The startTime is used for calculating uptime in
// heartbeat events.
func NewLedger(startTime time.Time) *Ledger {
	return &Ledger{
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process returns the event for tr, or nil when the observed state of the
// channel did not change (no pulse, or the relay did not move).
func (l *Ledger) Process(tr Transition) *Event {
	if tr.Before == tr.After {
		return nil
	}

	eventType, ok := eventTypeFor(tr.Channel, tr.After)
	if !ok {
		return nil
	}

	event := &Event{
		Timestamp: tr.Time,
		Type:      eventType,
		CHState:   StateOf(tr.CH),
		HWState:   StateOf(tr.HW),
	}

	switch eventType {
	case EventCHOn:
		l.eventCounts.CHOn++
	case EventCHOff:
		l.eventCounts.CHOff++
	case EventHWOn:
		l.eventCounts.HWOn++
	case EventHWOff:
		l.eventCounts.HWOff++
	}

	e := *event
	l.lastEvent = &e
	return event
}

func eventTypeFor(channel string, on bool) (EventType, bool) {
	switch channel {
	case ChannelCH:
		if on {
			return EventCHOn, true
		}
		return EventCHOff, true
	case ChannelHW:
		if on {
			return EventHWOn, true
		}
		return EventHWOff, true
	default:
		return "", false
	}
}

// Counts returns a copy of the event counts.
func (l *Ledger) Counts() EventCounts {
	return l.eventCounts
}

// LastEvent returns a copy of the most recent event, or nil.
func (l *Ledger) LastEvent() *Event {
	if l.lastEvent == nil {
		return nil
	}
	e := *l.lastEvent
	return &e
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (l *Ledger) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(l.lastHeartbeat) < interval {
		return nil
	}

	l.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(l.startTime),
		Counts:    l.eventCounts,
	}
}
