package mqtt

import "go.uber.org/zap"

// pending is a serialized message held for replay after reconnection.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox keeps the newest messages produced while the broker is unreachable.
// When full, the oldest message is dropped. Not safe for concurrent use.
type outbox struct {
	msgs    []pending
	limit   int
	dropped int
	log     *zap.SugaredLogger
}

func newOutbox(limit int, log *zap.SugaredLogger) *outbox {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &outbox{
		msgs:  make([]pending, 0, limit),
		limit: limit,
		log:   log,
	}
}

func (o *outbox) add(msg pending) {
	if len(o.msgs) == o.limit {
		if o.dropped == 0 {
			o.log.Warnw("mqtt outbox full, dropping oldest", "limit", o.limit)
		}
		o.dropped++
		copy(o.msgs, o.msgs[1:])
		o.msgs = o.msgs[:len(o.msgs)-1]
	}
	o.msgs = append(o.msgs, msg)
}

// flush returns the held messages oldest first and empties the outbox.
func (o *outbox) flush() []pending {
	if len(o.msgs) == 0 {
		return nil
	}
	out := o.msgs
	o.msgs = make([]pending, 0, o.limit)
	if o.dropped > 0 {
		o.log.Warnw("mqtt messages lost while offline", "dropped", o.dropped)
		o.dropped = 0
	}
	return out
}

func (o *outbox) size() int {
	return len(o.msgs)
}
