package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/raspitherm/internal/logic"
)

const (
	defaultClientID = "raspitherm"
	outboxLimit     = 100
	publishTimeout  = 5 * time.Second
)

var errPublishTimeout = errors.New("publish timeout")

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Logger   *zap.SugaredLogger
	// Now replaces time.Now for the will and reconnect payloads.
	Now func() time.Time
}

// RealPublisher publishes to an actual MQTT broker. Messages produced while
// the broker is unreachable are held in an outbox and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	log    *zap.SugaredLogger
	now    func() time.Time

	mu        sync.Mutex
	outbox    *outbox
	connected bool
	connects  int
}

// NewRealPublisher creates a publisher for the given broker. It does not wait
// for the broker; the connection is retried in the background.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt: broker required")
	}
	if opts.ClientID == "" {
		opts.ClientID = defaultClientID
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	p := &RealPublisher{
		log:    opts.Logger,
		now:    opts.Now,
		outbox: newOutbox(outboxLimit, opts.Logger),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: p.now(),
		Event:     EventShutdown,
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.handleConnect).
		SetConnectionLostHandler(p.handleConnectionLost)

	p.client = paho.NewClient(clientOpts)
	p.client.Connect()
	p.log.Infow("mqtt publisher started", "broker", opts.Broker, "client_id", opts.ClientID)

	return p, nil
}

// Publish sends a change event to the broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(pending{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(pending{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	p.mu.Lock()
	p.connected = false
	held := p.outbox.size()
	p.mu.Unlock()
	if held > 0 {
		p.log.Warnw("mqtt messages discarded on close", "count", held)
	}
	return nil
}

func (p *RealPublisher) publish(msg pending) error {
	p.mu.Lock()
	if !p.connected {
		p.outbox.add(msg)
		p.mu.Unlock()
		p.log.Debugw("mqtt offline, message held", "topic", msg.topic)
		return nil
	}
	p.mu.Unlock()

	return p.send(msg)
}

func (p *RealPublisher) send(msg pending) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: %w", msg.topic, errPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) handleConnect(paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnect := p.connects > 1
	held := p.outbox.flush()
	p.mu.Unlock()

	p.log.Infow("mqtt connected", "replaying", len(held))

	// paho callbacks must not block on tokens.
	go func() {
		if reconnect {
			payload, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: EventReconnected})
			if err == nil {
				held = append(held, pending{topic: TopicSystem, payload: payload, qos: 1})
			}
		}
		for _, msg := range held {
			if err := p.send(msg); err != nil {
				p.log.Warnw("mqtt replay failed", "topic", msg.topic, "error", err)
			}
		}
	}()
}

func (p *RealPublisher) handleConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.log.Warnw("mqtt connection lost", "error", err)
}
