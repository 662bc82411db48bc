package heating

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/raspitherm/internal/gpio"
)

// Resolver holds the single live endpoint and decides when it must be rebuilt.
// Resolve and Close are serialized, so concurrent callers never race two
// reconnects or leak a socket.
type Resolver struct {
	dial    gpio.Dialer
	timeout time.Duration
	log     *zap.SugaredLogger

	// onConnect runs after every successful connect, under mu.
	onConnect func(ctx context.Context, ep gpio.Endpoint)

	mu      sync.Mutex
	current gpio.Endpoint
}

var errDisconnectedOnArrival = errors.New("endpoint reported disconnected right after connect")

// NewResolver creates a Resolver. timeout bounds each connect attempt; zero
// leaves the bound to the dialer.
func NewResolver(dial gpio.Dialer, timeout time.Duration, log *zap.SugaredLogger) *Resolver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Resolver{
		dial:    dial,
		timeout: timeout,
		log:     log,
	}
}

// OnConnect registers fn to run after each successful connect.
func (r *Resolver) OnConnect(fn func(ctx context.Context, ep gpio.Endpoint)) {
	r.mu.Lock()
	r.onConnect = fn
	r.mu.Unlock()
}

// Resolve returns a connected endpoint for host:port. The held endpoint is
// reused when it targets host:port and is still connected; otherwise it is
// closed and replaced. A failed connect returns a *ConnectionError and leaves
// no endpoint held.
func (r *Resolver) Resolve(ctx context.Context, host string, port int) (gpio.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reason := rebuildReason(r.current, host, port)
	if reason == "" {
		return r.current, nil
	}

	r.log.Infow("rebuilding gpio endpoint", "reason", reason, "host", host, "port", port)
	r.discard()

	dialCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ep, err := r.dial(dialCtx, host, port)
	if err == nil && !ep.IsConnected() {
		_ = ep.Close()
		err = errDisconnectedOnArrival
	}
	if err != nil {
		connErr := &ConnectionError{Host: host, Port: port, Err: err}
		r.log.Errorw(ErrConnection.Error(), "host", host, "port", port, "error", err)
		return nil, connErr
	}

	r.log.Infow("connected to gpio daemon", "endpoint", gpio.Describe(ep))
	r.current = ep
	if r.onConnect != nil {
		r.onConnect(ctx, ep)
	}
	return ep, nil
}

// Current returns the held endpoint, which may be nil or disconnected.
func (r *Resolver) Current() gpio.Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Close releases the held endpoint. It is idempotent.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discard()
}

// discard closes and forgets the held endpoint. Caller must hold r.mu.
func (r *Resolver) discard() {
	if r.current == nil {
		return
	}
	if err := r.current.Close(); err != nil {
		r.log.Warnw("closing old gpio endpoint failed", "endpoint", gpio.Describe(r.current), "error", err)
	}
	r.current = nil
}

// rebuildReason returns why ep cannot serve host:port, or "" if it can.
func rebuildReason(ep gpio.Endpoint, host string, port int) string {
	switch {
	case ep == nil:
		return "no endpoint"
	case ep.Host() != host:
		return "host changed"
	case ep.Port() != port:
		return "port changed"
	case !ep.IsConnected():
		return "endpoint not connected"
	default:
		return ""
	}
}
