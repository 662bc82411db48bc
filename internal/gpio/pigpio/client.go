package pigpio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/raspitherm/internal/gpio"
)

// Config is the transport configuration of one daemon session.
type Config struct {
	Host string
	Port int
	// ConnectTimeout bounds the TCP connect.
	ConnectTimeout time.Duration
	// IOTimeout bounds one command round trip.
	IOTimeout time.Duration
}

const (
	defaultConnectTimeout = 3 * time.Second
	defaultIOTimeout      = 2 * time.Second
)

// Client is one command socket to pigpiod. It implements gpio.Endpoint.
// Commands are serialized; a transport failure closes the socket and the
// client reports itself disconnected from then on.
type Client struct {
	host      string
	port      int
	ioTimeout time.Duration

	mu        sync.Mutex
	conn      net.Conn
	connected atomic.Bool
}

var _ gpio.Endpoint = (*Client)(nil)

// Dial connects to pigpiod.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("pigpio: host required")
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = defaultIOTimeout
	}

	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("pigpio: connect %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	c := &Client{
		host:      cfg.Host,
		port:      cfg.Port,
		ioTimeout: cfg.IOTimeout,
		conn:      conn,
	}
	c.connected.Store(true)
	return c, nil
}

// Dialer adapts Dial to gpio.Dialer.
func Dialer(connectTimeout, ioTimeout time.Duration) gpio.Dialer {
	return func(ctx context.Context, host string, port int) (gpio.Endpoint, error) {
		c, err := Dial(ctx, Config{
			Host:           host,
			Port:           port,
			ConnectTimeout: connectTimeout,
			IOTimeout:      ioTimeout,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (c *Client) Host() string { return c.host }

func (c *Client) Port() int { return c.port }

// IsConnected reports whether the socket is still usable.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Read returns the level of pin.
func (c *Client) Read(ctx context.Context, pin int) (gpio.Level, error) {
	res, err := c.pinCommand(ctx, cmdRead, pin, 0)
	if err != nil {
		return gpio.Low, err
	}
	return res != 0, nil
}

// Write sets pin to level.
func (c *Client) Write(ctx context.Context, pin int, level gpio.Level) error {
	_, err := c.pinCommand(ctx, cmdWrite, pin, uint32(level.Int()))
	return err
}

// SetMode sets the direction of pin.
func (c *Client) SetMode(ctx context.Context, pin int, mode gpio.Mode) error {
	_, err := c.pinCommand(ctx, cmdModes, pin, uint32(mode))
	return err
}

// Mode returns the current mode of pin as reported by the daemon.
func (c *Client) Mode(ctx context.Context, pin int) (gpio.Mode, error) {
	res, err := c.pinCommand(ctx, cmdModeg, pin, 0)
	if err != nil {
		return gpio.Input, err
	}
	return gpio.Mode(res), nil
}

// SetPull sets the internal pull resistor of pin.
func (c *Client) SetPull(ctx context.Context, pin int, pull gpio.Pull) error {
	_, err := c.pinCommand(ctx, cmdPud, pin, uint32(pull))
	return err
}

// Tick returns the daemon's microsecond tick counter.
func (c *Client) Tick(ctx context.Context) (uint32, error) {
	res, err := c.command(ctx, cmdTick, 0, 0)
	return uint32(res), err
}

// HardwareRevision returns the board revision reported by the daemon.
func (c *Client) HardwareRevision(ctx context.Context) (uint32, error) {
	res, err := c.command(ctx, cmdHwver, 0, 0)
	return uint32(res), err
}

// Close closes the socket. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected.Store(false)
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) String() string {
	return gpio.Describe(c)
}

func (c *Client) pinCommand(ctx context.Context, cmd uint32, pin int, p2 uint32) (int32, error) {
	if pin < 0 || pin > gpio.MaxPin {
		return 0, &Error{Cmd: cmd, Code: ErrBadGPIO}
	}
	return c.command(ctx, cmd, uint32(pin), p2)
}

// command performs one round trip.
func (c *Client) command(ctx context.Context, cmd, p1, p2 uint32) (int32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.connected.Load() {
		return 0, gpio.ErrNotConnected
	}

	deadline := time.Now().Add(c.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return 0, c.fail(fmt.Errorf("pigpio: set deadline: %w", err))
	}

	if _, err := c.conn.Write(encodeCommand(cmd, p1, p2)); err != nil {
		return 0, c.fail(fmt.Errorf("pigpio: send %s: %w", commandName(cmd), err))
	}

	reply := make([]byte, frameLen)
	if _, err := io.ReadFull(c.conn, reply); err != nil {
		return 0, c.fail(fmt.Errorf("pigpio: receive %s: %w", commandName(cmd), err))
	}

	res, err := decodeReply(reply, cmd)
	if err != nil {
		var daemonErr *Error
		if errors.As(err, &daemonErr) {
			// The session is still in sync.
			return res, err
		}
		return 0, c.fail(err)
	}
	return res, nil
}

// fail drops the socket after a transport error. Caller must hold c.mu.
func (c *Client) fail(err error) error {
	c.connected.Store(false)
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	return err
}
