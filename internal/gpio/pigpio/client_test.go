package pigpio

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sweeney/raspitherm/internal/gpio"
)

// fakeDaemon speaks the pigpiod command protocol on a loopback listener.
type fakeDaemon struct {
	t  *testing.T
	ln net.Listener

	mu     sync.Mutex
	levels map[uint32]uint32
	modes  map[uint32]uint32
	pulls  map[uint32]uint32
	// hangup, if set, closes the connection instead of replying.
	hangup bool
	// fixed, if set, is returned as the result of every command.
	fixed *int32
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	d := &fakeDaemon{
		t:      t,
		ln:     ln,
		levels: make(map[uint32]uint32),
		modes:  make(map[uint32]uint32),
		pulls:  make(map[uint32]uint32),
	}
	t.Cleanup(func() { _ = ln.Close() })

	go d.serve()
	return d
}

func (d *fakeDaemon) port() int {
	return d.ln.Addr().(*net.TCPAddr).Port
}

func (d *fakeDaemon) serve() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		go d.handle(conn)
	}
}

func (d *fakeDaemon) handle(conn net.Conn) {
	defer conn.Close()

	req := make([]byte, frameLen)
	for {
		if _, err := io.ReadFull(conn, req); err != nil {
			return
		}
		cmd := binary.LittleEndian.Uint32(req[0:4])
		p1 := binary.LittleEndian.Uint32(req[4:8])
		p2 := binary.LittleEndian.Uint32(req[8:12])

		d.mu.Lock()
		if d.hangup {
			d.mu.Unlock()
			return
		}
		var res int32
		switch cmd {
		case cmdRead:
			res = int32(d.levels[p1])
		case cmdWrite:
			d.levels[p1] = p2
		case cmdModes:
			d.modes[p1] = p2
		case cmdModeg:
			res = int32(d.modes[p1])
		case cmdPud:
			d.pulls[p1] = p2
		case cmdHwver:
			res = 0xa02082
		case cmdTick:
			res = 1234
		default:
			res = ErrUnknownCmd
		}
		if d.fixed != nil {
			res = *d.fixed
		}
		d.mu.Unlock()

		reply := make([]byte, frameLen)
		copy(reply, req[:12])
		binary.LittleEndian.PutUint32(reply[12:16], uint32(res))
		if _, err := conn.Write(reply); err != nil {
			return
		}
	}
}

func dialFake(t *testing.T, d *fakeDaemon) *Client {
	t.Helper()

	c, err := Dial(context.Background(), Config{
		Host:           "127.0.0.1",
		Port:           d.port(),
		ConnectTimeout: time.Second,
		IOTimeout:      time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientReadWrite(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := dialFake(t, d)
	ctx := context.Background()

	require.True(t, c.IsConnected())
	require.Equal(t, "127.0.0.1", c.Host())
	require.Equal(t, d.port(), c.Port())

	require.NoError(t, c.Write(ctx, 5, gpio.High))
	v, err := c.Read(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, gpio.High, v)

	require.NoError(t, c.Write(ctx, 5, gpio.Low))
	v, err = c.Read(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, gpio.Low, v)
}

func TestClientModeAndPull(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := dialFake(t, d)
	ctx := context.Background()

	require.NoError(t, c.SetMode(ctx, 26, gpio.Output))
	require.NoError(t, c.SetPull(ctx, 22, gpio.PullOff))

	mode, err := c.Mode(ctx, 26)
	require.NoError(t, err)
	require.Equal(t, gpio.Output, mode)

	d.mu.Lock()
	require.Equal(t, uint32(gpio.PullOff), d.pulls[22])
	d.mu.Unlock()

	rev, err := c.HardwareRevision(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(0xa02082), rev)

	tick, err := c.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(1234), tick)
}

func TestClientDaemonErrorKeepsSession(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := dialFake(t, d)

	code := ErrBadGPIO
	d.mu.Lock()
	d.fixed = &code
	d.mu.Unlock()

	_, err := c.Read(context.Background(), 5)

	var daemonErr *Error
	require.ErrorAs(t, err, &daemonErr)
	require.Equal(t, ErrBadGPIO, daemonErr.Code)
	require.Contains(t, err.Error(), "PI_BAD_GPIO")
	require.True(t, c.IsConnected())
}

func TestClientRejectsOutOfRangePin(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := dialFake(t, d)

	err := c.Write(context.Background(), gpio.MaxPin+1, gpio.High)

	var daemonErr *Error
	require.ErrorAs(t, err, &daemonErr)
	require.True(t, c.IsConnected())
}

func TestClientTransportErrorDisconnects(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := dialFake(t, d)

	d.mu.Lock()
	d.hangup = true
	d.mu.Unlock()

	_, err := c.Read(context.Background(), 5)
	require.Error(t, err)
	require.False(t, c.IsConnected())

	_, err = c.Read(context.Background(), 5)
	require.ErrorIs(t, err, gpio.ErrNotConnected)
}

func TestClientCloseIdempotent(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := dialFake(t, d)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.False(t, c.IsConnected())

	err := c.Write(context.Background(), 5, gpio.High)
	require.ErrorIs(t, err, gpio.ErrNotConnected)
}

func TestClientCanceledContext(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	c := dialFake(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Read(ctx, 5)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, c.IsConnected())
}

func TestDialRefused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), Config{Host: "127.0.0.1", Port: port, ConnectTimeout: time.Second})
	require.Error(t, err)
}

func TestDialRequiresHost(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), Config{})
	require.Error(t, err)
}

func TestDialerAdapter(t *testing.T) {
	t.Parallel()

	d := newFakeDaemon(t)
	dial := Dialer(time.Second, time.Second)

	ep, err := dial(context.Background(), "127.0.0.1", d.port())
	require.NoError(t, err)
	defer ep.Close()
	require.True(t, ep.IsConnected())

	_, err = dial(context.Background(), "", d.port())
	require.Error(t, err)
}

func TestDecodeReply(t *testing.T) {
	t.Parallel()

	frame := encodeCommand(cmdRead, 5, 0)
	binary.LittleEndian.PutUint32(frame[12:16], 1)
	res, err := decodeReply(frame, cmdRead)
	require.NoError(t, err)
	require.Equal(t, int32(1), res)

	_, err = decodeReply(frame[:8], cmdRead)
	require.True(t, errors.Is(err, errShortReply))

	_, err = decodeReply(frame, cmdWrite)
	require.ErrorContains(t, err, "reply for READ while waiting for WRITE")

	var unknown int32 = -999
	binary.LittleEndian.PutUint32(frame[12:16], uint32(unknown))
	_, err = decodeReply(frame, cmdRead)
	require.ErrorContains(t, err, "unknown error")
}
