package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/raspitherm/internal/config"
	"github.com/sweeney/raspitherm/internal/gpio"
	"github.com/sweeney/raspitherm/internal/heating"
	"github.com/sweeney/raspitherm/internal/logger"
	"github.com/sweeney/raspitherm/internal/logic"
	"github.com/sweeney/raspitherm/internal/mqtt"
	"github.com/sweeney/raspitherm/internal/status"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.PiHost = "boiler"
	cfg.PulseDurationMs = 1
	cfg.RelayDelayMs = 1
	cfg.Heartbeat = 0
	cfg.StaticDir = t.TempDir()
	return cfg
}

func relayDialer(cfg *config.Config) *gpio.FakeDialer {
	return &gpio.FakeDialer{Setup: func(ep *gpio.FakeEndpoint) {
		ep.Relay(cfg.CHTogglePin, cfg.CHStatusPin)
		ep.Relay(cfg.HWTogglePin, cfg.HWStatusPin)
	}}
}

type serveFixture struct {
	cfg       *config.Config
	dialer    *gpio.FakeDialer
	publisher *mqtt.FakePublisher
	baseURL   string
	cancel    context.CancelFunc
	exited    chan struct{}
	err       error
}

func startServe(t *testing.T, publisher *mqtt.FakePublisher) *serveFixture {
	t.Helper()

	cfg := testConfig(t)
	dialer := relayDialer(cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(logger.ToContext(context.Background(), zap.NewNop().Sugar()))
	d := deps{dialer: dialer.Dial, listener: ln, now: time.Now}
	if publisher != nil {
		d.publisher = publisher
	}

	f := &serveFixture{
		cfg:       cfg,
		dialer:    dialer,
		publisher: publisher,
		baseURL:   "http://" + ln.Addr().String(),
		cancel:    cancel,
		exited:    make(chan struct{}),
	}
	go func() {
		f.err = serve(ctx, cfg, d)
		close(f.exited)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-f.exited:
		case <-time.After(5 * time.Second):
		}
	})
	return f
}

func (f *serveFixture) stop(t *testing.T) error {
	t.Helper()

	f.cancel()
	select {
	case <-f.exited:
		return f.err
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
		return nil
	}
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()

	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestServeSwitchAndPublish(t *testing.T) {
	t.Parallel()

	pub := mqtt.NewFakePublisher()
	f := startServe(t, pub)

	got := getJSON(t, f.baseURL+"/?hw=on")
	assert.Equal(t, "on", got["hw"])
	assert.Equal(t, "off", got["ch"])

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, logic.EventHWOn, events[0].Type)
	assert.Equal(t, logic.StateOn, events[0].HWState)
	assert.Equal(t, logic.StateOff, events[0].CHState)

	// Already on: no pulse, no event.
	got = getJSON(t, f.baseURL+"/?hw=on")
	assert.Equal(t, "on", got["hw"])
	assert.Len(t, pub.Events(), 1)

	sys := getJSON(t, f.baseURL+"/index.json")
	inner, ok := sys["status"].(map[string]any)
	require.True(t, ok)
	assert.NotNil(t, inner["event_counts"])
}

func TestServeShutdownOrder(t *testing.T) {
	t.Parallel()

	pub := mqtt.NewFakePublisher()
	f := startServe(t, pub)

	getJSON(t, f.baseURL+"/?status=1")
	ep := f.dialer.Last()
	require.NotNil(t, ep)

	require.NoError(t, f.stop(t))

	sys := pub.SystemEvents()
	require.Len(t, sys, 2)
	assert.Equal(t, mqtt.EventStartup, sys[0].Event)
	assert.True(t, sys[0].Retained)
	assert.Equal(t, mqtt.EventShutdown, sys[1].Event)
	assert.Equal(t, "CANCELED", sys[1].Reason)
	assert.True(t, sys[1].Retained)

	assert.True(t, pub.Closed())
	assert.False(t, ep.IsConnected(), "daemon session released on shutdown")

	_, err := http.Get(f.baseURL + "/") //nolint:noctx // listener is closed
	assert.Error(t, err)
}

func TestServeWithoutBroker(t *testing.T) {
	t.Parallel()

	f := startServe(t, nil)

	got := getJSON(t, f.baseURL+"/?ch=toggle")
	assert.Equal(t, "on", got["ch"])

	require.NoError(t, f.stop(t))
}

func TestServePublishFailureDoesNotAffectSwitching(t *testing.T) {
	t.Parallel()

	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	f := startServe(t, pub)

	got := getJSON(t, f.baseURL+"/?ch=on")
	assert.Equal(t, "on", got["ch"])

	require.NoError(t, f.stop(t))
}

func newTestSink(pub mqtt.Publisher, start time.Time) *eventSink {
	tracker := status.NewTracker(start, status.Config{})
	return newEventSink(pub, tracker, func() time.Time { return start }, zap.NewNop().Sugar())
}

func TestEventSinkIgnoresUnchanged(t *testing.T) {
	t.Parallel()

	pub := mqtt.NewFakePublisher()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sink := newTestSink(pub, start)

	sink.handle(heating.Change{Channel: heating.CH, Before: true, After: true, At: start})
	assert.Empty(t, pub.Events())

	sink.handle(heating.Change{
		Channel: heating.CH,
		Before:  true,
		After:   false,
		At:      start.Add(time.Minute),
		Status:  heating.Status{CH: false, HW: true},
	})
	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, logic.EventCHOff, events[0].Type)
	assert.Equal(t, logic.StateOn, events[0].HWState)

	snap := sink.tracker.Snapshot()
	assert.Equal(t, 1, snap.Counts.CHOff)
	require.NotNil(t, snap.LastEvent)
	assert.Equal(t, logic.EventCHOff, snap.LastEvent.Type)
}

func TestEventSinkHeartbeat(t *testing.T) {
	t.Parallel()

	pub := mqtt.NewFakePublisher()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sink := newTestSink(pub, start)

	sink.heartbeat(start.Add(time.Minute), 15*time.Minute)
	assert.Empty(t, pub.SystemEvents())

	sink.heartbeat(start.Add(15*time.Minute), 15*time.Minute)
	sys := pub.SystemEvents()
	require.Len(t, sys, 1)
	assert.Equal(t, mqtt.EventHeartbeat, sys[0].Event)
	assert.False(t, sys[0].Retained)
	assert.Contains(t, string(sys[0].RawPayload), `"HEARTBEAT"`)

	sink.heartbeat(start.Add(16*time.Minute), 0)
	assert.Len(t, pub.SystemEvents(), 1)
}

func TestShutdownReason(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancelCause(context.Background())
	assert.Equal(t, "", shutdownReason(ctx))

	cancel(signalError{sig: syscall.SIGTERM})
	assert.Equal(t, "SIGTERM", shutdownReason(ctx))

	ctx, cancel = context.WithCancelCause(context.Background())
	cancel(signalError{sig: syscall.SIGINT})
	assert.Equal(t, "SIGINT", shutdownReason(ctx))

	ctx, cancel = context.WithCancelCause(context.Background())
	cancel(signalError{sig: syscall.SIGHUP})
	assert.Equal(t, "UNKNOWN", shutdownReason(ctx))

	ctx, stop := context.WithCancel(context.Background())
	stop()
	assert.Equal(t, "CANCELED", shutdownReason(ctx))
}

func TestReadNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	assert.Nil(t, readNetworkInfo())

	t.Setenv(envNetworkStatus, "up")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.50")
	t.Setenv(envNetworkWifiSSID, "home")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, "up", info.Status)
	assert.Equal(t, "wifi", info.Type)
	assert.Equal(t, "192.168.1.50", info.IP)
	assert.Equal(t, "home", info.SSID)
}

func TestConfigMapping(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	p := pinoutOf(cfg)
	assert.Equal(t, heating.Assignment{Toggle: 26, Status: 27}, p.CH)
	assert.Equal(t, heating.Assignment{Toggle: 5, Status: 22}, p.HW)

	sc := statusConfig(cfg, ":9090")
	assert.Equal(t, int64(200), sc.PulseMs)
	assert.Equal(t, int64(15*time.Minute/time.Millisecond), sc.HeartbeatMs)
	assert.Equal(t, status.Pins{HWToggle: 5, CHToggle: 26, HWStatus: 22, CHStatus: 27}, sc.Pins)

	d := daemonOf(heating.Health{Connected: true, Endpoint: "x", Pulses: map[heating.Channel]int{heating.HW: 3}})
	assert.True(t, d.Connected)
	assert.Equal(t, 3, d.PulsesHW)
	assert.Zero(t, d.PulsesCH)

	assert.NotNil(t, dialerFor(cfg))
	cfg.Driver = config.DriverCdev
	assert.NotNil(t, dialerFor(cfg))
}

func TestRootCommand(t *testing.T) {
	t.Parallel()

	root := newRootCommand()
	for _, name := range []string{"config", "log-level"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
	for _, name := range []string{"listen", "allow-multiple"} {
		assert.NotNil(t, root.Flags().Lookup(name), name)
	}
	assert.Equal(t, config.DefaultConfigFilename, root.PersistentFlags().Lookup("config").DefValue)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "raspitherm")
}

func TestSetCommandRejectsUnknownChannel(t *testing.T) {
	t.Parallel()

	root := newRootCommand()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"set", "boiler", "on"})
	require.Error(t, root.Execute())

	root = newRootCommand()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"set", "hw"})
	require.Error(t, root.Execute())
}

func TestSetupWritesDefaultConfig(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/raspitherm.yaml"
	cfg, log, err := setup(options{configPath: path, logLevel: "debug"})
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.Equal(t, "localhost", cfg.PiHost)

	_, _, err = setup(options{configPath: path})
	require.NoError(t, err)
}

func TestOneShotCommandsCatchSignals(t *testing.T) {
	path := t.TempDir() + "/raspitherm.yaml"

	err := withController(context.Background(), options{configPath: path}, func(ctx context.Context, _ *heating.Controller) error {
		require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("signal did not cancel the command context")
		}
		assert.Equal(t, "SIGTERM", shutdownReason(ctx))
		return nil
	})
	require.NoError(t, err)
}
