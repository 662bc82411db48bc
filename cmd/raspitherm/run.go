package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/raspitherm/internal/config"
	"github.com/sweeney/raspitherm/internal/gpio"
	"github.com/sweeney/raspitherm/internal/gpio/pigpio"
	"github.com/sweeney/raspitherm/internal/heating"
	"github.com/sweeney/raspitherm/internal/logger"
	"github.com/sweeney/raspitherm/internal/logic"
	"github.com/sweeney/raspitherm/internal/mqtt"
	"github.com/sweeney/raspitherm/internal/singleton"
	"github.com/sweeney/raspitherm/internal/status"
	"github.com/sweeney/raspitherm/internal/web"
)

const shutdownTimeout = 10 * time.Second

// deps are the collaborators of serve that tests replace.
type deps struct {
	dialer    gpio.Dialer
	publisher mqtt.Publisher // nil when MQTT is disabled
	listener  net.Listener
	now       func() time.Time
}

func run(ctx context.Context, opts options) error {
	cfg, log, err := setup(opts)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if !opts.allowMultiple {
		pids, err := singleton.Running()
		if err != nil {
			log.Warnw("cannot list processes, skipping single instance check", "error", err)
		} else if len(pids) > 0 {
			log.Warnw("another instance is already running, exiting", "pids", pids)
			return nil
		}
	}

	addr := opts.listen
	if addr == "" {
		addr = cfg.ListenAddress()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	var publisher mqtt.Publisher
	if cfg.MQTTBroker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker: cfg.MQTTBroker,
			Logger: log.Named("mqtt"),
		})
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher = p
	}

	ctx = logger.ToContext(ctx, log)
	return serve(ctx, cfg, deps{
		dialer:    dialerFor(cfg),
		publisher: publisher,
		listener:  ln,
		now:       time.Now,
	})
}

// setup loads the configuration and builds the root logger. The --log-level
// flag wins over log_level.
func setup(opts options) (*config.Config, *zap.SugaredLogger, error) {
	cfg, created, err := config.LoadOrCreate(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	levelName := cfg.LogLevel
	if opts.logLevel != "" {
		levelName = opts.logLevel
	}
	level, ok := logger.ParseLogLevel(levelName)
	log := logger.New(level)
	if !ok {
		log.Warnw("unknown log level, using info", "level", levelName)
	}
	if created {
		log.Warnw("configuration file not found, wrote defaults", "path", opts.configPath)
	}
	return cfg, log, nil
}

// withController runs fn against a controller built from the configuration
// and tears it down afterwards. Used by the one-shot subcommands.
// SIGINT and SIGTERM cancel the context passed to fn instead of killing the
// process, so a pulse in progress still ends low.
func withController(ctx context.Context, opts options, fn func(context.Context, *heating.Controller) error) error {
	ctx, cancel := notifyContext(ctx)
	defer cancel(nil)

	cfg, log, err := setup(opts)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctrl := newController(cfg, dialerFor(cfg), time.Now, log)
	defer ctrl.Teardown()

	return fn(logger.ToContext(ctx, log), ctrl)
}

func dialerFor(cfg *config.Config) gpio.Dialer {
	if cfg.Driver == config.DriverCdev {
		return gpio.ChipDialer(cfg.Chip)
	}
	return pigpio.Dialer(cfg.ConnectTimeout, cfg.IOTimeout)
}

func pinoutOf(cfg *config.Config) heating.Pinout {
	return heating.Pinout{
		CH: heating.Assignment{Toggle: cfg.CHTogglePin, Status: cfg.CHStatusPin},
		HW: heating.Assignment{Toggle: cfg.HWTogglePin, Status: cfg.HWStatusPin},
	}
}

func newController(cfg *config.Config, dial gpio.Dialer, now func() time.Time, log *zap.SugaredLogger) *heating.Controller {
	return heating.New(heating.Options{
		Host:           cfg.PiHost,
		Port:           cfg.PigPort,
		Pinout:         pinoutOf(cfg),
		PulseWidth:     cfg.PulseDuration(),
		RelayDelay:     cfg.RelayDelay(),
		ConnectTimeout: cfg.ConnectTimeout,
		Dialer:         dial,
		Logger:         log.Named("heating"),
		Now:            now,
	})
}

func statusConfig(cfg *config.Config, addr string) status.Config {
	return status.Config{
		PiHost:  cfg.PiHost,
		PigPort: cfg.PigPort,
		Driver:  cfg.Driver,
		Pins: status.Pins{
			HWToggle: cfg.HWTogglePin,
			CHToggle: cfg.CHTogglePin,
			HWStatus: cfg.HWStatusPin,
			CHStatus: cfg.CHStatusPin,
		},
		PulseMs:      cfg.PulseDuration().Milliseconds(),
		RelayDelayMs: cfg.RelayDelay().Milliseconds(),
		HeartbeatMs:  cfg.Heartbeat.Milliseconds(),
		Broker:       cfg.MQTTBroker,
		HTTPAddr:     addr,
	}
}

func daemonOf(h heating.Health) status.Daemon {
	return status.Daemon{
		Connected:   h.Connected,
		Endpoint:    h.Endpoint,
		LastError:   h.LastError,
		LastErrorAt: h.LastErrorAt,
		PulsesCH:    h.Pulses[heating.CH],
		PulsesHW:    h.Pulses[heating.HW],
	}
}

// serve runs the listener until ctx is done or the HTTP server fails, then
// stops accepting requests, tears down the daemon session and announces the
// shutdown.
func serve(ctx context.Context, cfg *config.Config, d deps) error {
	log := logger.FromContext(ctx)
	if d.now == nil {
		d.now = time.Now
	}

	ctrl := newController(cfg, d.dialer, d.now, log)

	tracker := status.NewTracker(d.now(), statusConfig(cfg, d.listener.Addr().String()))
	tracker.WatchDaemon(func() status.Daemon { return daemonOf(ctrl.Health()) })
	if cs, ok := d.publisher.(mqtt.ConnectionStatus); ok {
		tracker.WatchMQTT(cs.IsConnected)
	}
	if info := readNetworkInfo(); info != nil {
		tracker.SetNetwork(info)
	}

	sink := newEventSink(d.publisher, tracker, d.now, log.Named("events"))
	ctrl.OnChange(sink.handle)
	sink.system(mqtt.EventStartup, "")

	srv := web.New(d.listener.Addr().String(), ctrl, tracker, cfg.StaticDir, log.Named("web"))
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(d.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	log.Infow("listening", "addr", d.listener.Addr().String(), "daemon", fmt.Sprintf("%s:%d", cfg.PiHost, cfg.PigPort),
		"driver", cfg.Driver, "heartbeat", cfg.Heartbeat)

	var tick <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	var result error
	reason := ""
loop:
	for {
		select {
		case <-ctx.Done():
			reason = shutdownReason(ctx)
			log.Infow("shutting down", "reason", reason)
			break loop
		case err := <-serveErr:
			result = fmt.Errorf("http server: %w", err)
			reason = "HTTP_ERROR"
			log.Errorw("http server failed", "error", err)
			break loop
		case <-tick:
			if info := readNetworkInfo(); info != nil {
				tracker.SetNetwork(info)
			}
			sink.heartbeat(d.now(), cfg.Heartbeat)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown incomplete", "error", err)
	}
	ctrl.Teardown()
	sink.system(mqtt.EventShutdown, reason)

	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			log.Warnw("mqtt close failed", "error", err)
		}
	}
	return result
}

// eventSink turns controller changes into channel events. Publishing never
// affects actuation; failures are only logged.
type eventSink struct {
	publisher mqtt.Publisher
	tracker   *status.Tracker
	now       func() time.Time
	log       *zap.SugaredLogger

	mu     sync.Mutex
	ledger *logic.Ledger
}

func newEventSink(publisher mqtt.Publisher, tracker *status.Tracker, now func() time.Time, log *zap.SugaredLogger) *eventSink {
	return &eventSink{
		publisher: publisher,
		tracker:   tracker,
		now:       now,
		log:       log,
		ledger:    logic.NewLedger(now()),
	}
}

func (s *eventSink) handle(c heating.Change) {
	s.mu.Lock()
	event := s.ledger.Process(logic.Transition{
		Time:    c.At,
		Channel: string(c.Channel),
		Before:  c.Before,
		After:   c.After,
		CH:      c.Status.CH,
		HW:      c.Status.HW,
	})
	counts, last := s.ledger.Counts(), s.ledger.LastEvent()
	s.mu.Unlock()

	if event == nil {
		return
	}
	s.tracker.RecordEvents(counts, last)
	s.log.Infow("event", "type", event.Type, "ch", event.CHState, "hw", event.HWState)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(*event); err != nil {
		s.log.Warnw("publish failed", "type", event.Type, "error", err)
	}
}

func (s *eventSink) heartbeat(now time.Time, interval time.Duration) {
	s.mu.Lock()
	hb := s.ledger.CheckHeartbeat(now, interval)
	s.mu.Unlock()
	if hb == nil {
		return
	}

	s.log.Infow("heartbeat", "uptime", hb.Uptime, "ch_on", hb.Counts.CHOn, "ch_off", hb.Counts.CHOff,
		"hw_on", hb.Counts.HWOn, "hw_off", hb.Counts.HWOff)
	if s.publisher == nil {
		return
	}
	snap := s.tracker.Snapshot()
	err := s.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  hb.Timestamp,
		Event:      mqtt.EventHeartbeat,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventHeartbeat, ""),
	})
	if err != nil {
		s.log.Warnw("heartbeat publish failed", "error", err)
	}
}

// system publishes a retained lifecycle event carrying a status snapshot.
func (s *eventSink) system(event, reason string) {
	if s.publisher == nil {
		return
	}
	snap := s.tracker.Snapshot()
	err := s.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  s.now(),
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		s.log.Warnw("system event publish failed", "event", event, "error", err)
		return
	}
	s.log.Infow("published system event", "event", event, "reason", reason)
}

// Network facts written by the host helper (/run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
