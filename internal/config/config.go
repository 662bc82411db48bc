package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of the raspitherm listener.
type Config struct {
	// PiHost is the host running pigpiod.
	PiHost string `yaml:"pi_host"`
	// PiPort is the HTTP listen port.
	PiPort int `yaml:"pi_port"`
	// PigPort is the pigpiod port.
	PigPort int `yaml:"pig_port"`

	HWTogglePin int `yaml:"hw_toggle_pin"`
	CHTogglePin int `yaml:"cw_toggle_pin"`
	HWStatusPin int `yaml:"hw_status_pin"`
	CHStatusPin int `yaml:"cw_status_pin"`

	// PulseDurationMs is the width of a relay trigger pulse.
	PulseDurationMs int `yaml:"pulse_duration_ms"`
	// RelayDelayMs is how long the relays take to be thrown. An explicit 0
	// re-reads the status input straight after the pulse; a missing key
	// keeps the default.
	RelayDelayMs int `yaml:"relay_delay_ms"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	IOTimeout      time.Duration `yaml:"io_timeout"`

	// Driver selects the pin backend: "pigpio" or "cdev".
	Driver string `yaml:"driver"`
	// Chip is the character device used by the cdev driver.
	Chip string `yaml:"chip"`

	StaticDir  string `yaml:"static_dir"`
	MQTTBroker string `yaml:"mqtt_broker"`
	// Heartbeat is the interval of MQTT heartbeat events; 0 disables them.
	Heartbeat time.Duration `yaml:"heartbeat_interval"`
	LogLevel  string        `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "raspitherm.yaml"

	// DefaultFilePermissions is the permission used when writing the settings file.
	DefaultFilePermissions = 0o600

	DriverPigpio = "pigpio"
	DriverCdev   = "cdev"
)

const (
	defaultPiHost          = "localhost"
	defaultPiPort          = 9090
	defaultPigPort         = 8888
	defaultHWTogglePin     = 5
	defaultCHTogglePin     = 26
	defaultHWStatusPin     = 22
	defaultCHStatusPin     = 27
	defaultPulseDurationMs = 200
	defaultRelayDelayMs    = 200
	defaultConnectTimeout  = 3 * time.Second
	defaultIOTimeout       = 2 * time.Second
	defaultHeartbeat       = 15 * time.Minute
	defaultChip            = "gpiochip0"
	defaultStaticDir       = "static"
	defaultLogLevel        = "info"

	maxPin = 53
)

var (
	errConfigIsNotSet = errors.New("configuration is not set")
	errHostRequired   = errors.New("pi_host must be provided")
)

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		PiHost:          defaultPiHost,
		PiPort:          defaultPiPort,
		PigPort:         defaultPigPort,
		HWTogglePin:     defaultHWTogglePin,
		CHTogglePin:     defaultCHTogglePin,
		HWStatusPin:     defaultHWStatusPin,
		CHStatusPin:     defaultCHStatusPin,
		PulseDurationMs: defaultPulseDurationMs,
		RelayDelayMs:    defaultRelayDelayMs,
		ConnectTimeout:  defaultConnectTimeout,
		IOTimeout:       defaultIOTimeout,
		Driver:          DriverPigpio,
		Chip:            defaultChip,
		StaticDir:       defaultStaticDir,
		Heartbeat:       defaultHeartbeat,
		LogLevel:        defaultLogLevel,
	}
}

// Load reads configuration from path. Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrCreate loads path, or writes the defaults to it when it does not exist.
// created reports whether the file was written.
func LoadOrCreate(path string) (cfg *Config, created bool, err error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	_, err = os.Stat(filepath.Clean(path))
	switch {
	case err == nil:
		cfg, err = Load(path)
		return cfg, false, err
	case errors.Is(err, os.ErrNotExist):
		cfg = Default()
		if err = Save(path, cfg); err != nil {
			return nil, false, err
		}
		return cfg, true, nil
	default:
		return nil, false, fmt.Errorf("stat settings: %w", err)
	}
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks cfg and fills zero values with defaults, except
// relay_delay_ms where zero is meaningful.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	cfg.PiHost = strings.TrimSpace(cfg.PiHost)
	if cfg.PiHost == "" {
		return errHostRequired
	}

	if err := validatePort("pi_port", cfg.PiPort); err != nil {
		return err
	}
	if err := validatePort("pig_port", cfg.PigPort); err != nil {
		return err
	}

	pins := []struct {
		name string
		pin  int
	}{
		{"hw_toggle_pin", cfg.HWTogglePin},
		{"cw_toggle_pin", cfg.CHTogglePin},
		{"hw_status_pin", cfg.HWStatusPin},
		{"cw_status_pin", cfg.CHStatusPin},
	}
	seen := make(map[int]string, len(pins))
	for _, p := range pins {
		if p.pin < 0 || p.pin > maxPin {
			return fmt.Errorf("invalid %s %d: must be 0..%d", p.name, p.pin, maxPin)
		}
		if other, dup := seen[p.pin]; dup {
			return fmt.Errorf("invalid %s %d: already used by %s", p.name, p.pin, other)
		}
		seen[p.pin] = p.name
	}

	if cfg.PulseDurationMs < 0 {
		return fmt.Errorf("invalid pulse_duration_ms %d", cfg.PulseDurationMs)
	}
	if cfg.PulseDurationMs == 0 {
		cfg.PulseDurationMs = defaultPulseDurationMs
	}
	if cfg.RelayDelayMs < 0 {
		return fmt.Errorf("invalid relay_delay_ms %d", cfg.RelayDelayMs)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = defaultIOTimeout
	}
	if cfg.Heartbeat < 0 {
		return fmt.Errorf("invalid heartbeat_interval %v", cfg.Heartbeat)
	}

	switch cfg.Driver {
	case "":
		cfg.Driver = DriverPigpio
	case DriverPigpio, DriverCdev:
	default:
		return fmt.Errorf("invalid driver %q: must be %q or %q", cfg.Driver, DriverPigpio, DriverCdev)
	}
	if cfg.Chip == "" {
		cfg.Chip = defaultChip
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = defaultStaticDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	return nil
}

// PulseDuration returns the configured pulse width.
func (c *Config) PulseDuration() time.Duration {
	return time.Duration(c.PulseDurationMs) * time.Millisecond
}

// RelayDelay returns the configured relay settle time.
func (c *Config) RelayDelay() time.Duration {
	return time.Duration(c.RelayDelayMs) * time.Millisecond
}

// ListenAddress returns the HTTP listen address for PiPort.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf(":%d", c.PiPort)
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid %s %d: must be 1..65535", name, port)
	}
	return nil
}
