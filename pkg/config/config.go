// Package config loads the device configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sapi-coap/sapi-go/pkg/examples"
	"github.com/sapi-coap/sapi-go/pkg/interaction"
	"github.com/sapi-coap/sapi-go/pkg/log"
	"github.com/sapi-coap/sapi-go/pkg/sensor"
	"github.com/sapi-coap/sapi-go/pkg/transport"
)

// Config is the device configuration.
type Config struct {
	// Name is the device name, used as the mDNS instance name.
	Name string `yaml:"name"`

	Sensors   []SensorConfig  `yaml:"sensors"`
	UDP       UDPConfig       `yaml:"udp"`
	Serial    SerialConfig    `yaml:"serial"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Log       LogConfig       `yaml:"log"`
	Legacy    LegacyConfig    `yaml:"legacy"`
}

// SensorConfig registers one sensor.
type SensorConfig struct {
	// Type is the device type and URI leaf.
	Type string `yaml:"type"`

	// Driver is the simulated driver kind (temp, humidity, light).
	// Defaults to Type.
	Driver string `yaml:"driver"`

	// Frequency is the observe polling period in seconds (0 = not polled).
	Frequency uint32 `yaml:"frequency"`

	// Config is written to the driver after registration ("key=value;...").
	Config string `yaml:"config"`
}

// DriverKind returns Driver, or Type if Driver is empty.
func (s SensorConfig) DriverKind() string {
	if s.Driver != "" {
		return s.Driver
	}
	return s.Type
}

// UDPConfig configures the CoAP UDP server.
type UDPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// SerialConfig configures the link to the radio module.
type SerialConfig struct {
	// Port is the serial device. Empty disables the link.
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// DiscoveryConfig configures mDNS advertisement.
type DiscoveryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interface string        `yaml:"interface"`
	TTL       time.Duration `yaml:"ttl"`
}

// LogConfig configures operational and protocol logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// ProtocolFile enables the CBOR protocol capture.
	ProtocolFile string `yaml:"protocol_file"`

	// Rotation of the protocol capture; MaxSizeMB 0 disables rotation.
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// LegacyConfig configures the /arduino/<name> bridge.
type LegacyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Base    string `yaml:"base"`
}

// Errors.
var (
	ErrInvalid = errors.New("invalid configuration")
)

// LoadError reports a configuration file that could not be used.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Cause }

// Default returns the configuration used without a file: one simulated
// temperature sensor on UDP port 5683.
func Default() *Config {
	return &Config{
		Name: "sapi-device",
		Sensors: []SensorConfig{
			{Type: "temp", Driver: "temp", Frequency: 30},
		},
		UDP: UDPConfig{Enabled: true, Address: transport.DefaultUDPAddress},
		Serial: SerialConfig{
			BaudRate:    transport.DefaultBaudRate,
			ReadTimeout: transport.DefaultReadTimeout,
		},
		Discovery: DiscoveryConfig{Enabled: true},
		Log:       LogConfig{Level: "info", MaxBackups: 3, MaxAgeDays: 7},
		Legacy:    LegacyConfig{Enabled: true, Base: interaction.LegacyBase},
	}
}

// Parse decodes YAML on top of Default. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	cfg.Sensors = nil

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Message: "validation failed", Cause: err}
	}
	return cfg, nil
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Sensors) > sensor.MaxSensors {
		return fmt.Errorf("%w: %d sensors, at most %d", ErrInvalid, len(c.Sensors), sensor.MaxSensors)
	}

	seen := make(map[string]bool, len(c.Sensors))
	for i, s := range c.Sensors {
		if err := sensor.ValidateDeviceType(s.Type); err != nil {
			return fmt.Errorf("%w: sensors[%d]: %w", ErrInvalid, i, err)
		}
		if seen[s.Type] {
			return fmt.Errorf("%w: sensors[%d]: duplicate type %q", ErrInvalid, i, s.Type)
		}
		seen[s.Type] = true

		if _, err := examples.New(s.DriverKind(), 0); err != nil {
			return fmt.Errorf("%w: sensors[%d]: %w", ErrInvalid, i, err)
		}
		if s.Config != "" {
			if _, err := examples.ParseConfig(s.Config); err != nil {
				return fmt.Errorf("%w: sensors[%d]: %w", ErrInvalid, i, err)
			}
		}
	}

	if c.Serial.BaudRate < 0 || c.Serial.ReadTimeout < 0 {
		return fmt.Errorf("%w: serial settings must not be negative", ErrInvalid)
	}
	if c.Discovery.TTL < 0 {
		return fmt.Errorf("%w: discovery ttl must not be negative", ErrInvalid)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("%w: log rotation settings must not be negative", ErrInvalid)
	}
	if c.Legacy.Enabled && c.Legacy.Base == "" {
		return fmt.Errorf("%w: legacy bridge needs a base segment", ErrInvalid)
	}
	if !c.UDP.Enabled && c.Serial.Port == "" {
		return fmt.Errorf("%w: no transport enabled", ErrInvalid)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", l.Level, err)
	}
	return level, nil
}

// ProtocolLogger opens the protocol capture, or returns nil if none is
// configured.
func (l LogConfig) ProtocolLogger() (*log.FileLogger, error) {
	if l.ProtocolFile == "" {
		return nil, nil
	}
	if l.MaxSizeMB > 0 {
		return log.NewRotatingFileLogger(log.RotateConfig{
			Path:       l.ProtocolFile,
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAgeDays: l.MaxAgeDays,
			Compress:   l.Compress,
		}), nil
	}
	return log.NewFileLogger(l.ProtocolFile)
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
