package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-rflink/internal/rflink"
)

// Config is the root configuration structure for the RFLink bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Serial   SerialConfig   `yaml:"serial"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Devices  []DeviceConfig `yaml:"devices"`
}

// BridgeConfig contains bridge-level settings.
type BridgeConfig struct {
	// Name is a human-readable bridge name.
	Name string `yaml:"name"`

	// HealthInterval is how often health status is published, in seconds.
	HealthInterval int `yaml:"health_interval"`
}

// SerialConfig contains serial port settings for the RFLink gateway.
type SerialConfig struct {
	// Device is the serial port path (e.g., "/dev/ttyUSB0").
	Device string `yaml:"device"`

	// BaudRate is the line speed. Default: 57600 (RFLink firmware default).
	BaudRate int `yaml:"baud_rate"`

	// ReconnectInterval is the initial reconnect delay, in seconds.
	ReconnectInterval int `yaml:"reconnect_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DeviceConfig describes one RF device managed by this bridge.
type DeviceConfig struct {
	// ID is the normalised device identity: lower-cased protocol name,
	// unit ID and optional sub-address joined with "-".
	// Example: "newkaku-00004d-1"
	ID string `yaml:"id"`

	// Name is a human-readable device name.
	Name string `yaml:"name"`

	// Type is the device class: switch, dimmer, cover, sensor, energy.
	Type string `yaml:"type"`

	// Repeats is how many times each command is transmitted (1-20).
	// RF is fire-and-forget; repeats raise delivery odds on a noisy band.
	Repeats int `yaml:"repeats"`

	// RepeatDelayMs is the pause before each repeat after the first, in
	// milliseconds. Default: 50.
	RepeatDelayMs int `yaml:"repeat_delay_ms"`

	// OnSendFailure is the repeat-loop policy when a transmission fails:
	// "continue" (default) or "abort".
	OnSendFailure string `yaml:"on_send_failure"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RFLINK_BRIDGE_SECTION_KEY
// For example: RFLINK_BRIDGE_SERIAL_DEVICE, RFLINK_BRIDGE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Name:           "RFLink Bridge",
			HealthInterval: 30,
		},
		Serial: SerialConfig{
			Device:            "/dev/ttyUSB0",
			BaudRate:          57600,
			ReconnectInterval: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-rflink",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RFLINK_BRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Serial
	if v := os.Getenv("RFLINK_BRIDGE_SERIAL_DEVICE"); v != "" {
		cfg.Serial.Device = v
	}
	if v := os.Getenv("RFLINK_BRIDGE_SERIAL_BAUD_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Serial.BaudRate = n
		}
	}

	// MQTT
	if v := os.Getenv("RFLINK_BRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RFLINK_BRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RFLINK_BRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("RFLINK_BRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Serial validation
	if c.Serial.Device == "" {
		errs = append(errs, "serial.device is required")
	}
	if c.Serial.BaudRate < 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set RFLINK_BRIDGE_INFLUXDB_TOKEN)")
		}
	}

	// Device validation. A bad device entry is reported here so the
	// operator sees it at startup; the session layer also guards against
	// bad entries independently.
	seen := make(map[string]bool, len(c.Devices))
	for i, dev := range c.Devices {
		prefix := fmt.Sprintf("devices[%d]", i)

		if dev.ID == "" {
			errs = append(errs, prefix+".id is required")
		} else {
			if _, err := rflink.ParseDeviceAddress(dev.ID); err != nil {
				errs = append(errs, fmt.Sprintf("%s.id: %v", prefix, err))
			}
			if seen[dev.ID] {
				errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", prefix, dev.ID))
			}
			seen[dev.ID] = true
		}

		if !validDeviceClass(dev.Type) {
			errs = append(errs, fmt.Sprintf("%s.type %q must be one of: %s",
				prefix, dev.Type, strings.Join(rflink.RegisteredClasses(), ", ")))
		}

		switch dev.OnSendFailure {
		case "", rflink.FailureContinue, rflink.FailureAbort:
		default:
			errs = append(errs, fmt.Sprintf("%s.on_send_failure must be %q or %q",
				prefix, rflink.FailureContinue, rflink.FailureAbort))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validDeviceClass(class string) bool {
	for _, c := range rflink.RegisteredClasses() {
		if c == class {
			return true
		}
	}
	return false
}

// GetHealthInterval returns the health publishing interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetSerialReconnectInterval returns the serial reconnect delay as a Duration.
func (c *Config) GetSerialReconnectInterval() time.Duration {
	return time.Duration(c.Serial.ReconnectInterval) * time.Second
}

// SessionConfigs converts the device list to per-device session settings.
func (c *Config) SessionConfigs() []rflink.SessionConfig {
	out := make([]rflink.SessionConfig, 0, len(c.Devices))
	for _, dev := range c.Devices {
		out = append(out, rflink.SessionConfig{
			DeviceID:      dev.ID,
			Class:         dev.Type,
			Repeats:       dev.Repeats,
			RepeatDelay:   time.Duration(dev.RepeatDelayMs) * time.Millisecond,
			OnSendFailure: dev.OnSendFailure,
		})
	}
	return out
}
