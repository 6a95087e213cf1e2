// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > embedded > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "250ms", "2s", "1m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all supervisor configuration.
type Config struct {
	Printer    PrinterConfig    `yaml:"printer"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Sensors    SensorsConfig    `yaml:"sensors"`
	HTTP       HTTPConfig       `yaml:"http"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PrinterConfig holds the printer websocket endpoint.
type PrinterConfig struct {
	Address           string   `yaml:"address"`
	Port              int      `yaml:"port"`
	Path              string   `yaml:"path"`
	ReconnectInterval Duration `yaml:"reconnect_interval"`
}

// SupervisorConfig holds the pause policy and detector tuning. Everything
// except PollInterval can be changed at runtime through the settings API.
type SupervisorConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Timeout           Duration `yaml:"timeout"`
	FirstLayerTimeout Duration `yaml:"first_layer_timeout"`
	StartPrintTimeout Duration `yaml:"start_print_timeout"`
	PauseOnRunout     bool     `yaml:"pause_on_runout"`
	PollInterval      Duration `yaml:"poll_interval"`
}

// Sensor input sources.
const (
	SensorSourceSerial = "serial"
	SensorSourceGPIO   = "gpio"
	SensorSourceNone   = "none"
)

// SensorsConfig selects where the movement and runout levels come from.
type SensorsConfig struct {
	Source string       `yaml:"source"`
	Serial SerialConfig `yaml:"serial"`
	GPIO   GPIOConfig   `yaml:"gpio"`
}

// SerialConfig describes a microcontroller bridge streaming sensor levels.
type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// GPIOConfig points at sysfs style value files.
type GPIOConfig struct {
	MovementPath string `yaml:"movement_path"`
	RunoutPath   string `yaml:"runout_path"`
}

// HTTPConfig holds the status API listener.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// MQTTConfig holds telemetry publishing settings.
type MQTTConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Broker          string   `yaml:"broker"`
	ClientID        string   `yaml:"client_id"`
	Topic           string   `yaml:"topic"`
	PublishInterval Duration `yaml:"publish_interval"`
	BatchInterval   Duration `yaml:"batch_interval"`
	SpoolDir        string   `yaml:"spool_dir"`
	SpoolMaxMB      int      `yaml:"spool_max_mb"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	BufferLines int    `yaml:"buffer_lines"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Printer: PrinterConfig{
			Port:              3030,
			Path:              "/websocket",
			ReconnectInterval: Duration{3 * time.Second},
		},
		Supervisor: SupervisorConfig{
			Enabled:           true,
			Timeout:           Duration{2 * time.Second},
			FirstLayerTimeout: Duration{4 * time.Second},
			StartPrintTimeout: Duration{10 * time.Second},
			PauseOnRunout:     true,
			PollInterval:      Duration{100 * time.Millisecond},
		},
		Sensors: SensorsConfig{
			Source: SensorSourceNone,
			Serial: SerialConfig{
				Baud: 115200,
			},
		},
		HTTP: HTTPConfig{
			Listen: ":8080",
		},
		MQTT: MQTTConfig{
			Enabled:         false,
			ClientID:        "cc-sfs",
			Topic:           "cc-sfs/status",
			PublishInterval: Duration{5 * time.Second},
			BatchInterval:   Duration{30 * time.Second},
			SpoolDir:        "./spool",
			SpoolMaxMB:      10,
		},
		Logging: LoggingConfig{
			Level:       "info",
			File:        "",
			BufferLines: 200,
		},
	}
}

// LoadFromBytes parses YAML configuration from a byte slice and merges with defaults.
// Environment variables take highest precedence and override values from the byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config data: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Load reads configuration from a YAML file and merges with defaults.
// If path is empty or the file does not exist, only defaults and environment
// variables are used.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromBytes(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		return LoadFromBytes(nil)
	}

	return LoadFromBytes(data)
}

// CLIOverrides holds values from command-line flags.
// Empty strings are treated as "not set" and skipped.
type CLIOverrides struct {
	PrinterAddress string
	Listen         string
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain:
// CLI flags > env vars > external YAML file > embedded bytes > defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value → use that path ("" means no external file)
func LoadLayered(cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, fmt.Errorf("parsing embedded config: %w", err)
		}
	}

	var filePath string
	if len(configPath) > 0 {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if cli.PrinterAddress != "" {
		cfg.Printer.Address = cli.PrinterAddress
	}
	if cli.Listen != "" {
		cfg.HTTP.Listen = cli.Listen
	}

	return cfg, nil
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("SFS_PRINTER_ADDRESS"); addr != "" {
		cfg.Printer.Address = addr
	}
	if level := os.Getenv("SFS_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if listen := os.Getenv("SFS_HTTP_LISTEN"); listen != "" {
		cfg.HTTP.Listen = listen
	}
	if broker := os.Getenv("SFS_MQTT_BROKER"); broker != "" {
		cfg.MQTT.Broker = broker
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Printer.Port <= 0 || c.Printer.Port > 65535 {
		return fmt.Errorf("printer port out of range: %d", c.Printer.Port)
	}
	if c.Printer.ReconnectInterval.Duration <= 0 {
		return fmt.Errorf("printer reconnect_interval must be positive")
	}
	if err := c.Settings().Validate(); err != nil {
		return err
	}

	// The movement detector only sees transitions at poll granularity.
	poll := c.Supervisor.PollInterval.Duration
	if poll <= 0 || poll > time.Second {
		return fmt.Errorf("supervisor poll_interval must be in (0, 1s] (got %s)", poll)
	}
	if err := checkPollInterval(poll, c.Settings()); err != nil {
		return err
	}

	switch c.Sensors.Source {
	case SensorSourceNone:
	case SensorSourceGPIO:
		if c.Sensors.GPIO.MovementPath == "" || c.Sensors.GPIO.RunoutPath == "" {
			return fmt.Errorf("sensors.gpio movement_path and runout_path are required for gpio source")
		}
	case SensorSourceSerial:
		if c.Sensors.Serial.Device == "" {
			return fmt.Errorf("sensors.serial.device is required for serial source")
		}
	default:
		return fmt.Errorf("unknown sensor source %q", c.Sensors.Source)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker is required when mqtt is enabled")
		}
		if c.MQTT.PublishInterval.Duration <= 0 || c.MQTT.BatchInterval.Duration <= 0 {
			return fmt.Errorf("mqtt publish_interval and batch_interval must be positive")
		}
	}
	return nil
}

// SystemPath returns the machine-wide configuration path used when the
// supervisor is installed as a service.
func SystemPath() string {
	paths := configSearchPaths()
	return paths[len(paths)-1]
}
