package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ServoConfig holds the hardware configuration for the tilt servo.
type ServoConfig struct {
	Pin       int `yaml:"pin"`        // GPIO pin (BCM) for the servo control line
	UpAngle   int `yaml:"up_angle"`   // target angle for the "Op" command (degrees)
	DownAngle int `yaml:"down_angle"` // target angle for the "Ned" command (degrees)
}

// StepperConfig holds the hardware configuration for the 4-phase
// rotation stepper. Either BasePin (phases on BasePin..BasePin+3) or
// four explicit Pins may be given; explicit pins win.
type StepperConfig struct {
	BasePin     int    `yaml:"base_pin"`
	Pins        [4]int `yaml:"pins,flow"`
	Steps       int    `yaml:"steps"`         // steps per Left/Right command
	StepDelayUs int    `yaml:"step_delay_us"` // inter-step delay in microseconds
}

// SerialConfig describes the line to the sensing unit.
type SerialConfig struct {
	Port     string `yaml:"port"`      // e.g. /dev/ttyS0
	BaudRate int    `yaml:"baud_rate"` // e.g. 115200
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	PollIntervalMs int  `yaml:"poll_interval_ms"` // delay between serial read attempts
	DebugLevel     int  `yaml:"debug_level"`      // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO       bool `yaml:"mock_gpio"`        // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Servo    ServoConfig    `yaml:"servo"`
	Stepper  StepperConfig  `yaml:"stepper"`
	Serial   SerialConfig   `yaml:"serial"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath rejects paths that are not a .yaml file inside a
// configs/ directory, including traversal attempts.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Ext(abs) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension, got %q", path)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must live in a configs/ directory, got %q", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Basic validation and defaults
	if cfg.Servo.Pin <= 0 {
		cfg.Servo.Pin = 18
	}
	if cfg.Servo.UpAngle == 0 {
		cfg.Servo.UpAngle = 90
	}
	if cfg.Servo.DownAngle == 0 {
		cfg.Servo.DownAngle = 45
	}
	if cfg.Servo.UpAngle < 0 || cfg.Servo.UpAngle > 180 {
		return nil, fmt.Errorf("servo.up_angle must be between 0 and 180, got %d", cfg.Servo.UpAngle)
	}
	if cfg.Servo.DownAngle < 0 || cfg.Servo.DownAngle > 180 {
		return nil, fmt.Errorf("servo.down_angle must be between 0 and 180, got %d", cfg.Servo.DownAngle)
	}

	if cfg.Stepper.Pins == ([4]int{}) {
		if cfg.Stepper.BasePin <= 0 {
			cfg.Stepper.BasePin = 22
		}
		for i := range cfg.Stepper.Pins {
			cfg.Stepper.Pins[i] = cfg.Stepper.BasePin + i
		}
	}
	seen := make(map[int]bool, 5)
	seen[cfg.Servo.Pin] = true
	for _, p := range cfg.Stepper.Pins {
		if p <= 0 {
			return nil, fmt.Errorf("stepper pins must all be positive, got %v", cfg.Stepper.Pins)
		}
		if seen[p] {
			return nil, fmt.Errorf("pin %d is assigned to more than one actuator", p)
		}
		seen[p] = true
	}
	if cfg.Stepper.Steps <= 0 {
		cfg.Stepper.Steps = 50
	}
	if cfg.Stepper.StepDelayUs <= 0 {
		cfg.Stepper.StepDelayUs = 2000
	}

	if cfg.Serial.Port == "" {
		cfg.Serial.Port = "/dev/ttyS0"
	}
	if cfg.Serial.BaudRate <= 0 {
		cfg.Serial.BaudRate = 115200
	}

	if cfg.Defaults.PollIntervalMs <= 0 {
		cfg.Defaults.PollIntervalMs = 100
	}
	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return nil, fmt.Errorf("debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}

	return &cfg, nil
}

// StepDelay returns the duration between two stepper steps.
func (c *Config) StepDelay() time.Duration {
	return time.Duration(c.Stepper.StepDelayUs) * time.Microsecond
}

// PollInterval returns the delay between serial read attempts.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Defaults.PollIntervalMs) * time.Millisecond
}
