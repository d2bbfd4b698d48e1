package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/magx/hal"
)

// injected at build time
var (
	Version = "latest"
	Commit  = "none"
	Date    = "unknown"
)

const (
	AdapterSim     = "sim"
	AdapterMCP2221 = "mcp2221"
	AdapterLinux   = "linux"
)

const (
	DefaultClockHz = 100_000
	DefaultTimeout = 10 * time.Millisecond
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the board file: which buses exist and how to reach them.
type Config struct {
	LogLevel string `yaml:"log_level"`
	Buses    []Bus  `yaml:"buses"`
}

type Bus struct {
	Name    string `yaml:"name"`
	Adapter string `yaml:"adapter"`
	// Module is the 1-based peripheral number (I2C1, I2C2).
	Module  int    `yaml:"module"`
	ClockHz uint32 `yaml:"clock_hz"`
	// Timeout bounds every busy-wait; an explicit 0s waits forever.
	Timeout     *time.Duration `yaml:"timeout"`
	SettleDelay time.Duration  `yaml:"settle_delay"`
	// Device is the host bus name for the linux adapter and the USB
	// enumeration index for mcp2221.
	Device            string `yaml:"device"`
	PeripheralClockHz uint32 `yaml:"peripheral_clock_hz"`
	// Devices lists the addresses populated with register files on a
	// simulated bus.
	Devices []uint8 `yaml:"devices"`
}

// HALModule maps the configured module number onto hal.Module.
func (b Bus) HALModule() hal.Module {
	return hal.Module(b.Module - 1)
}

// PollTimeout is Timeout with DefaultTimeout applied when it was left out.
func (b Bus) PollTimeout() time.Duration {
	if b.Timeout == nil {
		return DefaultTimeout
	}
	return *b.Timeout
}

// Default describes a single simulated bus with one register file at 0x50.
func Default() *Config {
	c := &Config{
		Buses: []Bus{{Name: "i2c1", Adapter: AdapterSim, Devices: []uint8{0x50}}},
	}
	c.applyDefaults()
	return c
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for i := range c.Buses {
		b := &c.Buses[i]
		if b.Adapter == "" {
			b.Adapter = AdapterSim
		}
		if b.Module == 0 {
			b.Module = 1
		}
		if b.ClockHz == 0 {
			b.ClockHz = DefaultClockHz
		}
		if b.SettleDelay == 0 {
			b.SettleDelay = 35 * time.Microsecond
		}
		if b.Name == "" {
			b.Name = fmt.Sprintf("i2c%d", b.Module)
		}
	}
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.LogLevel)
	}
	if len(c.Buses) == 0 {
		return fmt.Errorf("%w: no buses", ErrInvalid)
	}
	names := make(map[string]bool)
	for _, b := range c.Buses {
		if names[b.Name] {
			return fmt.Errorf("%w: duplicate bus %q", ErrInvalid, b.Name)
		}
		names[b.Name] = true
		switch b.Adapter {
		case AdapterSim, AdapterMCP2221:
		case AdapterLinux:
			if b.Device == "" {
				return fmt.Errorf("%w: bus %q: linux adapter needs a device", ErrInvalid, b.Name)
			}
		default:
			return fmt.Errorf("%w: bus %q: unknown adapter %q", ErrInvalid, b.Name, b.Adapter)
		}
		if b.Module < 1 || b.Module > 2 {
			return fmt.Errorf("%w: bus %q: module must be 1 or 2", ErrInvalid, b.Name)
		}
		if b.PollTimeout() < 0 || b.SettleDelay < 0 {
			return fmt.Errorf("%w: bus %q: negative duration", ErrInvalid, b.Name)
		}
	}
	return nil
}

// Bus returns the bus called name, or the first one when name is empty.
func (c *Config) Bus(name string) (Bus, error) {
	if name == "" && len(c.Buses) > 0 {
		return c.Buses[0], nil
	}
	for _, b := range c.Buses {
		if b.Name == name {
			return b, nil
		}
	}
	return Bus{}, fmt.Errorf("no bus named %q", name)
}
