package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/tempflow/internal/adapters/natsbus"
	"github.com/ghalamif/tempflow/internal/adapters/opcua"
	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
)

// Transports a subscriber or publisher can run on.
const (
	TransportNATS   = "nats"
	TransportMemory = "memory"
	TransportOPCUA  = "opcua"
)

// MaxDomainID bounds the numeric domain a run joins.
const MaxDomainID = 232

type Config struct {
	Domain    DomainConfig    `yaml:"domain"`
	Transport string          `yaml:"transport"`
	SensorID  string          `yaml:"sensor_id"`
	NATS      natsbus.Config  `yaml:"nats"`
	OPCUA     opcua.Config    `yaml:"opcua"`
	Policy    ports.Policy    `yaml:"policy"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Journal   JournalConfig   `yaml:"journal"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

type DomainConfig struct {
	ID    int    `yaml:"id"`
	Topic string `yaml:"topic"`
	Type  string `yaml:"type"`
}

// TimescaleConfig is optional; an empty ConnString disables the sink.
type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// JournalConfig is optional; an empty Dir disables the journal.
type JournalConfig struct {
	Dir string `yaml:"dir"`
}

type LogConfig struct {
	Verbosity int    `yaml:"verbosity"`
	Format    string `yaml:"format"`
}

// Load reads path, applies defaults and validates. An empty path yields the
// defaults alone.
func Load(path string) (*Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads path and applies defaults without validating, so callers can
// override fields before calling Validate.
func Parse(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a validated configuration without reading a file.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if c.Domain.Type == "" {
		c.Domain.Type = domain.TypeTemperature
	}
	if c.Domain.Topic == "" {
		c.Domain.Topic = domain.DefaultTopic(c.Domain.Type)
	}
	if c.Transport == "" {
		c.Transport = TransportNATS
	}
	if c.SensorID == "" {
		c.SensorID = "sensor-1"
	}
	if c.Policy.WaitTimeout == 0 {
		c.Policy.WaitTimeout = 4 * time.Second
	}
	if c.Policy.PublishPeriod == 0 {
		c.Policy.PublishPeriod = 4 * time.Second
	}
	if c.Timescale.Table == "" {
		c.Timescale.Table = "temperatures"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	c.NATS.ApplyDefaults()
	if c.Transport == TransportOPCUA {
		c.OPCUA.ApplyDefaults()
	}
}

func (c *Config) Validate() error {
	if c.Domain.ID < 0 || c.Domain.ID > MaxDomainID {
		return fmt.Errorf("domain.id must be between 0 and %d, got %d", MaxDomainID, c.Domain.ID)
	}
	switch c.Domain.Type {
	case domain.TypeTemperature, domain.TypeHello:
	default:
		return fmt.Errorf("domain.type %q is not supported", c.Domain.Type)
	}
	if c.Policy.WaitTimeout < 0 || c.Policy.PublishPeriod < 0 {
		return fmt.Errorf("policy durations must not be negative")
	}
	if c.Policy.MaxConsecutiveTimeouts < 0 {
		return fmt.Errorf("policy.max_consecutive_timeouts must not be negative")
	}
	if c.Log.Verbosity < 0 || c.Log.Verbosity > 5 {
		return fmt.Errorf("log.verbosity must be between 0 and 5, got %d", c.Log.Verbosity)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}

	switch c.Transport {
	case TransportNATS:
		if err := c.NATS.Validate(); err != nil {
			return fmt.Errorf("nats config: %w", err)
		}
	case TransportOPCUA:
		if err := c.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua config: %w", err)
		}
	case TransportMemory:
	default:
		return fmt.Errorf("transport %q is not supported", c.Transport)
	}
	return nil
}
