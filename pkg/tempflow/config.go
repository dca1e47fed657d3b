package tempflow

import (
	"github.com/ghalamif/tempflow/internal/adapters/natsbus"
	"github.com/ghalamif/tempflow/internal/adapters/opcua"
	"github.com/ghalamif/tempflow/internal/app/config"
	"github.com/ghalamif/tempflow/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls wait timeouts, sample targets and the publish period.
	Policy = ports.Policy
	// DomainConfig selects the domain id, topic and sample type.
	DomainConfig = config.DomainConfig
	// NATSConfig holds the NATS connection settings.
	NATSConfig = natsbus.Config
	// OPCUAConfig holds connection + node details.
	OPCUAConfig = opcua.Config
	// OPCUANodeConfig describes a monitored tag.
	OPCUANodeConfig = opcua.NodeConfig
	// TimescaleConfig configures the optional database sink.
	TimescaleConfig = config.TimescaleConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// JournalConfig configures the on-disk record journal.
	JournalConfig = config.JournalConfig
	// LogConfig sets verbosity and log format.
	LogConfig = config.LogConfig
)

// Transport names accepted by Config.Transport.
const (
	TransportNATS   = config.TransportNATS
	TransportMemory = config.TransportMemory
	TransportOPCUA  = config.TransportOPCUA
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}
