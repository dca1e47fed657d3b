package main

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ghalamif/tempflow/internal/adapters/observability"
	"github.com/ghalamif/tempflow/internal/app/config"
	"github.com/ghalamif/tempflow/internal/app/poll"
	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
	"github.com/ghalamif/tempflow/pkg/tempflow"
)

// globalFlags mirror the classic example arguments and override the config file.
type globalFlags struct {
	configPath  string
	domainID    int
	sampleCount uint64
	verbosity   int
	sensorID    string
	transport   string
	topic       string
	sampleType  string
	metricsAddr string
	journalDir  string
	logFormat   string
}

// newRootCommand builds the CLI. opts are handed to every subscriber and
// publisher it creates.
func newRootCommand(opts ...tempflow.Option) *cobra.Command {
	var gf globalFlags

	root := &cobra.Command{
		Use:          "tempflow",
		Short:        "Publish and subscribe temperature samples",
		Long:         "tempflow publishes temperature or hello world samples on a topic and subscribes to them with a bounded wait/drain loop.",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&gf.configPath, "config", "c", "", "Path to a YAML configuration file")
	pf.IntVarP(&gf.domainID, "domain", "d", 0, "Domain ID this application joins")
	pf.Uint64VarP(&gf.sampleCount, "sample-count", "s", 0, "Number of samples to send or receive before exiting (0 = unbounded)")
	pf.IntVarP(&gf.verbosity, "verbosity", "v", 0, "Logging verbosity, 0 (errors) to 5 (everything)")
	pf.StringVarP(&gf.sensorID, "sensor-id", "i", "", "Sensor ID written by the temperature publisher")
	pf.StringVarP(&gf.transport, "transport", "t", "", "Transport: nats, memory or opcua")
	pf.StringVar(&gf.topic, "topic", "", "Topic name")
	pf.StringVar(&gf.sampleType, "type", "", "Sample type: temperature or hello")
	pf.StringVar(&gf.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
	pf.StringVar(&gf.journalDir, "journal-dir", "", "Append received records to a journal in this directory")
	pf.StringVar(&gf.logFormat, "log-format", "", "Log format: text or json")

	root.AddCommand(
		newSubscribeCommand(&gf, opts),
		newPublishCommand(&gf, opts),
		newValidateCommand(&gf),
		newStatsCommand(),
		newReplayCommand(&gf),
	)
	return root
}

// loadConfig reads the config file, applies every flag the user set and
// validates the result.
func loadConfig(cmd *cobra.Command, gf *globalFlags) (*config.Config, error) {
	cfg, err := config.Parse(gf.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("domain") {
		cfg.Domain.ID = gf.domainID
	}
	if flags.Changed("sample-count") {
		cfg.Policy.TargetSamples = gf.sampleCount
	}
	if flags.Changed("verbosity") {
		cfg.Log.Verbosity = gf.verbosity
	}
	if flags.Changed("sensor-id") {
		cfg.SensorID = gf.sensorID
	}
	if flags.Changed("transport") {
		cfg.Transport = gf.transport
	}
	if flags.Changed("type") {
		cfg.Domain.Type = gf.sampleType
		if !flags.Changed("topic") {
			cfg.Domain.Topic = domain.DefaultTopic(gf.sampleType)
		}
	}
	if flags.Changed("topic") {
		cfg.Domain.Topic = gf.topic
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = gf.metricsAddr
	}
	if flags.Changed("journal-dir") {
		cfg.Journal.Dir = gf.journalDir
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = gf.logFormat
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newObservability builds the logger and metrics shared by a command run.
func newObservability(cfg *config.Config, logOut io.Writer) (ports.Observability, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	logger := observability.NewLogger(cfg.Log.Verbosity, cfg.Log.Format, logOut)
	return observability.NewPromObs(reg, logger), reg
}

// runStateOnSignals returns a run state that SIGINT and SIGTERM stop.
func runStateOnSignals(obs ports.Observability) (*poll.RunState, func()) {
	rs := poll.NewRunState()
	detach := poll.StopOnSignal(rs, obs, os.Interrupt, syscall.SIGTERM)
	return rs, detach
}
