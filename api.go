package tempflow

import (
	"context"
	"io"

	base "github.com/ghalamif/tempflow/pkg/tempflow"
)

// Re-exported errors for convenience.
var (
	ErrWaitTimeout       = base.ErrWaitTimeout
	ErrWaitFailed        = base.ErrWaitFailed
	ErrTimeoutCeiling    = base.ErrTimeoutCeiling
	ErrNoMemoryBus       = base.ErrNoMemoryBus
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/ghalamif/tempflow directly.
type (
	Config          = base.Config
	Policy          = base.Policy
	DomainConfig    = base.DomainConfig
	NATSConfig      = base.NATSConfig
	OPCUAConfig     = base.OPCUAConfig
	OPCUANodeConfig = base.OPCUANodeConfig
	TimescaleConfig = base.TimescaleConfig
	MetricsConfig   = base.MetricsConfig
	JournalConfig   = base.JournalConfig
	LogConfig       = base.LogConfig
	Flow            = base.Flow
	FlowOption      = base.FlowOption
	StreamInOption  = base.StreamInOption
	StreamOutOption = base.StreamOutOption
	Subscriber      = base.Subscriber
	Publisher       = base.Publisher
	Option          = base.Option
	Record          = base.Record
	Batch           = base.Batch
	Temperature     = base.Temperature
	HelloMessage    = base.HelloMessage
	RecordBatchSink = base.RecordBatchSink
	EventSource     = base.EventSource
	Writer          = base.Writer
	Sink            = base.Sink
	Observability   = base.Observability
	Field           = base.Field
	RunState        = base.RunState
	Stats           = base.Stats
	StopReason      = base.StopReason
	PublishStats    = base.PublishStats
	SampleFactory   = base.SampleFactory
	MemoryBus       = base.MemoryBus
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

func NewRunState() *RunState {
	return base.NewRunState()
}

func NewMemoryBus(capacity int) *MemoryBus {
	return base.NewMemoryBus(capacity)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...Option) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInSource(src EventSource) StreamInOption {
	return base.StreamInSource(src)
}

func StreamInMemoryBus(bus *MemoryBus) StreamInOption {
	return base.StreamInMemoryBus(bus)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn RecordBatchSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Runtimes and options.
func NewSubscriber(ctx context.Context, cfg *Config, opts ...Option) (*Subscriber, error) {
	return base.NewSubscriber(ctx, cfg, opts...)
}

func NewPublisher(cfg *Config, opts ...Option) (*Publisher, error) {
	return base.NewPublisher(cfg, opts...)
}

func WithSource(src EventSource) Option {
	return base.WithSource(src)
}

func WithWriter(w Writer) Option {
	return base.WithWriter(w)
}

func WithSink(s Sink) Option {
	return base.WithSink(s)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

func WithMemoryBus(bus *MemoryBus) Option {
	return base.WithMemoryBus(bus)
}

func WithSampleFactory(fn SampleFactory) Option {
	return base.WithSampleFactory(fn)
}

// Sink adapters.
func NewConsoleSink(w io.Writer) Sink {
	return base.NewConsoleSink(w)
}

func NewCallbackSink(name string, fn RecordBatchSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []Record, func()) {
	return base.NewChannelSink(name, buffer)
}
