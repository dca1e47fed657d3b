package tempflow

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// Option customizes the dependencies used by Subscriber and Publisher.
type Option func(*runtimeOverrides)

type runtimeOverrides struct {
	source        EventSource
	writer        Writer
	sinks         []Sink
	observability Observability
	registry      *prometheus.Registry
	bus           *MemoryBus
	factory       SampleFactory
	output        io.Writer
	logOutput     io.Writer
}

// WithSource injects a custom event source instead of the configured transport.
func WithSource(src EventSource) Option {
	return func(o *runtimeOverrides) {
		o.source = src
	}
}

// WithWriter injects a custom writer instead of the configured transport.
func WithWriter(w Writer) Option {
	return func(o *runtimeOverrides) {
		o.writer = w
	}
}

// WithSink adds a sink. Without any sink the subscriber prints payloads.
func WithSink(s Sink) Option {
	return func(o *runtimeOverrides) {
		if s != nil {
			o.sinks = append(o.sinks, s)
		}
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) Option {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *runtimeOverrides) {
		o.registry = reg
	}
}

// WithMemoryBus selects the bus used by the memory transport.
func WithMemoryBus(bus *MemoryBus) Option {
	return func(o *runtimeOverrides) {
		o.bus = bus
	}
}

// WithSampleFactory replaces the payloads a publisher writes.
func WithSampleFactory(fn SampleFactory) Option {
	return func(o *runtimeOverrides) {
		o.factory = fn
	}
}

// WithOutput sets where the console sink prints. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(o *runtimeOverrides) {
		o.output = w
	}
}

// WithLogOutput sets where logs are written. Defaults to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *runtimeOverrides) {
		o.logOutput = w
	}
}

func collectOverrides(opts []Option) runtimeOverrides {
	var o runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
