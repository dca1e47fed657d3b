package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ghalamif/tempflow/internal/ports"
)

// PromObs implements ports.Observability with Prometheus metrics and logrus
// structured logs.
type PromObs struct {
	log      *logrus.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the tempflow metrics on reg. A nil reg uses the
// default registerer and a nil logger the logrus standard logger.
func NewPromObs(reg prometheus.Registerer, logger *logrus.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	counters := map[string]prometheus.Counter{
		ports.MetricSamplesRead:           counter(ports.MetricSamplesRead, "Valid samples drained from the event source."),
		ports.MetricSamplesWritten:        counter(ports.MetricSamplesWritten, "Samples written by the publisher."),
		ports.MetricWriteErrors:           counter(ports.MetricWriteErrors, "Publisher writes rejected by the transport."),
		ports.MetricWaitTimeouts:          counter(ports.MetricWaitTimeouts, "Waits that timed out without data."),
		ports.MetricInstanceNotifications: counter(ports.MetricInstanceNotifications, "Lifecycle notifications received without data."),
		ports.MetricSinkErrors:            counter(ports.MetricSinkErrors, "Batches a sink failed to accept."),
		ports.MetricDrainCycles:           counter(ports.MetricDrainCycles, "Completed wait/drain cycles."),
	}
	gauges := map[string]prometheus.Gauge{
		ports.MetricLoopState:     gauge(ports.MetricLoopState, "Poll loop state (0 idle, 1 waiting, 2 draining, 3 stopped)."),
		ports.MetricJournalBytes:  gauge(ports.MetricJournalBytes, "Size of the record journal on disk."),
		ports.MetricSourcePending: gauge(ports.MetricSourcePending, "Records buffered by the event source."),
	}
	sinkLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricSinkLatency,
		Help:    "Time spent handing a batch to the sink.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	batchSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricBatchSize,
		Help:    "Records returned by a single drain.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	for _, c := range counters {
		reg.MustRegister(c)
	}
	for _, g := range gauges {
		reg.MustRegister(g)
	}
	reg.MustRegister(sinkLatency, batchSize)

	return &PromObs{
		log:      logger,
		counters: counters,
		gauges:   gauges,
		histos: map[string]prometheus.Observer{
			ports.MetricSinkLatency: sinkLatency,
			ports.MetricBatchSize:   batchSize,
		},
	}
}

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	p.entry(fields).Debug(msg)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.entry(fields).Info(msg)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.entry(fields).WithError(err).Error(msg)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.entry(fields).WithError(err).WithField("critical", true).Error(msg)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) entry(fields []ports.Field) *logrus.Entry {
	if len(fields) == 0 {
		return logrus.NewEntry(p.log)
	}
	lf := make(logrus.Fields, len(fields))
	for _, f := range fields {
		lf[f.Key] = f.Value
	}
	return p.log.WithFields(lf)
}

var _ ports.Observability = (*PromObs)(nil)
